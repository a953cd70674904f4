package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows the
// document layout to change without colliding with older hashes.
const (
	DomainMapping = "viewgen/mapping/v1"
	DomainView    = "viewgen/view/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MappingHash computes the content hash of a mapping document. The caller
// supplies the document as an Object so that the same mapping produces the
// same hash regardless of declaration order inside maps.
func MappingHash(doc Object) (string, error) {
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("MappingHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainMapping, canonical), nil
}

// ViewHash computes the content hash of one generated view, identified by
// the mapping it came from, its target, extent and text.
func ViewHash(mappingHash, kind, extent, ofType, text string) (string, error) {
	obj := Object{
		"mapping": String(mappingHash),
		"kind":    String(kind),
		"extent":  String(extent),
		"of_type": String(ofType),
		"text":    String(text),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ViewHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainView, canonical), nil
}

// MustMappingHash is like MappingHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustMappingHash(doc Object) string {
	h, err := MappingHash(doc)
	if err != nil {
		panic(err)
	}
	return h
}
