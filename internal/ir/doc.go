// Package ir provides the constant values that appear in mapping conditions
// and generated views, plus canonical serialization and content hashing.
//
// This package imports nothing internal. Every other internal package may
// import ir.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - Null is an explicit value (Null{}), never a nil interface
//   - All JSON tags use snake_case
//   - Hashes are computed only over canonical JSON (RFC 8785)
package ir
