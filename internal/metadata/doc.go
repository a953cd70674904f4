// Package metadata models the two schemas a mapping connects and the
// mapping fragments themselves.
//
// The conceptual side has entity types (single inheritance), entity sets
// and association sets. The store side has tables with primary keys and
// foreign keys. Every extent is interned by its Schema: two extents are the
// same extent iff they are the same pointer, so extents can be used
// directly as map keys.
package metadata
