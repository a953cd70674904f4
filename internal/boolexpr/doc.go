// Package boolexpr implements boolean formulas over finite-domain member
// restrictions, the reasoning layer of view generation.
//
// An atom is a Term: "variable takes one of these values". Variables are
// member paths (conceptual properties, store columns), the entity type
// discriminator of an extent, or role literals that say a row comes from a
// given extent. Every variable's domain is either closed (booleans, type
// discriminators) or open; an open domain is treated as the constants
// mentioned in a formula plus one anonymous "other" value, which is
// sufficient to decide satisfiability.
//
// Processor answers the questions view generation asks: is a fragment
// satisfiable, is one contained in another, are two disjoint or equivalent.
// All answers are relative to a knowledge base of schema facts.
package boolexpr
