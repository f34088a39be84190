// Package merge implements the flat three-way merge used to reconcile a
// dirty local draft with a concurrently updated server snapshot.
//
// The merge works on top-level fields only. A field changed by exactly one
// side keeps that side's value; a field changed by both sides to different
// values is a conflict, won by the side whose metadata is newer in
// (UpdatedAt, Version, ClientID) order. Nothing in this package performs I/O.
package merge
