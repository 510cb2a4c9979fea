// Package fosterbtree implements a concurrent, in-memory Foster B-tree: an
// ordered map from keys to values supporting point insertion, point lookup,
// point removal and single-node range iteration, safe under concurrent
// readers and writers.
//
// The tree is built from a slotted page (Page), a set of stateless node
// operations over a page (insert/find/remove/iterate), a Foster-relationship
// extension for in-place splits (fence keys, foster key, foster pointer),
// an eager adoption policy that folds foster children back into their
// parent, and a latch-coupled traversal protocol. See DESIGN.md for how
// each of these pieces is grounded in the surrounding package layout.
package fosterbtree
