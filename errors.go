package fosterbtree

import "errors"

// User-visible errors. Put reports ErrDuplicateKey when the key already
// exists and upsert wasn't requested; Get and Remove report absence with
// a plain bool, never an error.
var (
	ErrDuplicateKey       = errors.New("fosterbtree: duplicate key")
	ErrInvalidFosterChild = errors.New("fosterbtree: invalid foster child")
)

// errPageFull is an internal capacity signal: rebalance and grow return
// it when a record move does not fit, and split returns it when a foster
// pointer cannot be stored. Put wraps it into the error it returns if a
// split or a root growth fails; no other public method reports it.
var errPageFull = errors.New("fosterbtree: page full")
