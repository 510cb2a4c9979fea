package fosterbtree

// Config holds the tree's compile-time-in-spirit knobs. All fields have
// usable zero values except KeyCodec and ValueCodec, which are required.
type Config[K any, V any] struct {
	KeyCodec   KeyCodec[K]
	ValueCodec ValueCodec[V]

	// Adoption is the policy applied on every traversal. Nil defaults to
	// EagerAdoption.
	Adoption Adoption[K]

	// Logger receives structural events (splits, adoptions, growth). Nil
	// defaults to NopLogger.
	Logger Logger

	// DebugLevel gates the expensive self-check. At 3 or above, Put runs
	// CheckInvariants after every successful insert and returns its
	// error; below 3 no check runs. Logging and hot-node sampling happen
	// at every level.
	DebugLevel int
}
