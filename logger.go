package fosterbtree

import (
	"fmt"
	"log"

	"github.com/dustin/go-humanize"
)

// RecordType classifies a logged tree event, letting a Logger implementation
// branch on what happened rather than parse free text.
type RecordType int

const (
	RecordInsert RecordType = iota
	RecordRemove
	RecordRebalance
	RecordGrow
	RecordAdopt
)

func (r RecordType) String() string {
	switch r {
	case RecordInsert:
		return "insert"
	case RecordRemove:
		return "remove"
	case RecordRebalance:
		return "rebalance"
	case RecordGrow:
		return "grow"
	case RecordAdopt:
		return "adopt"
	default:
		return "unknown"
	}
}

// Logger receives one line per structural tree event: an insert, a
// remove, a split/rebalance, a root growth, an adoption. Implementations
// must be safe for concurrent use, since events are logged while the
// latch that made the event possible may already have been released.
type Logger interface {
	Logf(record RecordType, format string, args ...any)
}

// NopLogger discards every event. It is the default when Config.Logger
// is nil.
type NopLogger struct{}

func (NopLogger) Logf(RecordType, string, ...any) {}

// TextLogger writes one line per event to a standard *log.Logger. Every
// argument of type int is taken as a byte count and replaced by its
// go-humanize string (2048 becomes "2.0 kB"), so a format prints such an
// argument readably only with %v or %s; arguments of other types pass
// through unchanged.
type TextLogger struct {
	out *log.Logger
}

// NewTextLogger wraps dst (any log.Logger, e.g. log.Default()) as a
// fosterbtree Logger.
func NewTextLogger(dst *log.Logger) *TextLogger {
	return &TextLogger{out: dst}
}

func (t *TextLogger) Logf(record RecordType, format string, args ...any) {
	for i, a := range args {
		if n, ok := a.(int); ok {
			args[i] = humanize.Bytes(uint64(n))
		}
	}
	t.out.Output(2, fmt.Sprintf("[%s] "+format, append([]any{record}, args...)...))
}
