package fosterbtree

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestTextLoggerHumanizesByteCounts(t *testing.T) {
	var buf bytes.Buffer
	tl := NewTextLogger(log.New(&buf, "", 0))
	tl.Logf(RecordRebalance, "node %d, %d free", NodePointer(7), 2048)
	out := buf.String()
	if !strings.Contains(out, "2.0 kB") {
		t.Fatalf("expected humanized byte count in log output, got %q", out)
	}
	if strings.Contains(out, "2048") {
		t.Fatalf("byte count argument should have been humanized, not printed raw: %q", out)
	}
}

func TestTreeSplitLogsHumanizedFreeSpace(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTree(Config[int64, int64]{
		KeyCodec:   Int64KeyCodec{},
		ValueCodec: Int64ValueCodecForTest{},
		Logger:     NewTextLogger(log.New(&buf, "", 0)),
	})
	for i := int64(0); i < 2000; i++ {
		if err := tr.Put(i, i, false); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	out := buf.String()
	if !strings.Contains(out, " free") {
		t.Fatalf("expected at least one split log line reporting free space, got %q", out)
	}
	if !strings.Contains(out, "B free") {
		t.Fatalf("expected go-humanize formatting (a trailing byte unit) in split log output, got %q", out)
	}
}
