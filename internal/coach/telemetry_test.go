package coach

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestTraceRingOverwritesOldest(t *testing.T) {
	tr := NewTrace()
	for i := range traceCapacity + 10 {
		tr.Record("entry", fmt.Sprintf("%d", i), 0)
	}

	snap := tr.Snapshot()
	if len(snap) != traceCapacity {
		t.Fatalf("snapshot length = %d, want %d", len(snap), traceCapacity)
	}
	if snap[0].Detail != "10" {
		t.Errorf("oldest entry = %q, want 10 (first ten overwritten)", snap[0].Detail)
	}
	if snap[len(snap)-1].Detail != fmt.Sprintf("%d", traceCapacity+9) {
		t.Errorf("newest entry = %q", snap[len(snap)-1].Detail)
	}
}

func TestTraceSnapshotBeforeFull(t *testing.T) {
	tr := NewTrace()
	tr.Record("a", "", 0)
	tr.Record("b", "", 0)

	snap := tr.Snapshot()
	if len(snap) != 2 || snap[0].Kind != "a" || snap[1].Kind != "b" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestTraceRegistry(t *testing.T) {
	reg := NewTraceRegistry()
	id := uuid.New()
	tr := NewTrace()

	if _, ok := reg.Lookup(id); ok {
		t.Error("lookup on empty registry succeeded")
	}
	reg.Register(id, tr)
	if got, ok := reg.Lookup(id); !ok || got != tr {
		t.Error("registered trace not found")
	}
	reg.Deregister(id)
	if _, ok := reg.Lookup(id); ok {
		t.Error("deregistered trace still found")
	}
}
