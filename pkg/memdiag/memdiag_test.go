package memdiag

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestReadNonZero(t *testing.T) {
	s := Read()
	if s.HeapAlloc == 0 || s.Sys == 0 {
		t.Errorf("Read() = %+v, expected non-zero heap and sys", s)
	}
}

func TestObserveDisabled(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(false)

	tr.Observe(zerolog.New(&buf), Sample{Chunk: 1})

	if buf.Len() != 0 {
		t.Errorf("disabled tracker logged: %s", buf.String())
	}
	if tr.PeakHeap() == 0 {
		t.Error("peak should be tracked even when disabled")
	}
}

func TestObserveEnabled(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTracker(true)

	tr.Observe(zerolog.New(&buf).Level(zerolog.DebugLevel), Sample{Chunk: 3, SetBytes: 4096, SetLen: 10})

	out := buf.String()
	for _, want := range []string{`"chunk_index":3`, `"set_len":10`, `"set_bytes":"4.00 KiB"`, `"memory stats"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
}

func TestNilTracker(t *testing.T) {
	var tr *Tracker
	tr.Observe(zerolog.Nop(), Sample{})
	if tr.Enabled() || tr.PeakHeap() != 0 {
		t.Error("nil tracker should be inert")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvVar, "1")
	if !FromEnv().Enabled() {
		t.Error("expected enabled with RSORT_MEM_DEBUG=1")
	}
	t.Setenv(EnvVar, "")
	if FromEnv().Enabled() {
		t.Error("expected disabled without RSORT_MEM_DEBUG")
	}
}
