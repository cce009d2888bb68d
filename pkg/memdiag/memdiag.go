// Package memdiag logs Go heap statistics while a run progresses.
//
// Enable with RSORT_MEM_DEBUG=1. Stats are logged at debug level after each
// committed chunk, next to the membership set's own accounting, so a
// divergence between the two is easy to spot.
package memdiag

import (
	"os"
	"runtime"
	"sync"

	"github.com/MrMahile/rsort/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// EnvVar enables diagnostics when set to "1".
const EnvVar = "RSORT_MEM_DEBUG"

// Stats is the subset of runtime.MemStats rsort reports.
type Stats struct {
	HeapAlloc     uint64
	HeapSys       uint64
	HeapInuse     uint64
	Sys           uint64
	NumGC         uint32
	GCCPUFraction float64
}

// Read reads current memory statistics.
func Read() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		HeapAlloc:     m.HeapAlloc,
		HeapSys:       m.HeapSys,
		HeapInuse:     m.HeapInuse,
		Sys:           m.Sys,
		NumGC:         m.NumGC,
		GCCPUFraction: m.GCCPUFraction,
	}
}

// Sample is what the pipeline knows about its own memory at a checkpoint.
type Sample struct {
	Chunk       int
	SetBytes    uint64
	SetLen      int
	BudgetInUse uint64
	BudgetTotal uint64
}

// Tracker records peak heap usage and logs samples when enabled.
// A nil *Tracker is valid and does nothing.
type Tracker struct {
	enabled bool

	mu       sync.Mutex
	peakHeap uint64
}

// NewTracker returns a tracker. When enabled is false only the peak is kept.
func NewTracker(enabled bool) *Tracker {
	return &Tracker{enabled: enabled}
}

// FromEnv returns a tracker enabled by RSORT_MEM_DEBUG.
func FromEnv() *Tracker {
	return NewTracker(os.Getenv(EnvVar) == "1")
}

// Enabled reports whether samples are logged.
func (t *Tracker) Enabled() bool {
	return t != nil && t.enabled
}

// Observe reads heap stats, updates the peak and logs s when enabled.
func (t *Tracker) Observe(log zerolog.Logger, s Sample) {
	if t == nil {
		return
	}
	stats := Read()

	t.mu.Lock()
	if stats.HeapAlloc > t.peakHeap {
		t.peakHeap = stats.HeapAlloc
	}
	peak := t.peakHeap
	t.mu.Unlock()

	if !t.enabled {
		return
	}

	var ratio float64
	if s.SetBytes > 0 {
		ratio = float64(stats.HeapAlloc) / float64(s.SetBytes)
	}

	log.Debug().
		Int("chunk_index", s.Chunk).
		Str("heap_alloc", humanfmt.BytesUint64(stats.HeapAlloc)).
		Str("heap_sys", humanfmt.BytesUint64(stats.HeapSys)).
		Str("heap_inuse", humanfmt.BytesUint64(stats.HeapInuse)).
		Str("sys_total", humanfmt.BytesUint64(stats.Sys)).
		Str("peak_heap", humanfmt.BytesUint64(peak)).
		Str("set_bytes", humanfmt.BytesUint64(s.SetBytes)).
		Int("set_len", s.SetLen).
		Str("budget_inuse", humanfmt.BytesUint64(s.BudgetInUse)).
		Str("budget_total", humanfmt.BytesUint64(s.BudgetTotal)).
		Float64("heap_vs_set_ratio", ratio).
		Uint32("num_gc", stats.NumGC).
		Float64("gc_cpu_pct", stats.GCCPUFraction*100).
		Msg("memory stats")
}

// PeakHeap returns the largest HeapAlloc seen by Observe.
func (t *Tracker) PeakHeap() uint64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakHeap
}
