package dedup

import (
	"runtime"
	"time"

	"github.com/MrMahile/rsort/pkg/checkpoint"
	"github.com/MrMahile/rsort/pkg/chunk"
	"github.com/MrMahile/rsort/pkg/membudget"
	"github.com/MrMahile/rsort/pkg/memdiag"
	"github.com/MrMahile/rsort/pkg/seen"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultReadBufferSize is the per-chunk input buffer.
	DefaultReadBufferSize = 256 * 1024
	// DefaultWriteBufferSize is the output buffer.
	DefaultWriteBufferSize = 4 * 1024 * 1024
	// ProgressInterval is the number of lines between Progress notifications
	// and cancellation checks.
	ProgressInterval = 100_000
)

// Config describes one run. InputPath and OutputPath are required; everything
// else has a default.
type Config struct {
	InputPath  string
	OutputPath string

	// ChunkSize is the target chunk length in bytes (default 50 MiB).
	ChunkSize int64
	// Workers is the number of chunks processed at once. 1 processes chunks
	// sequentially and keeps the first occurrence of every line. 0 uses
	// GOMAXPROCS.
	Workers int

	ReadBufferSize  int
	WriteBufferSize int

	// Reporter receives progress and the final summary. Nil discards them.
	Reporter Reporter

	// Checkpoint, when set, records progress after every committed chunk.
	Checkpoint *checkpoint.Store
	// Resume continues from Checkpoint instead of starting over.
	Resume bool

	// Budget, when set, is charged for the membership set's memory. Running
	// over it logs a warning once; nothing is evicted.
	Budget *membudget.Budget
	// MemDiag, when set, observes heap usage after each committed chunk.
	MemDiag *memdiag.Tracker
	// Tracer creates the run and chunk spans. Nil uses the global provider.
	Tracer trace.Tracer

	// Set overrides the membership set, mainly for tests. It must be safe
	// for concurrent use when Workers > 1.
	Set seen.Set
}

func (c Config) withDefaults() Config {
	if c.ChunkSize == 0 {
		c.ChunkSize = chunk.DefaultTarget
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = DefaultWriteBufferSize
	}
	if c.Reporter == nil {
		c.Reporter = NopReporter{}
	}
	return c
}

// Progress is sent every ProgressInterval lines and after every committed
// chunk.
type Progress struct {
	ChunksTotal int
	// ChunkIndex is the chunk being processed or just committed.
	ChunkIndex int
	// ChunksDone counts committed chunks.
	ChunksDone     int
	LinesProcessed uint64
	Elapsed        time.Duration
}

// Summary describes a finished run. On resume the counters include the work
// done before the interruption.
type Summary struct {
	LinesProcessed    uint64        `json:"lines_processed"`
	DuplicatesRemoved uint64        `json:"duplicates_removed"`
	UniqueLines       uint64        `json:"unique_lines"`
	InvalidLines      uint64        `json:"invalid_utf8_lines"`
	BytesRead         int64         `json:"bytes_read"`
	BytesWritten      int64         `json:"bytes_written"`
	Chunks            int           `json:"chunks"`
	Workers           int           `json:"workers"`
	Resumed           bool          `json:"resumed"`
	Elapsed           time.Duration `json:"elapsed_ns"`
	// Throughput is lines per second.
	Throughput float64 `json:"lines_per_sec"`
}

//go:generate mockgen -source=types.go -destination=mock_reporter_test.go -package=dedup

// Reporter receives run notifications. Implementations must be safe for
// concurrent use: with Workers > 1, Progress is called from several
// goroutines.
type Reporter interface {
	Progress(Progress)
	Summary(Summary)
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) Progress(Progress) {}
func (NopReporter) Summary(Summary)   {}

// MultiReporter fans notifications out to several reporters in order.
type MultiReporter []Reporter

func (m MultiReporter) Progress(p Progress) {
	for _, r := range m {
		r.Progress(p)
	}
}

func (m MultiReporter) Summary(s Summary) {
	for _, r := range m {
		r.Summary(s)
	}
}

// State is a step of the run.
type State int

const (
	StateInit State = iota
	StateSplittingChunks
	StateProcessingChunk
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSplittingChunks:
		return "splitting_chunks"
	case StateProcessingChunk:
		return "processing_chunk"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
