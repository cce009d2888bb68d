package dedup

import (
	"sync"
	"time"

	"github.com/MrMahile/rsort/pkg/humanfmt"
	"github.com/MrMahile/rsort/pkg/logging"
	"github.com/rs/zerolog"
)

// LogReporter logs progress at info level, at most once per Interval, and
// the summary as a run_completed event.
type LogReporter struct {
	log      zerolog.Logger
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewLogReporter returns a LogReporter. interval <= 0 logs every
// notification.
func NewLogReporter(log zerolog.Logger, interval time.Duration) *LogReporter {
	return &LogReporter{log: log, interval: interval}
}

func (r *LogReporter) Progress(p Progress) {
	r.mu.Lock()
	now := time.Now()
	if r.interval > 0 && !r.last.IsZero() && now.Sub(r.last) < r.interval {
		r.mu.Unlock()
		return
	}
	r.last = now
	r.mu.Unlock()

	e := r.log.Info().
		Int("chunk_index", p.ChunkIndex).
		Int("chunks_done", p.ChunksDone).
		Int("chunks_total", p.ChunksTotal).
		Uint64("lines_processed", p.LinesProcessed).
		Int64("elapsed_ms", p.Elapsed.Milliseconds())
	if logging.IsPrettyMode() {
		e = e.Str("lines_h", humanfmt.Count(int64(p.LinesProcessed))).
			Str("rate_h", humanfmt.Rate(int64(p.LinesProcessed), p.Elapsed, "lines"))
	}
	e.Msg("progress")
}

func (r *LogReporter) Summary(s Summary) {
	logging.RunComplete(r.log, "dedup", s.Elapsed).
		Count("lines_processed", int64(s.LinesProcessed)).
		Count("duplicates_removed", int64(s.DuplicatesRemoved)).
		Count("unique_lines", int64(s.UniqueLines)).
		Count("invalid_utf8_lines", int64(s.InvalidLines)).
		Int("chunks", s.Chunks).
		Int("workers", s.Workers).
		Bytes("bytes_read", s.BytesRead).
		Bytes("bytes_written", s.BytesWritten).
		Bool("resumed", s.Resumed).
		LineRate(int64(s.LinesProcessed)).
		Throughput(s.BytesRead).
		Log("deduplication complete")
}
