package logging

import (
	"sync"
	"time"

	"github.com/MrMahile/rsort/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// ProgressTracker tracks completed chunks and bytes of a run and estimates
// the time remaining from the byte rate. It is safe for concurrent use.
type ProgressTracker struct {
	startTime   time.Time
	totalBytes  int64
	totalChunks int64

	mu         sync.Mutex
	doneBytes  int64
	doneChunks int64
}

// NewProgressTracker creates a tracker for totalChunks chunks spanning
// totalBytes bytes.
func NewProgressTracker(totalChunks, totalBytes int64) *ProgressTracker {
	return &ProgressTracker{
		startTime:   time.Now(),
		totalBytes:  totalBytes,
		totalChunks: totalChunks,
	}
}

// RecordChunk records that a chunk of n bytes completed.
func (pt *ProgressTracker) RecordChunk(n int64) {
	pt.mu.Lock()
	pt.doneBytes += n
	pt.doneChunks++
	pt.mu.Unlock()
}

// Chunks returns completed and total chunk counts.
func (pt *ProgressTracker) Chunks() (done, total int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.doneChunks, pt.totalChunks
}

// ProgressPct returns the byte progress percentage (0-100).
func (pt *ProgressTracker) ProgressPct() float64 {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pt.totalBytes == 0 {
		return 100.0
	}
	return float64(pt.doneBytes) * 100.0 / float64(pt.totalBytes)
}

// ETA extrapolates the remaining time from the bytes processed so far.
func (pt *ProgressTracker) ETA() time.Duration {
	pt.mu.Lock()
	done, total := pt.doneBytes, pt.totalBytes
	pt.mu.Unlock()
	return estimate(time.Since(pt.startTime), done, total)
}

func estimate(elapsed time.Duration, done, total int64) time.Duration {
	if done <= 0 || done >= total {
		return 0
	}
	return time.Duration(float64(elapsed) * float64(total-done) / float64(done))
}

// Elapsed returns time since tracking started.
func (pt *ProgressTracker) Elapsed() time.Duration {
	return time.Since(pt.startTime)
}

// CompletionEvent helps build consistent completion log events.
type CompletionEvent struct {
	log     zerolog.Logger
	event   string
	phase   string
	elapsed time.Duration
	fields  map[string]interface{}
}

// NewCompletionEvent creates a new completion event builder.
func NewCompletionEvent(log zerolog.Logger, event, phase string, elapsed time.Duration) *CompletionEvent {
	return &CompletionEvent{
		log:     log,
		event:   event,
		phase:   phase,
		elapsed: elapsed,
		fields:  make(map[string]interface{}),
	}
}

// Str adds a string field.
func (ce *CompletionEvent) Str(key, val string) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Int adds an int field.
func (ce *CompletionEvent) Int(key string, val int) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Bool adds a bool field.
func (ce *CompletionEvent) Bool(key string, val bool) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Int64 adds an int64 field.
func (ce *CompletionEvent) Int64(key string, val int64) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Float64 adds a float64 field.
func (ce *CompletionEvent) Float64(key string, val float64) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Bytes adds byte count with optional human-readable companion.
func (ce *CompletionEvent) Bytes(key string, bytes int64) *CompletionEvent {
	ce.fields[key] = bytes
	if IsPrettyMode() {
		ce.fields[key+"_h"] = humanfmt.Bytes(bytes)
	}
	return ce
}

// Count adds count with optional human-readable companion.
func (ce *CompletionEvent) Count(key string, n int64) *CompletionEvent {
	ce.fields[key] = n
	if IsPrettyMode() {
		ce.fields[key+"_h"] = humanfmt.Count(n)
	}
	return ce
}

// Progress adds chunk progress fields (done, total, percentage, optional ETA).
func (ce *CompletionEvent) Progress(pt *ProgressTracker) *CompletionEvent {
	done, total := pt.Chunks()
	ce.fields["chunks_done"] = done
	ce.fields["chunks_total"] = total
	ce.fields["progress_pct"] = pt.ProgressPct()
	if eta := pt.ETA(); eta > 0 {
		ce.fields["eta_ms"] = eta.Milliseconds()
		if IsPrettyMode() {
			ce.fields["eta_h"] = humanfmt.Duration(eta)
		}
	}
	return ce
}

// LineRate adds a lines-per-second field for n lines over the event's elapsed
// time.
func (ce *CompletionEvent) LineRate(n int64) *CompletionEvent {
	if ce.elapsed > 0 {
		ce.fields["lines_per_sec"] = humanfmt.PerSecond(n, ce.elapsed)
		if IsPrettyMode() {
			ce.fields["lines_per_sec_h"] = humanfmt.Rate(n, ce.elapsed, "lines")
		}
	}
	return ce
}

// Throughput adds throughput fields.
func (ce *CompletionEvent) Throughput(bytes int64) *CompletionEvent {
	if ce.elapsed > 0 {
		ce.fields["throughput_bps"] = humanfmt.PerSecond(bytes, ce.elapsed)
		if IsPrettyMode() {
			ce.fields["throughput_h"] = humanfmt.Throughput(bytes, ce.elapsed)
		}
	}
	return ce
}

// Log emits the completion event at info level.
func (ce *CompletionEvent) Log(msg string) {
	ce.emit(ce.log.Info(), msg)
}

// LogDebug emits the completion event at debug level.
func (ce *CompletionEvent) LogDebug(msg string) {
	ce.emit(ce.log.Debug(), msg)
}

func (ce *CompletionEvent) emit(e *zerolog.Event, msg string) {
	e = e.Str("event", ce.event).
		Str("phase", ce.phase).
		Int64("duration_ms", ce.elapsed.Milliseconds())

	if IsPrettyMode() {
		e = e.Str("duration_h", humanfmt.Duration(ce.elapsed))
	}

	for k, v := range ce.fields {
		e = e.Interface(k, v)
	}

	e.Msg(msg)
}

// ChunkComplete starts a chunk completion event.
func ChunkComplete(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "chunk_completed", phase, elapsed)
}

// RunComplete starts a run completion event.
func RunComplete(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return NewCompletionEvent(log, "run_completed", phase, elapsed)
}
