// Package metrics exposes run counters as Prometheus metrics and can write
// them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"sync"

	"github.com/MrMahile/rsort/pkg/dedup"
	"github.com/MrMahile/rsort/pkg/fileutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reporter is a dedup.Reporter that updates metrics on a private registry.
type Reporter struct {
	registry *prometheus.Registry

	lines       prometheus.Counter
	duplicates  prometheus.Counter
	unique      prometheus.Gauge
	chunks      prometheus.Counter
	invalid     prometheus.Counter
	bytesRead   prometheus.Counter
	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge

	mu         sync.Mutex
	lastLines  uint64
	lastChunks int
}

// NewReporter creates a Reporter with its own registry.
func NewReporter() *Reporter {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Reporter{
		registry: reg,
		lines: f.NewCounter(prometheus.CounterOpts{
			Name: "rsort_lines_processed_total",
			Help: "The total number of input lines read",
		}),
		duplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "rsort_duplicates_removed_total",
			Help: "The total number of duplicate lines dropped",
		}),
		unique: f.NewGauge(prometheus.GaugeOpts{
			Name: "rsort_unique_lines",
			Help: "The number of distinct lines written by the last run",
		}),
		chunks: f.NewCounter(prometheus.CounterOpts{
			Name: "rsort_chunks_completed_total",
			Help: "The total number of chunks committed to output",
		}),
		invalid: f.NewCounter(prometheus.CounterOpts{
			Name: "rsort_invalid_utf8_lines_total",
			Help: "The total number of lines that were not valid UTF-8",
		}),
		bytesRead: f.NewCounter(prometheus.CounterOpts{
			Name: "rsort_bytes_read_total",
			Help: "The total number of input bytes processed",
		}),
		duration: f.NewGauge(prometheus.GaugeOpts{
			Name: "rsort_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "rsort_last_success_timestamp_seconds",
			Help: "Unix time the last run completed",
		}),
	}
}

// Registry returns the registry holding the metrics.
func (r *Reporter) Registry() *prometheus.Registry {
	return r.registry
}

// Progress advances the line and chunk counters. Notifications may arrive out
// of order from concurrent workers; only forward movement is counted.
func (r *Reporter) Progress(p dedup.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.LinesProcessed > r.lastLines {
		r.lines.Add(float64(p.LinesProcessed - r.lastLines))
		r.lastLines = p.LinesProcessed
	}
	if p.ChunksDone > r.lastChunks {
		r.chunks.Add(float64(p.ChunksDone - r.lastChunks))
		r.lastChunks = p.ChunksDone
	}
}

func (r *Reporter) Summary(s dedup.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.LinesProcessed > r.lastLines {
		r.lines.Add(float64(s.LinesProcessed - r.lastLines))
		r.lastLines = s.LinesProcessed
	}
	if s.Chunks > r.lastChunks {
		r.chunks.Add(float64(s.Chunks - r.lastChunks))
		r.lastChunks = s.Chunks
	}
	r.duplicates.Add(float64(s.DuplicatesRemoved))
	r.invalid.Add(float64(s.InvalidLines))
	r.bytesRead.Add(float64(s.BytesRead))
	r.unique.Set(float64(s.UniqueLines))
	r.duration.Set(s.Elapsed.Seconds())
	r.lastSuccess.SetToCurrentTime()
}

// WriteTextfile writes all metrics to path for the node_exporter textfile
// collector. The file is replaced atomically.
func (r *Reporter) WriteTextfile(path string) error {
	if err := fileutil.EnsureParentDir(path); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
