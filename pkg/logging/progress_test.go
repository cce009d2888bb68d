package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestProgressTracker_BasicOperations(t *testing.T) {
	pt := NewProgressTracker(4, 400)

	pt.RecordChunk(100)
	pt.RecordChunk(100)

	done, total := pt.Chunks()
	if done != 2 {
		t.Errorf("expected done=2, got %d", done)
	}
	if total != 4 {
		t.Errorf("expected total=4, got %d", total)
	}
	if pct := pt.ProgressPct(); pct != 50.0 {
		t.Errorf("expected progress 50%%, got %.1f%%", pct)
	}
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	pt := NewProgressTracker(0, 0)

	if pct := pt.ProgressPct(); pct != 100.0 {
		t.Errorf("expected 100%% for zero total, got %.1f%%", pct)
	}
	if eta := pt.ETA(); eta != 0 {
		t.Errorf("expected 0 ETA for zero total, got %v", eta)
	}
}

func TestEstimate(t *testing.T) {
	tests := []struct {
		name        string
		elapsed     time.Duration
		done, total int64
		want        time.Duration
	}{
		{"nothing_done", time.Second, 0, 100, 0},
		{"half_done", 10 * time.Second, 50, 100, 10 * time.Second},
		{"quarter_done", time.Second, 25, 100, 3 * time.Second},
		{"all_done", time.Second, 100, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := estimate(tt.elapsed, tt.done, tt.total); got != tt.want {
				t.Errorf("estimate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompletionEvent_BasicFields(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	SetPrettyMode(false)

	ChunkComplete(log, "process", 500*time.Millisecond).
		Str("key", "value").
		Int("chunk_index", 3).
		Int64("lines", 1000000).
		Log("chunk done")

	output := buf.String()
	for _, want := range []string{
		`"event":"chunk_completed"`,
		`"phase":"process"`,
		`"duration_ms":500`,
		`"key":"value"`,
		`"chunk_index":3`,
		`"lines":1000000`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "duration_h") {
		t.Errorf("unexpected human field without pretty mode: %s", output)
	}
}

func TestCompletionEvent_BytesAndCounts(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	SetPrettyMode(true)
	defer SetPrettyMode(false)

	RunComplete(log, "finalize", time.Second).
		Bytes("bytes_read", 1073741824).
		Count("lines_processed", 1500000).
		Log("run done")

	output := buf.String()
	for _, want := range []string{
		`"event":"run_completed"`,
		`"bytes_read":1073741824`,
		`"lines_processed":1500000`,
		`"bytes_read_h":"1.00 GiB"`,
		`"lines_processed_h":"1.50M"`,
		`"duration_h":"1.00s"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output, got: %s", want, output)
		}
	}
}

func TestCompletionEvent_Progress(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	SetPrettyMode(false)

	pt := NewProgressTracker(10, 1000)
	pt.RecordChunk(100)

	ChunkComplete(log, "process", time.Second).
		Progress(pt).
		Log("chunk done")

	output := buf.String()
	for _, want := range []string{
		`"chunks_done":1`,
		`"chunks_total":10`,
		`"progress_pct":10`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output, got: %s", want, output)
		}
	}
}

func TestCompletionEvent_RatesAndThroughput(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	SetPrettyMode(true)
	defer SetPrettyMode(false)

	RunComplete(log, "finalize", 2*time.Second).
		LineRate(6_000_000).
		Throughput(200 * 1024 * 1024).
		Log("run done")

	output := buf.String()
	for _, want := range []string{
		`"lines_per_sec":3000000`,
		`"lines_per_sec_h":"3.00M lines/s"`,
		`"throughput_bps":104857600`,
		`"throughput_h":"100.00 MiB/s"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output, got: %s", want, output)
		}
	}
}

func TestCompletionEvent_ZeroElapsedSkipsRates(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	SetPrettyMode(false)

	RunComplete(log, "finalize", 0).LineRate(10).Throughput(10).Log("empty run")

	output := buf.String()
	if strings.Contains(output, "lines_per_sec") || strings.Contains(output, "throughput_bps") {
		t.Errorf("expected no rate fields for zero elapsed, got: %s", output)
	}
}

func TestCompletionEvent_LogDebug(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.InfoLevel)

	ChunkComplete(log, "process", time.Millisecond).LogDebug("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output at info level, got: %s", buf.String())
	}
}
