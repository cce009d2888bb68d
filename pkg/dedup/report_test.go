package dedup

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/MrMahile/rsort/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLogReporterProgress(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogReporter(zerolog.New(&buf), 0)

	r.Progress(Progress{ChunksTotal: 10, ChunkIndex: 2, ChunksDone: 2, LinesProcessed: 300000, Elapsed: time.Second})
	r.Progress(Progress{ChunksTotal: 10, ChunkIndex: 3, ChunksDone: 3, LinesProcessed: 400000, Elapsed: 2 * time.Second})

	out := buf.String()
	require.Equal(t, 2, strings.Count(out, `"message":"progress"`))
	require.Contains(t, out, `"lines_processed":300000`)
	require.Contains(t, out, `"chunks_total":10`)
	require.Contains(t, out, `"elapsed_ms":2000`)
}

func TestLogReporterThrottles(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogReporter(zerolog.New(&buf), time.Hour)

	for i := 0; i < 5; i++ {
		r.Progress(Progress{LinesProcessed: uint64(i)})
	}
	require.Equal(t, 1, strings.Count(buf.String(), `"message":"progress"`))
}

func TestLogReporterSummary(t *testing.T) {
	var buf bytes.Buffer
	logging.SetPrettyMode(true)
	defer logging.SetPrettyMode(false)

	r := NewLogReporter(zerolog.New(&buf), 0)
	r.Summary(Summary{
		LinesProcessed:    6,
		DuplicatesRemoved: 2,
		UniqueLines:       4,
		BytesRead:         36,
		Chunks:            1,
		Workers:           1,
		Elapsed:           time.Second,
	})

	out := buf.String()
	for _, want := range []string{
		`"event":"run_completed"`,
		`"lines_processed":6`,
		`"duplicates_removed":2`,
		`"unique_lines":4`,
		`"resumed":false`,
		`"lines_per_sec":6`,
		`"duration_ms":1000`,
	} {
		require.Contains(t, out, want)
	}
}

func TestLogReporterPrettyFields(t *testing.T) {
	var buf bytes.Buffer
	logging.SetPrettyMode(true)
	defer logging.SetPrettyMode(false)

	NewLogReporter(zerolog.New(&buf), 0).Progress(Progress{LinesProcessed: 2_000_000, Elapsed: time.Second})
	require.Contains(t, buf.String(), `"lines_h":"2.00M"`)
	require.Contains(t, buf.String(), `"rate_h":"2.00M lines/s"`)
}
