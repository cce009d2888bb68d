package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/MrMahile/rsort/pkg/dedup"
)

func runCLI(t *testing.T, ctx context.Context, args ...string) (int, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(ctx, args, &stdout, &stderr)
	return code, stdout.String() + stderr.String()
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunNoArgs(t *testing.T) {
	code, out := runCLI(t, context.Background())
	if code != ExitUsage {
		t.Errorf("exit code = %d, want %d", code, ExitUsage)
	}
	if !strings.Contains(out, "accepts 2 arg(s)") {
		t.Errorf("expected argument count error, got: %s", out)
	}
}

func TestRunUnknownFlag(t *testing.T) {
	code, _ := runCLI(t, context.Background(), "--bogus", "a", "b")
	if code != ExitUsage {
		t.Errorf("exit code = %d, want %d", code, ExitUsage)
	}
}

func TestVersion(t *testing.T) {
	code, out := runCLI(t, context.Background(), "version")
	if code != ExitOK {
		t.Fatalf("exit code = %d, want 0: %s", code, out)
	}
	if !strings.HasPrefix(out, "rsort ") {
		t.Errorf("unexpected version output: %q", out)
	}
}

func TestDedupLocalFiles(t *testing.T) {
	in := writeInput(t, "line1\nline2\nline1\nline3\nline2\nline4\n")
	dir := t.TempDir()
	out := filepath.Join(dir, "nested", "out.txt")
	summaryPath := filepath.Join(dir, "summary.json")
	metricsPath := filepath.Join(dir, "rsort.prom")

	code, logs := runCLI(t, context.Background(), in, out,
		"--threads", "1",
		"--chunk-size", "1KiB",
		"--summary-json", summaryPath,
		"--metrics-file", metricsPath,
	)
	if code != ExitOK {
		t.Fatalf("exit code = %d: %s", code, logs)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if want := "line1\nline2\nline3\nline4\n"; string(got) != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	data, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatal(err)
	}
	var s dedup.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if s.LinesProcessed != 6 || s.DuplicatesRemoved != 2 || s.UniqueLines != 4 {
		t.Errorf("summary = %+v", s)
	}

	prom, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(prom), "rsort_lines_processed_total 6") {
		t.Errorf("metrics file missing line count:\n%s", prom)
	}
}

func TestDedupConfigFile(t *testing.T) {
	in := writeInput(t, "Apple\napple\nAPPLE\nBanana\n")
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	summaryPath := filepath.Join(dir, "summary.json")
	cfgPath := filepath.Join(dir, "rsort.yaml")
	cfg := fmt.Sprintf("threads: 2\nchunk_size: \"1\"\nsummary_json: %s\n", summaryPath)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	code, logs := runCLI(t, context.Background(), in, out, "--config", cfgPath)
	if code != ExitOK {
		t.Fatalf("exit code = %d: %s", code, logs)
	}
	got, _ := os.ReadFile(out)
	if string(got) != "Apple\nBanana\n" {
		t.Errorf("output = %q", got)
	}
	if _, err := os.Stat(summaryPath); err != nil {
		t.Errorf("summary from config file not written: %v", err)
	}
}

func TestDedupCompressedInput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "input.txt.zst")
	f, err := os.Create(in)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Write([]byte("b\nB\na\nb\n")); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	tmp := filepath.Join(dir, "tmp")
	if err := os.Mkdir(tmp, 0o755); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.txt")
	code, logs := runCLI(t, context.Background(), in, out, "--tmp", tmp)
	if code != ExitOK {
		t.Fatalf("exit code = %d: %s", code, logs)
	}
	got, _ := os.ReadFile(out)
	if string(got) != "b\na\n" {
		t.Errorf("output = %q", got)
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("staging directory not cleaned up: %v", entries)
	}
}

func TestDedupMissingInput(t *testing.T) {
	dir := t.TempDir()
	code, out := runCLI(t, context.Background(), filepath.Join(dir, "nope.txt"), filepath.Join(dir, "out.txt"))
	if code != ExitInput {
		t.Errorf("exit code = %d, want %d: %s", code, ExitInput, out)
	}
	if !strings.Contains(out, "nope.txt") {
		t.Errorf("error should name the input path: %s", out)
	}
}

func TestDedupUnwritableOutput(t *testing.T) {
	in := writeInput(t, "a\n")
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	code, out := runCLI(t, context.Background(), in, filepath.Join(blocker, "out.txt"))
	if code != ExitOutput {
		t.Errorf("exit code = %d, want %d: %s", code, ExitOutput, out)
	}
}

func TestDedupBadChunkSize(t *testing.T) {
	in := writeInput(t, "a\n")
	code, _ := runCLI(t, context.Background(), in, filepath.Join(t.TempDir(), "out"), "--chunk-size", "huge")
	if code != ExitUsage {
		t.Errorf("exit code = %d, want %d", code, ExitUsage)
	}
}

func TestDedupRejectsNonPositiveThreads(t *testing.T) {
	in := writeInput(t, "a\n")
	for _, n := range []string{"0", "-2"} {
		code, out := runCLI(t, context.Background(), in, filepath.Join(t.TempDir(), "out"), "--threads", n)
		if code != ExitUsage {
			t.Errorf("--threads %s: exit code = %d, want %d", n, code, ExitUsage)
		}
		if !strings.Contains(out, "positive integer") {
			t.Errorf("--threads %s: unexpected error: %s", n, out)
		}
	}
}

func TestDedupResumeNeedsCheckpoint(t *testing.T) {
	in := writeInput(t, "a\n")
	code, out := runCLI(t, context.Background(), in, filepath.Join(t.TempDir(), "out"), "--resume")
	if code != ExitUsage {
		t.Errorf("exit code = %d, want %d", code, ExitUsage)
	}
	if !strings.Contains(out, "--checkpoint") {
		t.Errorf("expected --checkpoint hint, got: %s", out)
	}
}

func TestDedupResumeRejectsS3(t *testing.T) {
	dir := t.TempDir()
	code, _ := runCLI(t, context.Background(), "s3://bucket/in.txt", filepath.Join(dir, "out"),
		"--resume", "--checkpoint", filepath.Join(dir, "ckpt.db"))
	if code != ExitUsage {
		t.Errorf("exit code = %d, want %d", code, ExitUsage)
	}
}

func TestDedupCheckpointCleared(t *testing.T) {
	in := writeInput(t, "x\ny\nX\n")
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	ckpt := filepath.Join(dir, "run.db")

	code, logs := runCLI(t, context.Background(), in, out, "--checkpoint", ckpt, "--threads", "1")
	if code != ExitOK {
		t.Fatalf("exit code = %d: %s", code, logs)
	}
	// Resuming a finished run starts over because the checkpoint was cleared.
	code, logs = runCLI(t, context.Background(), in, out, "--checkpoint", ckpt, "--resume", "--threads", "1")
	if code != ExitOK {
		t.Fatalf("resume exit code = %d: %s", code, logs)
	}
	got, _ := os.ReadFile(out)
	if string(got) != "x\ny\n" {
		t.Errorf("output = %q", got)
	}
}

func TestDedupInterrupted(t *testing.T) {
	in := writeInput(t, "a\nb\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, out := runCLI(t, ctx, in, filepath.Join(t.TempDir(), "out.txt"))
	if code != ExitInterrupted {
		t.Errorf("exit code = %d, want %d: %s", code, ExitInterrupted, out)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{errors.New("unknown flag"), ExitUsage},
		{usageError(errors.New("bad")), ExitUsage},
		{inputError(errors.New("gone")), ExitInput},
		{outputError(errors.New("denied")), ExitOutput},
		{fmt.Errorf("chunk 3: %w", dedup.ErrIO), ExitIO},
		{fmt.Errorf("dedup canceled: %w", context.Canceled), ExitInterrupted},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
