package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_DoesNotPanic(t *testing.T) {
	for _, opts := range []Options{
		{},
		{Debug: true},
		{Human: true},
		{Debug: true, Human: true},
	} {
		closer := Init(opts)
		L().Info().Msg("test info")
		L().Debug().Msg("test debug")
		if err := closer.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	}
	SetPrettyMode(false)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func TestInit_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rsort.log")

	closer := Init(Options{File: path})
	L().Info().Str("probe", "value").Msg("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(data, []byte(`"probe":"value"`)) {
		t.Errorf("expected JSON line in log file, got: %s", data)
	}
	Init(Options{})
}

func TestInit_PrettyMode(t *testing.T) {
	Init(Options{Human: true})
	if !IsPrettyMode() {
		t.Error("expected pretty mode after Init with Human")
	}
	Init(Options{})
	if IsPrettyMode() {
		t.Error("expected pretty mode off after Init without Human")
	}
}

func TestWithPhase(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	log := WithPhase("plan")
	log.Info().Msg("test message")

	if !bytes.Contains(buf.Bytes(), []byte(`"phase":"plan"`)) {
		t.Errorf("expected phase field in output, got: %s", buf.String())
	}
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	customLogger := zerolog.New(&buf).With().Str("custom", "field").Logger()
	SetLogger(customLogger)

	L().Info().Msg("test")

	if !bytes.Contains(buf.Bytes(), []byte(`"custom":"field"`)) {
		t.Errorf("expected custom field in output, got: %s", buf.String())
	}
}
