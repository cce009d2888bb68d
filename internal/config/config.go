// Package config loads rsort's optional YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/MrMahile/rsort/pkg/membudget"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv. RSORT_MEM_BUDGET is resolved by
// membudget.Resolve.
const (
	EnvWorkers   = "RSORT_WORKERS"
	EnvChunkSize = "RSORT_CHUNK_SIZE"
)

// Config holds every setting that may come from a file. Sizes are human
// strings ("50MiB", "1GB"); a bare number of chunk size means MiB.
type Config struct {
	ChunkSize   string `yaml:"chunk_size"`
	Threads     int    `yaml:"threads"`
	MemBudget   string `yaml:"mem_budget"`
	ReadBuffer  string `yaml:"read_buffer"`
	WriteBuffer string `yaml:"write_buffer"`
	TmpDir      string `yaml:"tmp_dir"`

	Checkpoint  string `yaml:"checkpoint"`
	SummaryJSON string `yaml:"summary_json"`
	MetricsFile string `yaml:"metrics_file"`

	Log   LogConfig   `yaml:"log"`
	Trace TraceConfig `yaml:"trace"`
	S3    S3Config    `yaml:"s3"`
}

type LogConfig struct {
	Debug      bool   `yaml:"debug"`
	Human      bool   `yaml:"human"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type TraceConfig struct {
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"`
	Insecure bool   `yaml:"insecure"`
}

type S3Config struct {
	Concurrency int    `yaml:"concurrency"`
	PartSize    string `yaml:"part_size"`
}

// Default returns the built-in settings. Threads 0 means GOMAXPROCS.
func Default() Config {
	return Config{
		ChunkSize:   "50MiB",
		ReadBuffer:  "256KiB",
		WriteBuffer: "4MiB",
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		Trace: TraceConfig{Protocol: "grpc"},
		S3:    S3Config{PartSize: "16MiB"},
	}
}

// Load reads path and fills anything it leaves unset from Default. An empty
// path returns Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, rejecting unknown keys, and merges in defaults.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if err := mergo.Merge(&cfg, Default()); err != nil {
		return Config{}, fmt.Errorf("merge defaults: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides file values with RSORT_WORKERS and RSORT_CHUNK_SIZE.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvWorkers, err)
		}
		c.Threads = n
	}
	if v := os.Getenv(EnvChunkSize); v != "" {
		c.ChunkSize = v
	}
	return nil
}

// Validate checks that every size parses and counts are in range.
func (c Config) Validate() error {
	if c.Threads < 0 {
		return fmt.Errorf("threads must not be negative, got %d", c.Threads)
	}
	if _, err := ParseChunkSize(c.ChunkSize); err != nil {
		return fmt.Errorf("chunk_size: %w", err)
	}
	for name, v := range map[string]string{
		"read_buffer":  c.ReadBuffer,
		"write_buffer": c.WriteBuffer,
		"s3.part_size": c.S3.PartSize,
	} {
		n, err := membudget.ParseHumanSize(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if n == 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.MemBudget != "" {
		if _, err := membudget.ParseHumanSize(c.MemBudget); err != nil {
			return fmt.Errorf("mem_budget: %w", err)
		}
	}
	if c.S3.Concurrency < 0 {
		return fmt.Errorf("s3.concurrency must not be negative, got %d", c.S3.Concurrency)
	}
	switch c.Trace.Protocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("trace.protocol must be grpc or http, got %q", c.Trace.Protocol)
	}
	return nil
}

// ParseChunkSize parses a chunk size. A bare number is MiB; anything else
// goes through membudget.ParseHumanSize. Zero is rejected.
func ParseChunkSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	var n uint64
	if mib, err := strconv.ParseUint(s, 10, 64); err == nil {
		n = mib << 20
	} else {
		n, err = membudget.ParseHumanSize(s)
		if err != nil {
			return 0, err
		}
	}
	if n == 0 {
		return 0, errors.New("chunk size must be positive")
	}
	return int64(n), nil
}

// Bytes parses a size already checked by Validate.
func Bytes(s string) int {
	n, _ := membudget.ParseHumanSize(s)
	return int(n)
}
