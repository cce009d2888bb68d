package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrMahile/rsort/internal/config"
	"github.com/MrMahile/rsort/pkg/dedup"
)

type options struct {
	configPath    string
	chunkSize     string
	threads       int
	debug         bool
	human         bool
	logFile       string
	summaryJSON   string
	metricsFile   string
	checkpoint    string
	resume        bool
	memBudget     string
	tmpDir        string
	traceEndpoint string
	traceProtocol string
}

func (o *options) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "YAML config file")
	f.StringVar(&o.chunkSize, "chunk-size", "", "target chunk size; a bare number is MiB (default 50MiB)")
	f.IntVar(&o.threads, "threads", 0, "chunks processed at once, at least 1; 1 keeps strict first-occurrence order (default GOMAXPROCS)")
	f.BoolVar(&o.debug, "debug", false, "enable debug logging")
	f.BoolVar(&o.human, "human", false, "human-readable console logs")
	f.StringVar(&o.logFile, "log-file", "", "also write JSON logs to this rotating file")
	f.StringVar(&o.summaryJSON, "summary-json", "", "write the run summary as JSON to this file")
	f.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus textfile metrics to this file")
	f.StringVar(&o.checkpoint, "checkpoint", "", "checkpoint database updated after every chunk")
	f.BoolVar(&o.resume, "resume", false, "continue an interrupted run from --checkpoint")
	f.StringVar(&o.memBudget, "mem-budget", "", "memory budget for the line set, e.g. 4GiB (default 50% of RAM)")
	f.StringVar(&o.tmpDir, "tmp", "", "directory for files staged from or to S3 (default system temp)")
	f.StringVar(&o.traceEndpoint, "trace-endpoint", "", "OTLP collector host:port; empty disables tracing")
	f.StringVar(&o.traceProtocol, "trace-protocol", "", "OTLP protocol: grpc or http")
}

// resolve loads the config file, applies the environment and then every
// flag the user set explicitly.
func (o *options) resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, usageError(err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, usageError(err)
	}

	flags := cmd.Flags()
	if flags.Changed("chunk-size") {
		cfg.ChunkSize = o.chunkSize
	}
	if flags.Changed("threads") {
		if o.threads < 1 {
			return cfg, usageError(fmt.Errorf("--threads must be a positive integer, got %d", o.threads))
		}
		cfg.Threads = o.threads
	}
	if flags.Changed("tmp") {
		cfg.TmpDir = o.tmpDir
	}
	if flags.Changed("checkpoint") {
		cfg.Checkpoint = o.checkpoint
	}
	if flags.Changed("summary-json") {
		cfg.SummaryJSON = o.summaryJSON
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = o.metricsFile
	}
	if flags.Changed("log-file") {
		cfg.Log.File = o.logFile
	}
	if flags.Changed("trace-endpoint") {
		cfg.Trace.Endpoint = o.traceEndpoint
	}
	if flags.Changed("trace-protocol") {
		cfg.Trace.Protocol = o.traceProtocol
	}
	cfg.Log.Debug = cfg.Log.Debug || o.debug
	cfg.Log.Human = cfg.Log.Human || o.human

	if err := cfg.Validate(); err != nil {
		return cfg, usageError(err)
	}
	if o.resume && cfg.Checkpoint == "" {
		return cfg, usageError(fmt.Errorf("--resume requires --checkpoint"))
	}
	return cfg, nil
}

func usageError(err error) error {
	return fmt.Errorf("%w: %w", dedup.ErrInvalidConfig, err)
}
