package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/MrMahile/rsort/internal/config"
	"github.com/MrMahile/rsort/internal/logctx"
	"github.com/MrMahile/rsort/internal/observability"
	"github.com/MrMahile/rsort/pkg/checkpoint"
	"github.com/MrMahile/rsort/pkg/dedup"
	"github.com/MrMahile/rsort/pkg/fileutil"
	"github.com/MrMahile/rsort/pkg/logging"
	"github.com/MrMahile/rsort/pkg/membudget"
	"github.com/MrMahile/rsort/pkg/memdiag"
	"github.com/MrMahile/rsort/pkg/metrics"
)

const progressLogInterval = 2 * time.Second

func runDedup(cmd *cobra.Command, opts *options, input, output string) error {
	cfg, err := opts.resolve(cmd)
	if err != nil {
		return err
	}

	closer := logging.Init(logging.Options{
		Debug:          cfg.Log.Debug,
		Human:          cfg.Log.Human,
		File:           cfg.Log.File,
		FileMaxSizeMB:  cfg.Log.MaxSizeMB,
		FileMaxBackups: cfg.Log.MaxBackups,
	})
	defer closer.Close()

	ctx := logctx.WithRunID(cmd.Context(), *logging.L())
	log := logctx.FromContext(ctx)

	budget, err := membudget.Resolve(opts.memBudget, cfg.MemBudget)
	if err != nil {
		return usageError(err)
	}

	tracer, shutdown, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:    "rsort",
		ServiceVersion: Version,
		Endpoint:       cfg.Trace.Endpoint,
		Protocol:       cfg.Trace.Protocol,
		Insecure:       cfg.Trace.Insecure,
	})
	if err != nil {
		return usageError(err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("trace export incomplete")
		}
	}()

	stage, err := newStaging(ctx, cfg, input, output, opts.resume)
	if err != nil {
		return err
	}
	defer stage.cleanup()

	if err := stage.fetch(ctx); err != nil {
		return err
	}

	var store *checkpoint.Store
	if cfg.Checkpoint != "" {
		store, err = checkpoint.Open(cfg.Checkpoint)
		if err != nil {
			return usageError(err)
		}
		defer store.Close()
	}

	reporters := dedup.MultiReporter{dedup.NewLogReporter(log, progressLogInterval)}
	var prom *metrics.Reporter
	if cfg.MetricsFile != "" {
		prom = metrics.NewReporter()
		reporters = append(reporters, prom)
	}

	chunkSize, err := config.ParseChunkSize(cfg.ChunkSize)
	if err != nil {
		return usageError(fmt.Errorf("chunk size: %w", err))
	}
	log.Info().
		Str("input", input).
		Str("output", output).
		Int64("chunk_size", chunkSize).
		Int("threads", cfg.Threads).
		Uint64("mem_budget", budget.Total()).
		Str("mem_budget_source", string(budget.Source())).
		Bool("resume", opts.resume).
		Msg("starting rsort")

	summary, err := dedup.Run(ctx, dedup.Config{
		InputPath:       stage.localInput,
		OutputPath:      stage.localOutput,
		ChunkSize:       chunkSize,
		Workers:         cfg.Threads,
		ReadBufferSize:  config.Bytes(cfg.ReadBuffer),
		WriteBufferSize: config.Bytes(cfg.WriteBuffer),
		Reporter:        reporters,
		Checkpoint:      store,
		Resume:          opts.resume,
		Budget:          budget,
		MemDiag:         memdiag.FromEnv(),
		Tracer:          tracer,
	})
	if err != nil {
		return err
	}

	if err := stage.publish(ctx); err != nil {
		return err
	}
	if cfg.SummaryJSON != "" {
		if err := writeSummary(cfg.SummaryJSON, summary); err != nil {
			return outputError(err)
		}
	}
	if prom != nil {
		if err := prom.WriteTextfile(cfg.MetricsFile); err != nil {
			return outputError(err)
		}
	}
	return nil
}

func writeSummary(path string, s *dedup.Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := fileutil.EnsureParentDir(path); err != nil {
		return err
	}
	return fileutil.WriteTmpThenMove(path, func(tmp string) error {
		return os.WriteFile(tmp, append(data, '\n'), 0o644)
	})
}

func outputError(err error) error {
	return fmt.Errorf("%w: %w", dedup.ErrOutputUnwritable, err)
}

func inputError(err error) error {
	return fmt.Errorf("%w: %w", dedup.ErrInputUnavailable, err)
}
