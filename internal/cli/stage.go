package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/MrMahile/rsort/internal/config"
	"github.com/MrMahile/rsort/pkg/fileutil"
	"github.com/MrMahile/rsort/pkg/humanfmt"
	"github.com/MrMahile/rsort/pkg/logging"
	"github.com/MrMahile/rsort/pkg/s3stage"
	"github.com/MrMahile/rsort/pkg/unpack"
)

// staging maps s3:// and compressed arguments to plain local files inside a
// per-run directory. Local uncompressed paths pass through untouched.
type staging struct {
	input, output           string
	localInput, localOutput string
	format                  unpack.Format
	dir                     string
	client                  *s3stage.Client
}

func newStaging(ctx context.Context, cfg config.Config, input, output string, resume bool) (*staging, error) {
	s := &staging{
		input:       input,
		output:      output,
		localInput:  input,
		localOutput: output,
		format:      unpack.Detect(input),
	}
	remote := s3stage.IsS3URI(input) || s3stage.IsS3URI(output)
	if !remote && s.format == unpack.FormatNone {
		return s, nil
	}
	if resume {
		return nil, usageError(fmt.Errorf("--resume needs a local, uncompressed INPUT and a local OUTPUT"))
	}

	if remote {
		for _, uri := range []string{input, output} {
			if !s3stage.IsS3URI(uri) {
				continue
			}
			if _, err := s3stage.ParseS3URI(uri); err != nil {
				return nil, usageError(err)
			}
		}
		client, err := s3stage.NewClient(ctx, s3stage.Config{
			Concurrency: cfg.S3.Concurrency,
			PartSize:    int64(config.Bytes(cfg.S3.PartSize)),
		})
		if err != nil {
			return nil, usageError(err)
		}
		s.client = client
	}

	dir, err := os.MkdirTemp(cfg.TmpDir, "rsort-run-")
	if err != nil {
		return nil, usageError(fmt.Errorf("create staging directory: %w", err))
	}
	s.dir = dir

	if s3stage.IsS3URI(output) {
		path, err := s3stage.TempPath(dir)
		if err != nil {
			s.cleanup()
			return nil, usageError(err)
		}
		s.localOutput = path
	}
	return s, nil
}

// fetch downloads and decompresses the input as needed.
func (s *staging) fetch(ctx context.Context) error {
	if s.client != nil && s3stage.IsS3URI(s.input) {
		path, err := s.client.Download(ctx, s.input, s.dir)
		if err != nil {
			return inputError(err)
		}
		s.localInput = path
	}
	if s.format == unpack.FormatNone {
		return nil
	}

	if _, err := fileutil.IsRegular(s.localInput); err != nil {
		return inputError(err)
	}
	dst, err := s3stage.TempPath(s.dir)
	if err != nil {
		return inputError(err)
	}
	start := time.Now()
	n, err := unpack.ToFile(ctx, s.localInput, dst, s.format)
	if err != nil {
		return inputError(err)
	}
	logging.L().Info().
		Str("input", s.input).
		Str("format", s.format.String()).
		Str("size", humanfmt.Bytes(n)).
		Dur("elapsed", time.Since(start)).
		Msg("decompressed input")
	s.localInput = dst
	return nil
}

// publish uploads the output after a successful run.
func (s *staging) publish(ctx context.Context) error {
	if s.client == nil || !s3stage.IsS3URI(s.output) {
		return nil
	}
	if err := s.client.Upload(ctx, s.localOutput, s.output); err != nil {
		return outputError(err)
	}
	return nil
}

func (s *staging) cleanup() {
	if s.dir == "" {
		return
	}
	if err := fileutil.CleanupTmpFiles(s.dir, s3stage.StagePrefix); err != nil {
		logging.L().Warn().Err(err).Str("dir", s.dir).Msg("failed to remove staged files")
	}
	os.Remove(s.dir)
}
