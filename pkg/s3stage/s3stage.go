// Package s3stage moves rsort inputs and outputs between S3 and local files.
//
// The chunk planner needs random access, so an s3:// input is downloaded to
// a local file before the run, and an s3:// output is written locally and
// uploaded after a successful run.
package s3stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/MrMahile/rsort/pkg/humanfmt"
	"github.com/MrMahile/rsort/pkg/logging"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// StagePrefix starts the name of every staged file.
const StagePrefix = "rsort-stage-"

// Location is a parsed s3:// URI.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// IsS3URI reports whether s names an S3 object.
func IsS3URI(s string) bool {
	return strings.HasPrefix(s, "s3://")
}

// ParseS3URI parses s3://bucket/key. Both bucket and key are required.
func ParseS3URI(uri string) (Location, error) {
	if !IsS3URI(uri) {
		return Location{}, errors.New("invalid S3 URI: must start with s3://")
	}
	bucket, key, _ := strings.Cut(strings.TrimPrefix(uri, "s3://"), "/")
	if bucket == "" {
		return Location{}, errors.New("invalid S3 URI: missing bucket name")
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return Location{}, errors.New("invalid S3 URI: missing object key")
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// Config tunes the transfer managers.
type Config struct {
	// Concurrency is the number of parts transferred at once.
	// Default: NumCPU clamped to [4, 16].
	Concurrency int
	// PartSize is the size of each part in bytes. Default: 16 MiB.
	PartSize int64
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = min(max(runtime.NumCPU(), 4), 16)
	}
	if c.PartSize <= 0 {
		c.PartSize = 16 * 1024 * 1024
	}
	return c
}

type downloadAPI interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, opts ...func(*manager.Downloader)) (int64, error)
}

type uploadAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Client stages files through S3 transfer managers.
type Client struct {
	down downloadAPI
	up   uploadAPI
}

// NewClient creates a client from the default AWS configuration chain.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewClientWithConfig(awsCfg, cfg), nil
}

// NewClientWithConfig creates a client from an existing AWS config.
func NewClientWithConfig(awsCfg aws.Config, cfg Config) *Client {
	cfg = cfg.withDefaults()
	s3Client := s3.NewFromConfig(awsCfg)
	return &Client{
		down: manager.NewDownloader(s3Client, func(d *manager.Downloader) {
			d.Concurrency = cfg.Concurrency
			d.PartSize = cfg.PartSize
			d.BufferProvider = manager.NewPooledBufferedWriterReadFromProvider(int(cfg.PartSize))
		}),
		up: manager.NewUploader(s3Client, func(u *manager.Uploader) {
			u.Concurrency = cfg.Concurrency
			u.PartSize = cfg.PartSize
		}),
	}
}

// TempPath creates an empty staged file in dir ("" means os.TempDir) and
// returns its path.
func TempPath(dir string) (string, error) {
	f, err := os.CreateTemp(dir, StagePrefix+"*.tmp")
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("close staged file: %w", err)
	}
	return name, nil
}

// Download copies the object at uri into a new staged file in dir and
// returns the file's path. The caller removes it.
func (c *Client) Download(ctx context.Context, uri, dir string) (string, error) {
	loc, err := ParseS3URI(uri)
	if err != nil {
		return "", err
	}
	path, err := TempPath(dir)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("open staged file: %w", err)
	}

	start := time.Now()
	n, err := c.down.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close staged file: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("download %s: %w", loc, err)
	}

	elapsed := time.Since(start)
	logging.L().Info().
		Str("uri", loc.String()).
		Str("path", path).
		Str("size", humanfmt.Bytes(n)).
		Str("throughput", humanfmt.Throughput(n, elapsed)).
		Dur("elapsed", elapsed).
		Msg("staged input from S3")
	return path, nil
}

// Upload copies the local file at path to uri.
func (c *Client) Upload(ctx context.Context, path, uri string) error {
	loc, err := ParseS3URI(uri)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	start := time.Now()
	if _, err := c.up.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(loc.Bucket),
		Key:         aws.String(loc.Key),
		Body:        f,
		ContentType: aws.String("text/plain; charset=utf-8"),
	}); err != nil {
		return fmt.Errorf("upload %s: %w", loc, err)
	}

	logging.L().Info().
		Str("uri", loc.String()).
		Str("path", path).
		Dur("elapsed", time.Since(start)).
		Msg("uploaded output to S3")
	return nil
}
