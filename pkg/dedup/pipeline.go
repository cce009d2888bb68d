// Package dedup removes repeated lines from a file, keeping the first
// occurrence of each line in its original position.
//
// Lines are compared case-insensitively through their 64-bit fingerprints
// (see pkg/fingerprint); only fingerprints are kept in memory, so the run
// needs memory proportional to the number of distinct lines, not to the file
// size. The input is split into line-aligned chunks that are streamed one
// after another, or by a pool of workers when Config.Workers > 1.
//
// With one worker the output is exactly the input with every line whose
// fingerprint was already seen removed. With more workers each chunk keeps
// its internal order and chunks are written in input order, but when the same
// line appears in two chunks that are processed at the same time, which copy
// survives is not defined.
package dedup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrMahile/rsort/internal/logctx"
	"github.com/MrMahile/rsort/pkg/checkpoint"
	"github.com/MrMahile/rsort/pkg/chunk"
	"github.com/MrMahile/rsort/pkg/fileutil"
	"github.com/MrMahile/rsort/pkg/fingerprint"
	"github.com/MrMahile/rsort/pkg/humanfmt"
	"github.com/MrMahile/rsort/pkg/logging"
	"github.com/MrMahile/rsort/pkg/memdiag"
	"github.com/MrMahile/rsort/pkg/seen"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrMahile/rsort/pkg/dedup"

// Pipeline runs one deduplication. It is not reusable.
type Pipeline struct {
	cfg    Config
	log    zerolog.Logger
	tracer trace.Tracer
	state  atomic.Int32

	in     *os.File
	inInfo fs.FileInfo
	out    *os.File
	w      *bufio.Writer
	set    seen.Set
	chunks []chunk.Chunk
	id     checkpoint.Identity

	startTime time.Time
	prior     time.Duration
	resume    *checkpoint.State
	first     int

	// lines counts lines read so far, committed or not; it feeds Progress.
	lines   atomic.Uint64
	totals  counts
	done    int
	tracker *logging.ProgressTracker

	// buffered is the bytes of chunk output awaiting commit in
	// concurrent mode; peakBuffered is its high-water mark.
	buffered     atomic.Int64
	peakBuffered atomic.Int64

	// mu guards totals, done and the budget fields below.
	mu            sync.Mutex
	reserved      uint64
	overBudget    bool
	invalidWarned atomic.Bool
}

// counts are per-chunk or per-run totals.
type counts struct {
	lines   uint64
	dups    uint64
	invalid uint64
	read    int64
	written int64
}

func (c *counts) add(o counts) {
	c.lines += o.lines
	c.dups += o.dups
	c.invalid += o.invalid
	c.read += o.read
	c.written += o.written
}

// NewPipeline creates a pipeline for cfg, filling in defaults.
func NewPipeline(cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Pipeline{cfg: cfg, tracer: tracer, log: *logging.L()}
}

// Run deduplicates cfg.InputPath into cfg.OutputPath.
func Run(ctx context.Context, cfg Config) (*Summary, error) {
	return NewPipeline(cfg).Run(ctx)
}

// Run executes the pipeline. Failures are returned as *Error, except
// cancellation, which returns an error wrapping ctx.Err(). Output written
// before a failure is flushed and kept.
func (p *Pipeline) Run(ctx context.Context) (_ *Summary, err error) {
	p.startTime = time.Now()
	ctx = logctx.WithStr(ctx, "component", "dedup")
	p.log = logctx.FromContext(ctx)

	ctx, span := p.tracer.Start(ctx, "rsort.run", trace.WithAttributes(
		attribute.String("rsort.input", p.cfg.InputPath),
		attribute.String("rsort.output", p.cfg.OutputPath),
		attribute.Int("rsort.workers", p.cfg.Workers),
		attribute.Int64("rsort.chunk_size", p.cfg.ChunkSize),
	))
	defer func() {
		if err != nil {
			p.enter(StateFailed)
			p.abort()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	p.enter(StateInit)
	if err := p.open(); err != nil {
		return nil, err
	}

	p.enter(StateSplittingChunks)
	if err := p.plan(); err != nil {
		return nil, err
	}
	if err := p.restore(ctx); err != nil {
		return nil, err
	}

	if p.cfg.Workers > 1 && len(p.chunks)-p.first > 1 {
		err = p.runParallel(ctx)
	} else {
		err = p.runSequential(ctx)
	}
	if err != nil {
		return nil, err
	}

	p.enter(StateFinalizing)
	sum, err := p.finalize()
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int64("rsort.lines", int64(sum.LinesProcessed)),
		attribute.Int64("rsort.duplicates", int64(sum.DuplicatesRemoved)),
	)
	p.enter(StateDone)

	p.cfg.Reporter.Summary(*sum)
	return sum, nil
}

func (p *Pipeline) enter(s State) {
	p.state.Store(int32(s))
	p.log.Debug().Str("state", s.String()).Msg("state transition")
}

// State returns the step the pipeline is in.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

func (p *Pipeline) elapsed() time.Duration {
	return p.prior + time.Since(p.startTime)
}

// open validates the configuration, then opens the input and the output, in
// that order, so a bad input never touches the output.
func (p *Pipeline) open() error {
	cfg := p.cfg
	switch {
	case cfg.InputPath == "":
		return configError("", errors.New("input path is required"))
	case cfg.OutputPath == "":
		return configError("", errors.New("output path is required"))
	case cfg.ChunkSize < 0:
		return configError("", fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize))
	case cfg.Resume && cfg.Checkpoint == nil:
		return configError("", errors.New("resume requires a checkpoint store"))
	}

	info, err := fileutil.IsRegular(cfg.InputPath)
	if err != nil {
		return inputError(cfg.InputPath, err)
	}
	if outInfo, err := os.Stat(cfg.OutputPath); err == nil && os.SameFile(info, outInfo) {
		return configError(cfg.OutputPath, errors.New("output is the same file as the input"))
	}
	in, err := os.Open(cfg.InputPath)
	if err != nil {
		return inputError(cfg.InputPath, err)
	}
	p.in, p.inInfo = in, info

	abs, err := filepath.Abs(cfg.InputPath)
	if err != nil {
		abs = cfg.InputPath
	}
	p.id = checkpoint.Identity{
		InputPath:    abs,
		InputSize:    info.Size(),
		InputModTime: info.ModTime().UnixNano(),
		ChunkSize:    cfg.ChunkSize,
	}

	if cfg.Resume {
		st, ok, err := cfg.Checkpoint.Load()
		if err != nil {
			return ioError(cfg.Checkpoint.Path(), -1, -1, err)
		}
		if ok {
			if err := st.Check(p.id); err != nil {
				return configError(cfg.Checkpoint.Path(), err)
			}
			p.resume = st
		} else {
			p.log.Info().Str("checkpoint", cfg.Checkpoint.Path()).Msg("no checkpoint found, starting from the beginning")
		}
	}

	if err := fileutil.EnsureParentDir(cfg.OutputPath); err != nil {
		return outputError(cfg.OutputPath, err)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if p.resume != nil {
		flags = os.O_RDWR | os.O_CREATE
	}
	out, err := os.OpenFile(cfg.OutputPath, flags, 0o644)
	if err != nil {
		return outputError(cfg.OutputPath, err)
	}
	p.out = out
	if p.resume != nil {
		if err := fileutil.TruncateTo(out, p.resume.OutputBytes); err != nil {
			return configError(cfg.OutputPath, fmt.Errorf("output does not match checkpoint: %w", err))
		}
	}
	p.w = bufio.NewWriterSize(out, cfg.WriteBufferSize)

	p.log.Debug().
		Str("input", cfg.InputPath).
		Str("output", cfg.OutputPath).
		Int64("input_bytes", info.Size()).
		Int("workers", cfg.Workers).
		Msg("opened files")
	return nil
}

func (p *Pipeline) plan() error {
	chunks, err := chunk.Plan(p.in, p.inInfo.Size(), p.cfg.ChunkSize)
	if err != nil {
		return ioError(p.cfg.InputPath, -1, -1, fmt.Errorf("plan chunks: %w", err))
	}
	if err := chunk.Validate(chunks, p.inInfo.Size()); err != nil {
		return ioError(p.cfg.InputPath, -1, -1, fmt.Errorf("validate chunk plan: %w", err))
	}
	p.chunks = chunks
	p.log.Debug().
		Int("chunks", len(chunks)).
		Str("chunk_size", humanfmt.Bytes(p.cfg.ChunkSize)).
		Msg("planned chunks")
	return nil
}

// restore prepares run state: the membership set, counters and, when
// resuming, the fingerprints of everything already in the output.
func (p *Pipeline) restore(ctx context.Context) error {
	p.set = p.cfg.Set
	if p.set == nil {
		p.set = seen.New(p.cfg.Workers)
	}
	p.tracker = logging.NewProgressTracker(int64(len(p.chunks)), p.inInfo.Size())

	st := p.resume
	if st == nil {
		if p.cfg.Checkpoint != nil {
			if err := p.cfg.Checkpoint.Clear(); err != nil {
				return ioError(p.cfg.Checkpoint.Path(), -1, -1, err)
			}
		}
		return nil
	}
	if st.ChunksDone > len(p.chunks) {
		return configError(p.cfg.Checkpoint.Path(),
			fmt.Errorf("%w: %d chunks done, plan has %d", checkpoint.ErrMismatch, st.ChunksDone, len(p.chunks)))
	}

	fpr := fingerprint.New()
	lr := newLineReader(p.cfg.ReadBufferSize)
	lr.reset(io.NewSectionReader(p.out, 0, st.OutputBytes))
	var n uint64
	for {
		line, err := lr.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ioError(p.cfg.OutputPath, -1, -1, fmt.Errorf("rebuild set: %w", err))
		}
		fp, _ := fpr.Sum(content(line))
		p.set.ContainsOrInsert(fp)
		if n++; n%ProgressInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("rebuild set: %w", err)
			}
		}
	}

	p.first = st.ChunksDone
	p.done = st.ChunksDone
	p.prior = time.Duration(st.ElapsedNanos)
	p.totals = counts{
		lines:   st.LinesProcessed,
		dups:    st.DuplicatesRemoved,
		invalid: st.InvalidLines,
		written: st.OutputBytes,
	}
	if p.first > 0 {
		p.totals.read = p.chunks[p.first-1].End
	}
	p.lines.Store(st.LinesProcessed)
	for _, c := range p.chunks[:p.first] {
		p.tracker.RecordChunk(c.Len())
	}

	p.log.Info().
		Int("chunks_done", st.ChunksDone).
		Int("chunks_total", len(p.chunks)).
		Int64("output_bytes", st.OutputBytes).
		Int("distinct_lines", p.set.Len()).
		Msg("resuming from checkpoint")
	return nil
}

func (p *Pipeline) runSequential(ctx context.Context) error {
	fpr := fingerprint.New()
	lr := newLineReader(p.cfg.ReadBufferSize)
	for _, c := range p.chunks[p.first:] {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("dedup canceled before chunk %d: %w", c.Index, err)
		}
		res, err := p.processChunk(ctx, c, lr, fpr, p.w)
		if err != nil {
			return err
		}
		if err := p.commit(c, res, nil); err != nil {
			return err
		}
	}
	return nil
}

// processChunk streams c, writing lines not seen before to w.
func (p *Pipeline) processChunk(ctx context.Context, c chunk.Chunk, lr *lineReader, fpr *fingerprint.Fingerprinter, w io.Writer) (res counts, err error) {
	p.log.Debug().Str("state", StateProcessingChunk.String()).Int("chunk_index", c.Index).Msg("state transition")
	p.state.Store(int32(StateProcessingChunk))

	ctx = logctx.WithInt(ctx, "chunk_index", c.Index)
	ctx, span := p.tracer.Start(ctx, "rsort.chunk", trace.WithAttributes(
		attribute.Int("rsort.chunk.index", c.Index),
		attribute.Int64("rsort.chunk.start", c.Start),
		attribute.Int64("rsort.chunk.end", c.End),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int64("rsort.chunk.lines", int64(res.lines)),
			attribute.Int64("rsort.chunk.duplicates", int64(res.dups)),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	lr.reset(io.NewSectionReader(p.in, c.Start, c.Len()))
	off := c.Start
	var pending uint64
	for {
		line, rerr := lr.next()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return res, ioError(p.cfg.InputPath, c.Index, off, fmt.Errorf("read line: %w", rerr))
		}

		fp, valid := fpr.Sum(content(line))
		if !valid {
			res.invalid++
			if p.invalidWarned.CompareAndSwap(false, true) {
				log := logctx.FromContext(ctx)
				log.Warn().
					Int64("offset", off).
					Msg("input contains invalid UTF-8; such lines are compared byte-wise with ASCII case folded")
			}
		}
		if p.set.ContainsOrInsert(fp) {
			res.dups++
		} else {
			if _, werr := w.Write(line); werr != nil {
				return res, ioError(p.cfg.OutputPath, c.Index, off, fmt.Errorf("write line: %w", werr))
			}
			res.written += int64(len(line))
		}
		res.lines++
		off += int64(len(line))

		if pending++; pending == ProgressInterval {
			total := p.lines.Add(pending)
			pending = 0
			p.chargeBudget()
			p.cfg.Reporter.Progress(Progress{
				ChunksTotal:    len(p.chunks),
				ChunkIndex:     c.Index,
				ChunksDone:     p.doneChunks(),
				LinesProcessed: total,
				Elapsed:        p.elapsed(),
			})
			if cerr := ctx.Err(); cerr != nil {
				return res, fmt.Errorf("chunk %d canceled at offset %d: %w", c.Index, off, cerr)
			}
		}
	}
	p.lines.Add(pending)
	res.read = c.Len()
	return res, nil
}

// commit makes a processed chunk durable: buffered survivors are written,
// the writer is flushed and the checkpoint is advanced.
func (p *Pipeline) commit(c chunk.Chunk, res counts, buf []byte) error {
	if buf != nil {
		if _, err := p.w.Write(buf); err != nil {
			return ioError(p.cfg.OutputPath, c.Index, p.totals.written, fmt.Errorf("write chunk: %w", err))
		}
	}
	if err := p.w.Flush(); err != nil {
		return ioError(p.cfg.OutputPath, c.Index, p.totals.written, fmt.Errorf("flush output: %w", err))
	}

	p.mu.Lock()
	p.totals.add(res)
	p.done = c.Index + 1
	totals, done := p.totals, p.done
	p.mu.Unlock()

	if p.cfg.Checkpoint != nil {
		err := p.cfg.Checkpoint.Save(checkpoint.State{
			Identity:          p.id,
			ChunksDone:        done,
			OutputBytes:       totals.written,
			LinesProcessed:    totals.lines,
			DuplicatesRemoved: totals.dups,
			InvalidLines:      totals.invalid,
			ElapsedNanos:      int64(p.elapsed()),
		})
		if err != nil {
			return ioError(p.cfg.Checkpoint.Path(), c.Index, -1, err)
		}
	}

	p.chargeBudget()
	if p.cfg.MemDiag != nil {
		sample := memdiag.Sample{Chunk: c.Index}
		if p.cfg.MemDiag.Enabled() {
			sample.SetBytes, sample.SetLen = p.set.MemoryBytes(), p.set.Len()
			if b := p.cfg.Budget; b != nil {
				sample.BudgetInUse, sample.BudgetTotal = b.InUse(), b.Total()
			}
		}
		p.cfg.MemDiag.Observe(p.log, sample)
	}

	p.tracker.RecordChunk(c.Len())
	logging.ChunkComplete(p.log, "dedup", p.elapsed()).
		Int("chunk_index", c.Index).
		Int64("lines", int64(res.lines)).
		Int64("duplicates", int64(res.dups)).
		Bytes("chunk_bytes", c.Len()).
		Progress(p.tracker).
		LogDebug("chunk committed")

	p.cfg.Reporter.Progress(Progress{
		ChunksTotal:    len(p.chunks),
		ChunkIndex:     c.Index,
		ChunksDone:     done,
		LinesProcessed: p.lines.Load(),
		Elapsed:        p.elapsed(),
	})
	return nil
}

func (p *Pipeline) doneChunks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// chargeBudget reserves the set's growth since the last call.
func (p *Pipeline) chargeBudget() {
	b := p.cfg.Budget
	if b == nil {
		return
	}
	now := p.set.MemoryBytes()

	p.mu.Lock()
	defer p.mu.Unlock()
	if now <= p.reserved {
		return
	}
	within := b.ForceReserve(now - p.reserved)
	p.reserved = now
	if !within && !p.overBudget {
		p.overBudget = true
		p.log.Warn().
			Str("set_bytes", humanfmt.BytesUint64(now)).
			Int("distinct_lines", p.set.Len()).
			Str("budget", humanfmt.BytesUint64(b.Total())).
			Str("budget_source", string(b.Source())).
			Msg("distinct-line set exceeds the memory budget; continuing without eviction")
	}
}

func (p *Pipeline) finalize() (*Summary, error) {
	if err := p.w.Flush(); err != nil {
		return nil, ioError(p.cfg.OutputPath, -1, p.totals.written, fmt.Errorf("flush output: %w", err))
	}
	if err := p.out.Sync(); err != nil {
		return nil, ioError(p.cfg.OutputPath, -1, p.totals.written, fmt.Errorf("sync output: %w", err))
	}
	out := p.out
	p.out = nil
	if err := out.Close(); err != nil {
		return nil, ioError(p.cfg.OutputPath, -1, p.totals.written, fmt.Errorf("close output: %w", err))
	}
	p.in.Close()
	p.in = nil

	if p.cfg.Checkpoint != nil {
		if err := p.cfg.Checkpoint.Clear(); err != nil {
			p.log.Warn().Err(err).Msg("failed to clear checkpoint")
		}
	}
	if p.cfg.Budget != nil {
		p.cfg.Budget.Release(p.reserved)
	}

	elapsed := p.elapsed()
	t := p.totals
	return &Summary{
		LinesProcessed:    t.lines,
		DuplicatesRemoved: t.dups,
		UniqueLines:       t.lines - t.dups,
		InvalidLines:      t.invalid,
		BytesRead:         t.read,
		BytesWritten:      t.written,
		Chunks:            len(p.chunks),
		Workers:           p.cfg.Workers,
		Resumed:           p.resume != nil,
		Elapsed:           elapsed,
		Throughput:        humanfmt.PerSecond(int64(t.lines), elapsed),
	}, nil
}

// abort flushes what was written and closes files after a failure.
func (p *Pipeline) abort() {
	if p.out != nil {
		if p.w != nil {
			if err := p.w.Flush(); err != nil {
				p.log.Warn().Err(err).Msg("failed to flush output after error")
			}
		}
		p.out.Close()
		p.out = nil
	}
	if p.in != nil {
		p.in.Close()
		p.in = nil
	}
}
