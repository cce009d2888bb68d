package dedup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrMahile/rsort/pkg/fingerprint"
	"golang.org/x/sync/errgroup"
)

// maxPooledBuffer caps the capacity of buffers returned to bufPool.
const maxPooledBuffer = 4 * 1024 * 1024

var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// getBuffer returns an empty buffer. It grows with the chunk's surviving
// lines only.
func getBuffer() *bytes.Buffer {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	bufPool.Put(buf)
}

type chunkOutput struct {
	res  counts
	buf  *bytes.Buffer
	held int64
}

// runParallel processes chunks on cfg.Workers goroutines. Each worker
// collects a chunk's survivors in memory; a single committer writes them in
// chunk order. At most Workers+1 chunks are between dispatch and commit, and
// buffered survivors are charged to cfg.Budget until committed.
func (p *Pipeline) runParallel(ctx context.Context) error {
	defer p.releaseBuffered()

	pending := p.chunks[p.first:]
	results := make([]chan chunkOutput, len(pending))
	for i := range results {
		results[i] = make(chan chunkOutput, 1)
	}
	jobs := make(chan int)
	window := make(chan struct{}, p.cfg.Workers+1)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for i := range pending {
			select {
			case window <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < p.cfg.Workers; w++ {
		g.Go(func() error {
			fpr := fingerprint.New()
			lr := newLineReader(p.cfg.ReadBufferSize)
			for i := range jobs {
				c := pending[i]
				buf := getBuffer()
				res, err := p.processChunk(gctx, c, lr, fpr, buf)
				if err != nil {
					putBuffer(buf)
					return err
				}
				held := p.holdBuffer(buf)
				results[i] <- chunkOutput{res: res, buf: buf, held: held}
			}
			return nil
		})
	}

	g.Go(func() error {
		for i, c := range pending {
			if err := gctx.Err(); err != nil {
				return err
			}
			var out chunkOutput
			select {
			case out = <-results[i]:
			case <-gctx.Done():
				return gctx.Err()
			}
			err := p.commit(c, out.res, out.buf.Bytes())
			p.dropBuffer(out.held)
			putBuffer(out.buf)
			<-window
			if err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	if err == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
		return fmt.Errorf("dedup canceled after %d of %d chunks: %w", p.doneChunks(), len(p.chunks), cerr)
	}
	return err
}

// holdBuffer accounts for a finished chunk's surviving bytes until they are
// committed.
func (p *Pipeline) holdBuffer(buf *bytes.Buffer) int64 {
	n := int64(buf.Len())
	total := p.buffered.Add(n)
	for {
		peak := p.peakBuffered.Load()
		if total <= peak || p.peakBuffered.CompareAndSwap(peak, total) {
			break
		}
	}
	if p.cfg.Budget != nil {
		p.cfg.Budget.ForceReserve(uint64(n))
	}
	return n
}

func (p *Pipeline) dropBuffer(n int64) {
	p.buffered.Add(-n)
	if p.cfg.Budget != nil {
		p.cfg.Budget.Release(uint64(n))
	}
}

// releaseBuffered returns the budget held by chunks that were never
// committed because the run failed.
func (p *Pipeline) releaseBuffered() {
	if n := p.buffered.Swap(0); n > 0 && p.cfg.Budget != nil {
		p.cfg.Budget.Release(uint64(n))
	}
}
