// Package chunk splits a file into line-aligned byte ranges.
package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// DefaultTarget is the default target chunk size (50 MiB).
const DefaultTarget int64 = 50 * 1024 * 1024

// scanBufSize is the read size used when looking for the next line
// terminator after a probe position.
const scanBufSize = 64 * 1024

// Chunk is the half-open byte range [Start, End) of the input.
//
// End is always one byte past a '\n', except for the final chunk which ends
// at end of file. A chunk therefore never splits a line.
type Chunk struct {
	Index int
	Start int64
	End   int64
}

// Len returns the chunk length in bytes.
func (c Chunk) Len() int64 {
	return c.End - c.Start
}

// Plan computes the chunks of an input of the given size.
//
// Starting at offset 0 it advances a probe by target bytes and scans forward
// from there to the next '\n'; the byte after it ends the chunk and starts
// the next one. Only the bytes between each probe and the following
// terminator are read. Every chunk except the last is at least target bytes
// long. An empty input yields no chunks.
func Plan(r io.ReaderAt, size, target int64) ([]Chunk, error) {
	if target <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", target)
	}
	if size < 0 {
		return nil, fmt.Errorf("negative input size %d", size)
	}

	var chunks []Chunk
	buf := make([]byte, scanBufSize)
	for start := int64(0); start < size; {
		end := size
		if target < size-start {
			e, err := nextLineEnd(r, start+target-1, size, buf)
			if err != nil {
				return nil, fmt.Errorf("plan chunk %d: %w", len(chunks), err)
			}
			end = e
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Start: start, End: end})
		start = end
	}
	return chunks, nil
}

// nextLineEnd returns the offset just past the first '\n' at or after from,
// or size if there is none.
func nextLineEnd(r io.ReaderAt, from, size int64, buf []byte) (int64, error) {
	for off := from; off < size; {
		n := int64(len(buf))
		if rem := size - off; rem < n {
			n = rem
		}
		m, err := r.ReadAt(buf[:n], off)
		if i := bytes.IndexByte(buf[:m], '\n'); i >= 0 {
			return off + int64(i) + 1, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, fmt.Errorf("input ended at offset %d, expected %d bytes: %w", off+int64(m), size, io.ErrUnexpectedEOF)
			}
			return 0, fmt.Errorf("read at offset %d: %w", off, err)
		}
		off += int64(m)
	}
	return size, nil
}

// Validate checks that chunks are ordered, contiguous, non-empty and cover
// [0, size) exactly.
func Validate(chunks []Chunk, size int64) error {
	var next int64
	for i, c := range chunks {
		if c.Index != i {
			return fmt.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.Start != next {
			return fmt.Errorf("chunk %d starts at %d, want %d", i, c.Start, next)
		}
		if c.End <= c.Start {
			return fmt.Errorf("chunk %d is empty or inverted: [%d, %d)", i, c.Start, c.End)
		}
		next = c.End
	}
	if next != size {
		return fmt.Errorf("chunks cover %d bytes, input has %d", next, size)
	}
	return nil
}
