// Package fingerprint maps lines of text to 64-bit case-insensitive fingerprints.
//
// Normalization is applied before hashing and is not configurable:
//   - ASCII-only lines are lowercased byte by byte.
//   - Other valid UTF-8 lines are Unicode case folded (full folding), so
//     "ΣΊΣΥΦΟΣ" and "σίσυφος" share a fingerprint.
//   - Lines that are not valid UTF-8 have their ASCII letters lowercased and
//     every other byte hashed as an opaque byte. Sum reports them as invalid.
//
// The hash is xxHash64. Fingerprints are not reversible and distinct lines may
// collide: with D distinct lines already recorded, the chance that a new line
// is wrongly treated as a duplicate is at most D/2^64 (about 5.4e-10 for
// D = 1e10).
package fingerprint

import (
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/transform"
)

// Fingerprint identifies a normalized line.
type Fingerprint uint64

// Fingerprinter computes fingerprints reusing an internal scratch buffer.
// It is not safe for concurrent use; give each goroutine its own.
type Fingerprinter struct {
	buf   []byte
	caser cases.Caser
}

// New returns a Fingerprinter.
func New() *Fingerprinter {
	return &Fingerprinter{
		buf:   make([]byte, 0, 256),
		caser: cases.Fold(),
	}
}

// Sum returns the fingerprint of line, which must not include its line
// terminator. The second result is false when line is not valid UTF-8.
func (f *Fingerprinter) Sum(line []byte) (Fingerprint, bool) {
	var valid bool
	f.buf, valid = f.normalize(f.buf[:0], line)
	return Fingerprint(xxhash.Sum64(f.buf)), valid
}

func (f *Fingerprinter) normalize(dst, line []byte) ([]byte, bool) {
	if isASCII(line) {
		return appendLowerASCII(dst, line), true
	}
	if !utf8.Valid(line) {
		return appendLowerASCII(dst, line), false
	}
	start := len(dst)
	out, _, err := transform.Append(f.caser, dst, line)
	if err != nil {
		return appendLowerASCII(out[:start], line), true
	}
	return out, true
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func appendLowerASCII(dst, src []byte) []byte {
	for _, c := range src {
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		dst = append(dst, c)
	}
	return dst
}
