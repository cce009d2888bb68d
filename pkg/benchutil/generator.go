// Package benchutil generates synthetic line files with a known number of
// distinct lines for tests and benchmarks.
package benchutil

import (
	"bufio"
	"bytes"
	"fmt"
	"math/rand"
	"os"
)

// GeneratorConfig configures synthetic data generation.
type GeneratorConfig struct {
	// NumLines is the total number of lines to generate.
	NumLines int
	// Distinct bounds the number of different lines (after case folding).
	// 0 means every line is distinct.
	Distinct int
	// CaseVariants randomly changes the case of repeated lines.
	CaseVariants bool
	// CRLFRatio is the fraction of lines terminated by "\r\n" (0.0-1.0).
	CRLFRatio float64
	// OmitFinalNewline drops the terminator of the last line.
	OmitFinalNewline bool
	// MinLen and MaxLen bound line payload length; defaults 8 and 64.
	MinLen, MaxLen int
	// Seed for reproducible generation. 0 = BenchmarkSeed.
	Seed int64
}

// Data is a generated file together with its sequential dedup result.
type Data struct {
	Input []byte
	// Expected holds the first occurrence of each distinct line, in order,
	// with its original bytes and terminator.
	Expected []byte
	Lines    int
	Unique   int
}

// Duplicates returns Lines - Unique.
func (d *Data) Duplicates() int {
	return d.Lines - d.Unique
}

// Generator generates synthetic line data.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// NewGenerator creates a new data generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Seed == 0 {
		cfg.Seed = BenchmarkSeed
	}
	if cfg.MinLen <= 0 {
		cfg.MinLen = 8
	}
	if cfg.MaxLen < cfg.MinLen {
		cfg.MaxLen = max(cfg.MinLen, 64)
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// Generate builds the data in memory.
func (g *Generator) Generate() *Data {
	var input, expected bytes.Buffer
	seen := make(map[int]bool)
	bases := make(map[int][]byte)

	for i := 0; i < g.cfg.NumLines; i++ {
		id := i
		if g.cfg.Distinct > 0 {
			id = g.rng.Intn(g.cfg.Distinct)
		}
		base, ok := bases[id]
		if !ok {
			base = g.base(id)
			bases[id] = base
		}

		line := base
		if g.cfg.CaseVariants && seen[id] {
			line = g.recase(base)
		}

		start := input.Len()
		input.Write(line)
		last := i == g.cfg.NumLines-1
		switch {
		case last && g.cfg.OmitFinalNewline:
		case g.rng.Float64() < g.cfg.CRLFRatio:
			input.WriteString("\r\n")
		default:
			input.WriteByte('\n')
		}

		if !seen[id] {
			seen[id] = true
			expected.Write(input.Bytes()[start:])
		}
	}

	return &Data{
		Input:    input.Bytes(),
		Expected: expected.Bytes(),
		Lines:    g.cfg.NumLines,
		Unique:   len(seen),
	}
}

// WriteFile generates the data and writes its input to path.
func (g *Generator) WriteFile(path string) (*Data, error) {
	d := g.Generate()
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	if _, err := w.Write(d.Input); err != nil {
		f.Close()
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", path, err)
	}
	return d, nil
}

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789 "

// base returns the lowercase payload for id. The id suffix keeps payloads
// distinct under case folding.
func (g *Generator) base(id int) []byte {
	n := g.cfg.MinLen + g.rng.Intn(g.cfg.MaxLen-g.cfg.MinLen+1)
	b := make([]byte, 0, n+12)
	for j := 0; j < n; j++ {
		b = append(b, alphabet[g.rng.Intn(len(alphabet))])
	}
	return fmt.Appendf(b, "#%d", id)
}

func (g *Generator) recase(base []byte) []byte {
	out := make([]byte, len(base))
	for i, c := range base {
		if c >= 'a' && c <= 'z' && g.rng.Intn(2) == 0 {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return out
}
