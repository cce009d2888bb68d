// Package membudget tracks how much memory the deduplication run may spend
// on its distinct-line set.
//
// The budget is advisory: consumers reserve bytes before growing and are
// told when a reservation would exceed the limit. Nothing is ever evicted.
package membudget

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/MrMahile/rsort/pkg/sysmem"
)

// EnvVar names the environment variable consulted by Resolve.
const EnvVar = "RSORT_MEM_BUDGET"

// DefaultBudgetBytes is used when system RAM cannot be detected.
const DefaultBudgetBytes uint64 = 8 << 30

// Source records where the budget came from.
type Source string

const (
	SourceAuto50Pct Source = "auto-50pct"
	SourceDefault   Source = "default"
	SourceCLI       Source = "cli"
	SourceEnv       Source = "env"
	SourceConfig    Source = "config"
)

// Budget is safe for concurrent use.
type Budget struct {
	total  uint64
	inUse  atomic.Uint64
	source Source
}

// New returns a budget of total bytes.
func New(total uint64, source Source) *Budget {
	return &Budget{total: total, source: source}
}

// NewFromSystemRAM returns a budget of half the physical memory, or
// DefaultBudgetBytes if it cannot be detected.
func NewFromSystemRAM() *Budget {
	info := sysmem.Read()
	if !info.Reliable {
		return New(DefaultBudgetBytes, SourceDefault)
	}
	return New(info.TotalBytes/2, SourceAuto50Pct)
}

// Resolve picks the budget by precedence: flag, then RSORT_MEM_BUDGET,
// then the config file value, then system RAM. Empty strings are skipped.
func Resolve(flagValue, configValue string) (*Budget, error) {
	candidates := []struct {
		value  string
		source Source
	}{
		{flagValue, SourceCLI},
		{os.Getenv(EnvVar), SourceEnv},
		{configValue, SourceConfig},
	}
	for _, c := range candidates {
		if c.value == "" {
			continue
		}
		n, err := ParseHumanSize(c.value)
		if err != nil {
			return nil, fmt.Errorf("parse memory budget from %s: %w", c.source, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("memory budget from %s must be positive", c.source)
		}
		return New(n, c.source), nil
	}
	return NewFromSystemRAM(), nil
}

// Total returns the budget in bytes.
func (b *Budget) Total() uint64 { return b.total }

// InUse returns the reserved bytes.
func (b *Budget) InUse() uint64 { return b.inUse.Load() }

// Source reports how the budget was chosen.
func (b *Budget) Source() Source { return b.source }

// Available returns Total minus InUse, floored at zero.
func (b *Budget) Available() uint64 {
	inUse := b.inUse.Load()
	if inUse >= b.total {
		return 0
	}
	return b.total - inUse
}

// TryReserve reserves n bytes if that keeps usage within the budget.
func (b *Budget) TryReserve(n uint64) bool {
	for {
		current := b.inUse.Load()
		next := current + n
		if next > b.total || next < current {
			return false
		}
		if b.inUse.CompareAndSwap(current, next) {
			return true
		}
	}
}

// ForceReserve records n bytes as in use even past the limit and reports
// whether usage is still within budget. The set never evicts, so growth that
// already happened is accounted for regardless.
func (b *Budget) ForceReserve(n uint64) bool {
	return b.inUse.Add(n) <= b.total
}

// Release returns n bytes. Releasing more than is reserved clamps to zero.
func (b *Budget) Release(n uint64) {
	for {
		current := b.inUse.Load()
		next := uint64(0)
		if n < current {
			next = current - n
		}
		if b.inUse.CompareAndSwap(current, next) {
			return
		}
	}
}

// Stats is a snapshot of the budget.
type Stats struct {
	TotalBytes     uint64
	InUseBytes     uint64
	AvailableBytes uint64
	Source         Source
	UsagePercent   float64
}

// Stats returns a snapshot of the budget.
func (b *Budget) Stats() Stats {
	inUse := b.inUse.Load()
	s := Stats{TotalBytes: b.total, InUseBytes: inUse, Source: b.source}
	if inUse < b.total {
		s.AvailableBytes = b.total - inUse
	}
	if b.total > 0 {
		s.UsagePercent = float64(inUse) / float64(b.total) * 100
	}
	return s
}

// ParseHumanSize parses sizes such as "4GiB", "512MB", "1.5G" or "1024".
// Suffixes are case-insensitive: B, K/KiB, KB, M/MiB, MB, G/GiB, GB, T/TiB, TB.
func ParseHumanSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size string")
	}

	numEnd := len(s)
	for i, c := range s {
		if (c < '0' || c > '9') && c != '.' {
			numEnd = i
			break
		}
	}
	numStr, suffix := s[:numEnd], strings.TrimSpace(s[numEnd:])

	num, err := strconv.ParseFloat(numStr, 64)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid number: %q", numStr)
	}

	mult, ok := suffixes[strings.ToLower(suffix)]
	if !ok {
		return 0, fmt.Errorf("unknown size suffix: %q", suffix)
	}
	return uint64(num * mult), nil
}

var suffixes = map[string]float64{
	"":    1,
	"b":   1,
	"kb":  1e3,
	"k":   1 << 10,
	"kib": 1 << 10,
	"mb":  1e6,
	"m":   1 << 20,
	"mib": 1 << 20,
	"gb":  1e9,
	"g":   1 << 30,
	"gib": 1 << 30,
	"tb":  1e12,
	"t":   1 << 40,
	"tib": 1 << 40,
}
