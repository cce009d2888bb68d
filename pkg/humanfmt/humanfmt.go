// Package humanfmt formats byte counts, line counts, durations and rates for
// log output.
package humanfmt

import (
	"fmt"
	"strconv"
	"time"
)

// Binary (IEC) units for bytes.
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
	TiB = 1024 * GiB
)

// Bytes formats a byte count using IEC binary units, e.g. "1.23 GiB".
func Bytes(b int64) string {
	if b < 0 {
		return fmt.Sprintf("%d B", b)
	}
	return scaleBytes(float64(b), "")
}

// BytesUint64 is like Bytes but for uint64.
func BytesUint64(b uint64) string {
	return Bytes(int64(b))
}

// Count formats a count with a decimal suffix, e.g. "1.23M", "456.00K", "789".
func Count(n int64) string {
	const (
		thousand = 1000
		million  = 1000 * thousand
		billion  = 1000 * million
	)
	switch {
	case n < 0:
		return strconv.FormatInt(n, 10)
	case n >= billion:
		return fmt.Sprintf("%.2fB", float64(n)/billion)
	case n >= million:
		return fmt.Sprintf("%.2fM", float64(n)/million)
	case n >= thousand:
		return fmt.Sprintf("%.2fK", float64(n)/thousand)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// Duration formats d compactly: "2h15m", "1m30s", "1.23s", "45.6ms", "789.0µs".
func Duration(d time.Duration) string {
	switch {
	case d < 0:
		return d.String()
	case d >= time.Hour:
		h, m := d/time.Hour, (d%time.Hour)/time.Minute
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh%dm", h, m)
	case d >= time.Minute:
		m, s := d/time.Minute, (d%time.Minute)/time.Second
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm%ds", m, s)
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fµs", float64(d)/float64(time.Microsecond))
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}

// PerSecond returns n divided by d in seconds, or 0 when d is not positive.
func PerSecond(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

// Rate formats n items over d as a count per second with the given unit,
// e.g. Rate(3_000_000, time.Second, "lines") == "3.00M lines/s".
func Rate(n int64, d time.Duration, unit string) string {
	if d <= 0 {
		return "∞ " + unit + "/s"
	}
	return Count(int64(PerSecond(n, d))) + " " + unit + "/s"
}

// Throughput formats bytes over d as bytes per second, e.g. "123.40 MiB/s".
func Throughput(bytes int64, d time.Duration) string {
	if d <= 0 {
		return "∞"
	}
	return scaleBytes(PerSecond(bytes, d), "/s")
}

func scaleBytes(v float64, suffix string) string {
	switch {
	case v >= TiB:
		return fmt.Sprintf("%.2f TiB%s", v/TiB, suffix)
	case v >= GiB:
		return fmt.Sprintf("%.2f GiB%s", v/GiB, suffix)
	case v >= MiB:
		return fmt.Sprintf("%.2f MiB%s", v/MiB, suffix)
	case v >= KiB:
		return fmt.Sprintf("%.2f KiB%s", v/KiB, suffix)
	case suffix == "":
		return fmt.Sprintf("%d B", int64(v))
	default:
		return fmt.Sprintf("%.0f B%s", v, suffix)
	}
}
