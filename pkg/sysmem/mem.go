// Package sysmem reports physical memory so rsort can size its default
// memory budget.
package sysmem

// DefaultMemoryBytes is used when the platform cannot report memory (4 GiB).
const DefaultMemoryBytes uint64 = 4 << 30

// Info is a point-in-time view of physical memory.
type Info struct {
	TotalBytes uint64
	// AvailableBytes is 0 when the platform does not expose it.
	AvailableBytes uint64
	// Reliable is false when TotalBytes is the DefaultMemoryBytes fallback.
	Reliable bool
}

// Read queries the operating system.
func Read() Info {
	total, avail, ok := systemMemory()
	if !ok || total == 0 {
		return Info{TotalBytes: DefaultMemoryBytes}
	}
	if avail > total {
		avail = total
	}
	return Info{TotalBytes: total, AvailableBytes: avail, Reliable: true}
}

// TotalBytes returns Read().TotalBytes.
func TotalBytes() uint64 {
	return Read().TotalBytes
}
