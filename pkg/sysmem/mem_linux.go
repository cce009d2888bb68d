//go:build linux

package sysmem

import "golang.org/x/sys/unix"

func systemMemory() (total, avail uint64, ok bool) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, 0, false
	}
	unit := uint64(info.Unit)
	// Page cache is not counted in Freeram; buffers are the closest proxy
	// sysinfo offers for reclaimable memory.
	return uint64(info.Totalram) * unit, (uint64(info.Freeram) + uint64(info.Bufferram)) * unit, true
}
