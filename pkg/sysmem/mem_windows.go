//go:build windows

package sysmem

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func systemMemory() (total, avail uint64, ok bool) {
	var st windows.MemoryStatusEx
	st.Length = uint32(unsafe.Sizeof(st))
	if err := windows.GlobalMemoryStatusEx(&st); err != nil {
		return 0, 0, false
	}
	return st.TotalPhys, st.AvailPhys, true
}
