package sysmem

import (
	"runtime"
	"testing"
)

func TestRead(t *testing.T) {
	info := Read()

	if info.TotalBytes == 0 {
		t.Fatal("Read() returned 0 total bytes")
	}
	if info.AvailableBytes > info.TotalBytes {
		t.Errorf("AvailableBytes %d > TotalBytes %d", info.AvailableBytes, info.TotalBytes)
	}

	switch runtime.GOOS {
	case "linux", "darwin", "windows", "freebsd", "openbsd", "netbsd", "dragonfly":
		if !info.Reliable {
			t.Logf("memory detection not reliable on %s", runtime.GOOS)
		}
	default:
		if info.Reliable || info.TotalBytes != DefaultMemoryBytes {
			t.Errorf("Read() = %+v on %s, want fallback", info, runtime.GOOS)
		}
	}

	t.Logf("total=%d available=%d reliable=%v", info.TotalBytes, info.AvailableBytes, info.Reliable)
}

func TestTotalBytesMatchesRead(t *testing.T) {
	if got, want := TotalBytes(), Read().TotalBytes; got != want {
		t.Errorf("TotalBytes() = %d, Read().TotalBytes = %d", got, want)
	}
}

func TestLinuxReportsAvailable(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("linux only")
	}
	if info := Read(); info.Reliable && info.AvailableBytes == 0 {
		t.Error("expected non-zero available memory on linux")
	}
}
