// Package fileutil holds the small filesystem helpers rsort needs around its
// input, output and staged files.
package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrMahile/rsort/pkg/logging"
)

// Exists returns true if the path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsNonEmpty returns true if the file exists and has non-zero size.
func IsNonEmpty(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > 0
}

// IsRegular stats path and returns its info if it is a regular file.
func IsRegular(path string) (fs.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: not a regular file", path)
	}
	return info, nil
}

// EnsureParentDir creates the directory that will contain path.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	return nil
}

// SyncFile opens, syncs, and closes a file.
func SyncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	err = f.Sync()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// TruncateTo shrinks f to size bytes and positions it at the new end.
// It fails if the file is shorter than size.
func TruncateTo(f *os.File, size int64) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", f.Name(), err)
	}
	if info.Size() < size {
		return fmt.Errorf("truncate %s: have %d bytes, want %d", f.Name(), info.Size(), size)
	}
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("truncate %s: %w", f.Name(), err)
	}
	if _, err := f.Seek(size, 0); err != nil {
		return fmt.Errorf("seek %s: %w", f.Name(), err)
	}
	return nil
}

// WriteTmpThenMove writes outPath via a sibling ".tmp" file that is synced
// and renamed into place, so readers never see a partial file.
func WriteTmpThenMove(outPath string, write func(tmpPath string) error) error {
	if err := EnsureParentDir(outPath); err != nil {
		return err
	}
	tmpPath := outPath + ".tmp"

	if err := write(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := SyncFile(tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp to final: %w", err)
	}
	return nil
}

// CleanupTmpFiles removes files in dir (not recursive) whose name starts with
// prefix and ends in ".tmp". A missing dir is not an error.
func CleanupTmpFiles(dir, prefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read dir: %w", err)
	}

	var removed int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".tmp") {
			continue
		}
		if rmErr := os.Remove(filepath.Join(dir, name)); rmErr == nil {
			removed++
		}
	}

	if removed > 0 {
		logging.L().Debug().Int("files_removed", removed).Str("dir", dir).Msg("cleaned up tmp files")
	}
	return nil
}
