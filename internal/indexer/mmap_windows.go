//go:build windows

package indexer

import (
	"io"
	"os"
)

// MmapFile falls back to reading the whole file on Windows, avoiding
// unsafe pointer arithmetic without an external lib.
func MmapFile(f *os.File) ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

// MunmapFile is a no-op for the ReadAll fallback.
func MunmapFile(data []byte) error {
	return nil
}
