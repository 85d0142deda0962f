//go:build !windows

package indexer

import (
	"os"

	"golang.org/x/sys/unix"
)

// MmapFile memory maps a file read-only. The returned slice is valid
// until MunmapFile.
func MmapFile(f *os.File) ([]byte, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := stat.Size()
	if size == 0 {
		return nil, nil
	}
	return unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
}

// MunmapFile releases a mapping returned by MmapFile.
func MunmapFile(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}
