//go:build unix

package loader

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps the whole file read-only.
func mmapFile(f *os.File, size int64) ([]byte, error) {
	return unix.Mmap(
		int(f.Fd()), //nolint:gosec // G115: file descriptor fits in int
		0,
		int(size), //nolint:gosec // G115: weights files fit in the address space
		unix.PROT_READ,
		unix.MAP_SHARED,
	)
}

func munmapFile(data []byte) error {
	return unix.Munmap(data)
}
