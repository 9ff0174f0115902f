//go:build !unix

package loader

import (
	"errors"
	"os"
)

var errNoMmap = errors.New("mmap not supported on this platform")

// mmapFile always fails here; Open falls back to ReadAt.
func mmapFile(*os.File, int64) ([]byte, error) {
	return nil, errNoMmap
}

func munmapFile([]byte) error {
	return nil
}
