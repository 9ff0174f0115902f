package exporter

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// rssMB returns the resident set size of this process in MiB, or -1 when
// the platform does not report it.
func rssMB() int64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return -1
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return -1
	}
	return int64(mem.RSS >> 20)
}
