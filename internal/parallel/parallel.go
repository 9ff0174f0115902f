// Package parallel fans index ranges out over goroutines for the CPU kernels.
package parallel

import (
	"runtime"
	"sync"
)

// Config sizes the fan-out.
type Config struct {
	Workers  int // goroutines; below 2 everything runs on the caller
	MinChunk int // smallest range handed to one goroutine
}

// DefaultConfig uses one worker per usable CPU.
func DefaultConfig() Config {
	return Config{Workers: runtime.GOMAXPROCS(0), MinChunk: 64}
}

// Sequential never spawns goroutines.
func Sequential() Config {
	return Config{Workers: 1, MinChunk: 1}
}

// chunk returns the range length per goroutine, or n when the work is not
// worth splitting.
func (c Config) chunk(n int) int {
	least := max(c.MinChunk, 1)
	if c.Workers < 2 || n < 2*least {
		return n
	}
	return max((n+c.Workers-1)/c.Workers, least)
}

// ForRange calls f(lo, hi) over disjoint ranges covering [0, n) and waits
// for all of them.
func ForRange(n int, f func(lo, hi int), cfg Config) {
	if n <= 0 {
		return
	}
	size := cfg.chunk(n)
	if size >= n {
		f(0, n)
		return
	}
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += size {
		wg.Go(func() { f(lo, min(lo+size, n)) })
	}
	wg.Wait()
}

// For calls f(i) for every i in [0, n).
func For(n int, f func(i int), cfg Config) {
	ForRange(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			f(i)
		}
	}, cfg)
}

// ForBatch calls f for every (batch, channel) pair.
func ForBatch(batch, channels int, f func(b, c int), cfg Config) {
	For(batch*channels, func(k int) { f(k/channels, k%channels) }, cfg)
}
