package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForRangeCoversEveryIndexOnce(t *testing.T) {
	for name, cfg := range map[string]Config{
		"default":        DefaultConfig(),
		"sequential":     Sequential(),
		"small":          {Workers: 4, MinChunk: 3},
		"oversubscribed": {Workers: 64, MinChunk: 1},
	} {
		t.Run(name, func(t *testing.T) {
			hits := make([]int32, 50)
			ForRange(len(hits), func(lo, hi int) {
				for i := lo; i < hi; i++ {
					atomic.AddInt32(&hits[i], 1)
				}
			}, cfg)
			for i, h := range hits {
				assert.EqualValues(t, 1, h, "index %d", i)
			}
		})
	}
}

func TestChunk(t *testing.T) {
	assert.Equal(t, 10, Config{Workers: 1, MinChunk: 1}.chunk(10))
	assert.Equal(t, 10, Config{Workers: 8, MinChunk: 64}.chunk(10), "too little work to split")
	assert.Equal(t, 25, Config{Workers: 4, MinChunk: 3}.chunk(100))
	assert.Equal(t, 64, Config{Workers: 8, MinChunk: 64}.chunk(200))
}

func TestForRangeEmpty(t *testing.T) {
	ForRange(0, func(_, _ int) { t.Fatal("called for n = 0") }, DefaultConfig())
}

func TestForBatch(t *testing.T) {
	var seen [4][8]atomic.Bool
	ForBatch(4, 8, func(b, c int) { seen[b][c].Store(true) }, Config{Workers: 3, MinChunk: 2})
	for b := range seen {
		for c := range seen[b] {
			assert.True(t, seen[b][c].Load(), "(%d, %d)", b, c)
		}
	}
}

func BenchmarkFor(b *testing.B) {
	data := make([]float32, 10000)
	for name, cfg := range map[string]Config{"parallel": DefaultConfig(), "sequential": Sequential()} {
		b.Run(name, func(b *testing.B) {
			for b.Loop() {
				For(len(data), func(j int) { data[j] = float32(j) * 0.5 }, cfg)
			}
		})
	}
}
