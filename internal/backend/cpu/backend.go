// Package cpu implements the eager float32 CPU backend.
package cpu

import (
	"fmt"

	"github.com/born-ml/zooexport/internal/parallel"
	"github.com/born-ml/zooexport/internal/tensor"
)

// CPUBackend runs every op eagerly on float32 data in host memory.
type CPUBackend struct {
	parallel parallel.Config
}

// Option configures a CPUBackend.
type Option func(*CPUBackend)

// WithParallel sets the goroutine fan-out of the conv, matmul and pool
// kernels.
func WithParallel(cfg parallel.Config) Option {
	return func(c *CPUBackend) { c.parallel = cfg }
}

func New(opts ...Option) *CPUBackend {
	c := &CPUBackend{parallel: parallel.DefaultConfig()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (*CPUBackend) Name() string          { return "CPU" }
func (*CPUBackend) Device() tensor.Device { return tensor.CPU }

func (cpu *CPUBackend) newFloat32(op string, shape tensor.Shape) *tensor.RawTensor {
	out, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		panic(fmt.Sprintf("%s: allocate %v: %v", op, shape, err))
	}
	return out
}

func requireFloat32(op string, ts ...*tensor.RawTensor) {
	for _, t := range ts {
		if t != nil && t.DType() != tensor.Float32 {
			panic(fmt.Sprintf("%s: unsupported dtype %s", op, t.DType()))
		}
	}
}
