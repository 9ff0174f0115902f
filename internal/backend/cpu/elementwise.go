package cpu

import (
	"fmt"

	"github.com/born-ml/zooexport/internal/tensor"
)

// Add sums a and b with NumPy broadcasting. Equal shapes reuse a's buffer
// when a holds the only reference to it.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("add", a, b)
	shape, broadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("add: %v", err))
	}
	x, y := a.AsFloat32(), b.AsFloat32()

	if !broadcast && a.IsUnique() {
		for i, v := range y {
			x[i] += v
		}
		return a
	}

	out := cpu.newFloat32("add", shape)
	dst := out.AsFloat32()
	if !broadcast {
		for i := range dst {
			dst[i] = x[i] + y[i]
		}
		return out
	}
	ai, bi := newBroadcaster(a.Shape(), shape), newBroadcaster(b.Shape(), shape)
	for i := range dst {
		dst[i] = x[ai.index(i)] + y[bi.index(i)]
	}
	return out
}

// ReLU clamps negatives to zero.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("relu", x)
	out := cpu.newFloat32("relu", x.Shape())
	dst := out.AsFloat32()
	for i, v := range x.AsFloat32() {
		dst[i] = max(v, 0)
	}
	return out
}
