package cpu

import (
	"fmt"
	"slices"

	"github.com/born-ml/zooexport/internal/tensor"
)

// Reshape returns a view of t's buffer with a new shape of equal size.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	view, err := t.WithShape(shape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return view
}

// Flatten views x as (prod(shape[:axis]), prod(shape[axis:])). A negative
// axis counts from the end.
func (cpu *CPUBackend) Flatten(x *tensor.RawTensor, axis int) *tensor.RawTensor {
	rank := len(x.Shape())
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis > rank {
		panic(fmt.Sprintf("flatten: axis %d out of range for rank %d", axis, rank))
	}
	outer := x.Shape()[:axis].NumElements()
	return cpu.Reshape(x, tensor.Shape{outer, x.NumElements() / outer})
}

// Transpose permutes axes, reversing them when none are given.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	requireFloat32("transpose", t)
	shape := t.Shape()
	rank := len(shape)
	if len(axes) == 0 {
		for i := rank - 1; i >= 0; i-- {
			axes = append(axes, i)
		}
	}
	sorted := slices.Sorted(slices.Values(axes))
	for i, ax := range sorted {
		if ax != i || len(axes) != rank {
			panic(fmt.Sprintf("transpose: %v is not a permutation of %d axes", axes, rank))
		}
	}

	src := shape.ComputeStrides()
	outShape := make(tensor.Shape, rank)
	perm := broadcaster{in: make([]int, rank)}
	for i, ax := range axes {
		outShape[i] = shape[ax]
		perm.in[i] = src[ax]
	}
	perm.out = outShape.ComputeStrides()

	out := cpu.newFloat32("transpose", outShape)
	dst, data := out.AsFloat32(), t.AsFloat32()
	for i := range dst {
		dst[i] = data[perm.index(i)]
	}
	return out
}
