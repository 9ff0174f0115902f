package tensor

import (
	"math"
	"math/rand/v2"
)

// Zeros creates a tensor filled with zeros.
func Zeros[T DType, B Backend](shape Shape, b B) *Tensor[T, B] {
	t, err := alloc[T](shape, b)
	if err != nil {
		panic(err)
	}
	return t
}

// Full creates a tensor filled with a specific value.
//
//	t := tensor.Full[float32](Shape{3, 3}, 3.14, backend)
func Full[T DType, B Backend](shape Shape, value T, b B) *Tensor[T, B] {
	t := Zeros[T, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = value
	}
	return t
}

// Ones creates a float tensor filled with ones.
func Ones[T ~float32 | ~float64, B Backend](shape Shape, b B) *Tensor[T, B] {
	return Full[T, B](shape, 1, b)
}

// Randn fills a float32 tensor with N(0, std²) samples drawn from rng.
// The same rng seed always yields the same tensor.
func Randn[B Backend](shape Shape, std float64, rng *rand.Rand, b B) *Tensor[float32, B] {
	t := Zeros[float32, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = float32(rng.NormFloat64() * std)
	}
	return t
}

// Uniform fills a float32 tensor with samples from U(low, high).
func Uniform[B Backend](shape Shape, low, high float64, rng *rand.Rand, b B) *Tensor[float32, B] {
	t := Zeros[float32, B](shape, b)
	data := t.Data()
	for i := range data {
		data[i] = float32(low + rng.Float64()*(high-low))
	}
	return t
}

// NewRand returns a deterministic generator for the given seed.
//
//nolint:gosec // G404: weights and sample inputs only need reproducibility
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// AllClose reports whether a and b have the same shape and every element
// differs by at most atol + rtol*|b|.
func AllClose(a, b *RawTensor, rtol, atol float64) bool {
	if !a.Shape().Equal(b.Shape()) {
		return false
	}
	return MaxAbsDiff(a, b) <= atol+rtol*maxAbs(b)
}

// MaxAbsDiff returns the largest element-wise |a-b| of two float32 tensors.
// Returns +Inf when the element counts differ.
func MaxAbsDiff(a, b *RawTensor) float64 {
	x, y := a.AsFloat32(), b.AsFloat32()
	if len(x) != len(y) {
		return math.Inf(1)
	}
	var worst float64
	for i := range x {
		d := math.Abs(float64(x[i]) - float64(y[i]))
		if d > worst || math.IsNaN(d) {
			worst = d
		}
	}
	return worst
}

func maxAbs(r *RawTensor) float64 {
	var m float64
	for _, v := range r.AsFloat32() {
		m = max(m, math.Abs(float64(v)))
	}
	return m
}
