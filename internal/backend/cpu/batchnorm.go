package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/zooexport/internal/tensor"
)

// BatchNorm2D applies inference-mode batch normalization per channel:
//
//	y = (x - mean) / sqrt(variance + eps) * scale + shift
//
// x is [N, C, H, W]; scale, shift, mean and variance are [C].
func (cpu *CPUBackend) BatchNorm2D(x, scale, shift, mean, variance *tensor.RawTensor, eps float32) *tensor.RawTensor {
	requireFloat32("batchnorm2d", x, scale, shift, mean, variance)
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("batchnorm2d: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	N, C, plane := shape[0], shape[1], shape[2]*shape[3]
	for _, p := range []*tensor.RawTensor{scale, shift, mean, variance} {
		if len(p.Shape()) != 1 || p.Shape()[0] != C {
			panic(fmt.Sprintf("batchnorm2d: parameter shape %v, want (%d)", p.Shape(), C))
		}
	}

	// Precompute the per-channel affine form y = x*a + b.
	a := make([]float32, C)
	b := make([]float32, C)
	g, bt, m, v := scale.AsFloat32(), shift.AsFloat32(), mean.AsFloat32(), variance.AsFloat32()
	for c := 0; c < C; c++ {
		inv := float32(1 / math.Sqrt(float64(v[c])+float64(eps)))
		a[c] = g[c] * inv
		b[c] = bt[c] - m[c]*a[c]
	}

	output := cpu.newFloat32("batchnorm2d", shape)
	src, dst := x.AsFloat32(), output.AsFloat32()
	for n := 0; n < N; n++ {
		for c := 0; c < C; c++ {
			off := (n*C + c) * plane
			for i := off; i < off+plane; i++ {
				dst[i] = src[i]*a[c] + b[c]
			}
		}
	}
	return output
}
