package cpu

import (
	"fmt"

	"github.com/born-ml/zooexport/internal/parallel"
	"github.com/born-ml/zooexport/internal/tensor"
)

// MatMul performs matrix multiplication: (M, K) @ (K, N) → (M, N).
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.Gemm(a, b, nil, 1, 0, false, false)
}

// Gemm computes alpha*A'*B' + beta*C with the ONNX Gemm semantics.
// A' is A or Aᵀ, B' is B or Bᵀ. C is optional and unidirectionally
// broadcast to (M, N).
func (cpu *CPUBackend) Gemm(a, b, c *tensor.RawTensor, alpha, beta float32, transA, transB bool) *tensor.RawTensor {
	requireFloat32("gemm", a, b, c)
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("gemm: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}

	m, k := aShape[0], aShape[1]
	if transA {
		m, k = k, m
	}
	kAlt, n := bShape[0], bShape[1]
	if transB {
		kAlt, n = n, kAlt
	}
	if k != kAlt {
		panic(fmt.Sprintf("gemm: shape mismatch %v (transA=%t) @ %v (transB=%t)", aShape, transA, bShape, transB))
	}

	out := tensor.Shape{m, n}
	result := cpu.newFloat32("gemm", out)
	dst := result.AsFloat32()
	ad, bd := a.AsFloat32(), b.AsFloat32()

	// Element (i, p) of A' and (p, j) of B' in row-major storage.
	aRow, aCol := k, 1
	if transA {
		aRow, aCol = 1, m
	}
	bRow, bCol := n, 1
	if transB {
		bRow, bCol = 1, k
	}

	cpu.parallelRows(m, n*k, func(i int) {
		for j := 0; j < n; j++ {
			var sum float32
			for p := 0; p < k; p++ {
				sum += ad[i*aRow+p*aCol] * bd[p*bRow+j*bCol]
			}
			dst[i*n+j] = alpha * sum
		}
	})

	if c != nil && beta != 0 {
		if _, _, err := tensor.BroadcastShapes(c.Shape(), out); err != nil || len(c.Shape()) > 2 {
			panic(fmt.Sprintf("gemm: C of shape %v does not broadcast to %v", c.Shape(), out))
		}
		ci := newBroadcaster(c.Shape(), out)
		cd := c.AsFloat32()
		for i := range dst {
			dst[i] += beta * cd[ci.index(i)]
		}
	}
	return result
}

// parallelRows runs f for every row. Small products stay on one goroutine.
func (cpu *CPUBackend) parallelRows(rows, workPerRow int, f func(i int)) {
	cfg := cpu.parallel
	if rows*workPerRow < 1<<16 {
		cfg.Workers = 1
	}
	cfg.MinChunk = 1
	parallel.For(rows, f, cfg)
}
