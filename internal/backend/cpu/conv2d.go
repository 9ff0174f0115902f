package cpu

import (
	"fmt"

	"github.com/born-ml/zooexport/internal/parallel"
	"github.com/born-ml/zooexport/internal/tensor"
)

// Conv2D performs 2D convolution using the im2col algorithm.
//
// Input shape:  [N, C_in, H, W]
// Kernel shape: [C_out, C_in, K_h, K_w]
// Bias shape:   [C_out] (optional, may be nil)
// Output shape: [N, C_out, H_out, W_out]
//
//	H_out = (H + 2*padding - K_h) / stride + 1
//	W_out = (W + 2*padding - K_w) / stride + 1
//
// Patches are unrolled into rows of a column buffer and multiplied with the
// flattened kernel; output positions are split across goroutines.
func (cpu *CPUBackend) Conv2D(input, kernel, bias *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	requireFloat32("conv2d", input, kernel, bias)
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in,K_h,K_w], got %dD", len(kernelShape)))
	}
	if stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d or padding %d", stride, padding))
	}

	N, CIn, H, W := inputShape[0], inputShape[1], inputShape[2], inputShape[3]
	COut, CInK, KH, KW := kernelShape[0], kernelShape[1], kernelShape[2], kernelShape[3]

	if CIn != CInK {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", CIn, CInK))
	}
	if bias != nil && (len(bias.Shape()) != 1 || bias.Shape()[0] != COut) {
		panic(fmt.Sprintf("conv2d: bias shape %v, want (%d)", bias.Shape(), COut))
	}

	HOut := (H+2*padding-KH)/stride + 1
	WOut := (W+2*padding-KW)/stride + 1
	if H+2*padding < KH || W+2*padding < KW || HOut <= 0 || WOut <= 0 {
		panic(fmt.Sprintf("conv2d: kernel %dx%d does not fit input %dx%d with padding %d", KH, KW, H, W, padding))
	}

	output := cpu.newFloat32("conv2d", tensor.Shape{N, COut, HOut, WOut})

	var biasData []float32
	if bias != nil {
		biasData = bias.AsFloat32()
	}

	geom := convGeometry{C: CIn, H: H, W: W, KH: KH, KW: KW, HOut: HOut, WOut: WOut, stride: stride, padding: padding}
	colWidth := CIn * KH * KW
	positions := HOut * WOut
	colBuf := make([]float32, positions*colWidth)
	kernelData := kernel.AsFloat32()
	inputData := input.AsFloat32()
	outputData := output.AsFloat32()

	cfg := cpu.parallel
	cfg.MinChunk = max(1, cfg.MinChunk/4)

	for n := 0; n < N; n++ {
		sample := inputData[n*CIn*H*W : (n+1)*CIn*H*W]
		out := outputData[n*COut*positions : (n+1)*COut*positions]

		parallel.ForRange(positions, func(start, end int) {
			im2colFloat32(colBuf, sample, geom, start, end)
		}, cfg)

		parallel.ForRange(positions, func(start, end int) {
			for j := start; j < end; j++ {
				col := colBuf[j*colWidth : (j+1)*colWidth]
				for c := 0; c < COut; c++ {
					k := kernelData[c*colWidth : (c+1)*colWidth]
					var sum float32
					for i, v := range col {
						sum += k[i] * v
					}
					if biasData != nil {
						sum += biasData[c]
					}
					out[c*positions+j] = sum
				}
			}
		}, cfg)
	}

	return output
}

type convGeometry struct {
	C, H, W         int
	KH, KW          int
	HOut, WOut      int
	stride, padding int
}

// im2colFloat32 fills rows [start, end) of colBuf, one row per output
// position of a single sample. Out-of-bounds taps read as zero.
func im2colFloat32(colBuf, sample []float32, g convGeometry, start, end int) {
	colWidth := g.C * g.KH * g.KW

	for pos := start; pos < end; pos++ {
		hStart := (pos/g.WOut)*g.stride - g.padding
		wStart := (pos%g.WOut)*g.stride - g.padding
		row := colBuf[pos*colWidth : (pos+1)*colWidth]
		idx := 0

		for c := 0; c < g.C; c++ {
			plane := sample[c*g.H*g.W : (c+1)*g.H*g.W]
			for kh := 0; kh < g.KH; kh++ {
				h := hStart + kh
				for kw := 0; kw < g.KW; kw++ {
					w := wStart + kw
					if h >= 0 && h < g.H && w >= 0 && w < g.W {
						row[idx] = plane[h*g.W+w]
					} else {
						row[idx] = 0
					}
					idx++
				}
			}
		}
	}
}
