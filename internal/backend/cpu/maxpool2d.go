package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/zooexport/internal/parallel"
	"github.com/born-ml/zooexport/internal/tensor"
)

// pool2d is the geometry of a square pooling window over NCHW input.
type pool2d struct {
	n, c, h, w     int
	outH, outW     int
	kernel, stride int
	pad            int
}

func newPool2d(op string, shape tensor.Shape, kernel, stride, pad int) pool2d {
	if len(shape) != 4 {
		panic(fmt.Sprintf("%s: expected NCHW input, got %v", op, shape))
	}
	p := pool2d{n: shape[0], c: shape[1], h: shape[2], w: shape[3], kernel: kernel, stride: stride, pad: pad}
	switch {
	case kernel <= 0 || stride <= 0:
		panic(fmt.Sprintf("%s: kernel %d and stride %d must be positive", op, kernel, stride))
	case pad < 0 || 2*pad > kernel:
		panic(fmt.Sprintf("%s: padding %d outside [0, %d]", op, pad, kernel/2))
	case kernel > p.h+2*pad || kernel > p.w+2*pad:
		panic(fmt.Sprintf("%s: kernel %d larger than padded %dx%d input", op, kernel, p.h, p.w))
	}
	p.outH = (p.h+2*pad-kernel)/stride + 1
	p.outW = (p.w+2*pad-kernel)/stride + 1
	return p
}

// span clips the window starting at output position o to [0, size).
func (p pool2d) span(o, size int) (lo, hi int) {
	start := o*p.stride - p.pad
	return max(start, 0), min(start+p.kernel, size)
}

// MaxPool2D takes the maximum over each kernel x kernel window. Padding
// cells never win.
//
//	[[1 2 3 4]
//	 [5 6 7 8]      kernel 2, stride 2     [[ 6  8]
//	 [9 10 11 12]   ------------------->    [14 16]]
//	 [13 14 15 16]]
func (cpu *CPUBackend) MaxPool2D(x *tensor.RawTensor, kernel, stride, pad int) *tensor.RawTensor {
	requireFloat32("maxpool2d", x)
	p := newPool2d("maxpool2d", x.Shape(), kernel, stride, pad)
	out := cpu.newFloat32("maxpool2d", tensor.Shape{p.n, p.c, p.outH, p.outW})
	src, dst := x.AsFloat32(), out.AsFloat32()

	parallel.ForBatch(p.n, p.c, func(n, c int) {
		plane := src[(n*p.c+c)*p.h*p.w:][:p.h*p.w]
		res := dst[(n*p.c+c)*p.outH*p.outW:][:p.outH*p.outW]
		for oy := range p.outH {
			y0, y1 := p.span(oy, p.h)
			for ox := range p.outW {
				x0, x1 := p.span(ox, p.w)
				best := float32(math.Inf(-1))
				for y := y0; y < y1; y++ {
					for _, v := range plane[y*p.w+x0 : y*p.w+x1] {
						best = max(best, v)
					}
				}
				res[oy*p.outW+ox] = best
			}
		}
	}, cpu.parallel)
	return out
}

// GlobalAvgPool2D averages each spatial plane, [N, C, H, W] to [N, C, 1, 1].
// Sums accumulate in float64.
func (cpu *CPUBackend) GlobalAvgPool2D(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("globalavgpool2d", x)
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("globalavgpool2d: expected NCHW input, got %v", shape))
	}
	size := shape[2] * shape[3]
	out := cpu.newFloat32("globalavgpool2d", tensor.Shape{shape[0], shape[1], 1, 1})
	src, dst := x.AsFloat32(), out.AsFloat32()
	for i := range dst {
		var sum float64
		for _, v := range src[i*size : (i+1)*size] {
			sum += float64(v)
		}
		dst[i] = float32(sum / float64(size))
	}
	return out
}
