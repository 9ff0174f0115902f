package nn

import (
	"fmt"

	"github.com/born-ml/zooexport/internal/tensor"
)

// MaxPool2D pools square windows of NCHW input. Padding may not exceed half
// the kernel, the bound ONNX MaxPool and torch share.
type MaxPool2D[B tensor.Backend] struct {
	stateless[B]
	kernel, stride, padding int
}

func NewMaxPool2D[B tensor.Backend](kernel, stride, padding int) *MaxPool2D[B] {
	if kernel <= 0 || stride <= 0 || padding < 0 || 2*padding > kernel {
		panic(fmt.Sprintf("maxpool2d: invalid kernel=%d stride=%d padding=%d", kernel, stride, padding))
	}
	return &MaxPool2D[B]{kernel: kernel, stride: stride, padding: padding}
}

func (m *MaxPool2D[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	b := x.Backend()
	return tensor.New[float32](b.MaxPool2D(x.Raw(), m.kernel, m.stride, m.padding), b)
}

// AdaptiveAvgPool2D reduces every channel to 1x1, the only output size
// classification heads need.
type AdaptiveAvgPool2D[B tensor.Backend] struct {
	stateless[B]
}

func NewAdaptiveAvgPool2D[B tensor.Backend]() *AdaptiveAvgPool2D[B] {
	return &AdaptiveAvgPool2D[B]{}
}

func (*AdaptiveAvgPool2D[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	b := x.Backend()
	return tensor.New[float32](b.GlobalAvgPool2D(x.Raw()), b)
}

// Flatten folds the axes from axis onwards into one.
type Flatten[B tensor.Backend] struct {
	stateless[B]
	axis int
}

func NewFlatten[B tensor.Backend](axis int) *Flatten[B] {
	return &Flatten[B]{axis: axis}
}

func (f *Flatten[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return x.Flatten(f.axis)
}
