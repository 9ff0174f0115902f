package nn

import "github.com/born-ml/zooexport/internal/tensor"

// ReLU is the stateless max(0, x) module.
type ReLU[B tensor.Backend] struct {
	stateless[B]
}

func NewReLU[B tensor.Backend]() *ReLU[B] { return &ReLU[B]{} }

func (*ReLU[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] { return x.ReLU() }
