package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/zooexport/internal/tensor"
)

// Linear computes y = x W^T + b for x of shape [batch, in]. It lowers to a
// single Gemm with transB=1, the form classifier heads take in exported
// graphs.
type Linear[B tensor.Backend] struct {
	mode
	in     int
	weight *Parameter[B] // [out, in]
	bias   *Parameter[B] // [out]
}

// NewLinear draws weight and bias from U(-1/sqrt(in), 1/sqrt(in)).
func NewLinear[B tensor.Backend](in, out int, rng *rand.Rand, backend B) *Linear[B] {
	if in <= 0 || out <= 0 {
		panic(fmt.Sprintf("linear: invalid features in=%d out=%d", in, out))
	}
	return &Linear[B]{
		in:     in,
		weight: NewParameter("weight", fanInUniform(in, tensor.Shape{out, in}, rng, backend)),
		bias:   NewParameter("bias", fanInUniform(in, tensor.Shape{out}, rng, backend)),
	}
}

func (l *Linear[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if s := x.Shape(); len(s) != 2 || s[1] != l.in {
		panic(fmt.Sprintf("linear: expected [N,%d] input, got %v", l.in, s))
	}
	b := x.Backend()
	return tensor.New[float32](b.Gemm(x.Raw(), l.weight.Raw(), l.bias.Raw(), 1, 1, false, true), b)
}

func (l *Linear[B]) Parameters() []*Parameter[B] { return []*Parameter[B]{l.weight, l.bias} }

func (l *Linear[B]) Weight() *Parameter[B] { return l.weight }

func (l *Linear[B]) StateDict() map[string]*tensor.RawTensor {
	return stateOf(l.weight, l.bias)
}

func (l *Linear[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	return loadParams(sd, l.weight, l.bias)
}
