package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/zooexport/internal/tensor"
)

// Conv2D is a square-kernel convolution over NCHW input with symmetric
// padding. The weight is [out, in, k, k]; the bias, when present, is [out].
//
//	conv := nn.NewConv2D(3, 64, 7, 2, 3, false, rng, backend)
//	y := conv.Forward(x) // [1, 64, 112, 112] for a 224x224 input
type Conv2D[B tensor.Backend] struct {
	mode
	in, stride, padding int

	weight *Parameter[B]
	bias   *Parameter[B] // nil without bias
}

// NewConv2D draws the kernel with KaimingNormal over fan_out and zeroes the
// bias, as torchvision's ResNet does.
func NewConv2D[B tensor.Backend](in, out, kernel, stride, padding int, withBias bool, rng *rand.Rand, backend B) *Conv2D[B] {
	if in <= 0 || out <= 0 || kernel <= 0 || stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("conv2d: invalid geometry in=%d out=%d kernel=%d stride=%d padding=%d",
			in, out, kernel, stride, padding))
	}
	c := &Conv2D[B]{
		in:      in,
		stride:  stride,
		padding: padding,
		weight:  NewParameter("weight", KaimingNormal(out*kernel*kernel, tensor.Shape{out, in, kernel, kernel}, rng, backend)),
	}
	if withBias {
		c.bias = NewParameter("bias", filled(tensor.Shape{out}, 0, backend))
	}
	return c
}

func (c *Conv2D[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if s := x.Shape(); len(s) != 4 || s[1] != c.in {
		panic(fmt.Sprintf("conv2d: expected [N,%d,H,W] input, got %v", c.in, s))
	}
	var bias *tensor.RawTensor
	if c.bias != nil {
		bias = c.bias.Raw()
	}
	b := x.Backend()
	return tensor.New[float32](b.Conv2D(x.Raw(), c.weight.Raw(), bias, c.stride, c.padding), b)
}

func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	if c.bias != nil {
		return []*Parameter[B]{c.weight, c.bias}
	}
	return []*Parameter[B]{c.weight}
}

func (c *Conv2D[B]) Weight() *Parameter[B] { return c.weight }

// Bias is nil for a convolution built without one.
func (c *Conv2D[B]) Bias() *Parameter[B] { return c.bias }

func (c *Conv2D[B]) StateDict() map[string]*tensor.RawTensor {
	return stateOf(c.weight, c.bias)
}

func (c *Conv2D[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	return loadParams(sd, c.weight, c.bias)
}
