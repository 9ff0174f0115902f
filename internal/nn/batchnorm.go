package nn

import (
	"fmt"

	"github.com/born-ml/zooexport/internal/tensor"
)

// DefaultBatchNormEps is PyTorch's BatchNorm2d default epsilon.
const DefaultBatchNormEps = 1e-5

// BatchNorm2D normalizes each channel of an NCHW tensor with its running
// statistics:
//
//	y = (x - running_mean) / sqrt(running_var + eps) * weight + bias
//
// Running statistics are never updated; the zoo only loads them. Forward
// uses them in both modes.
type BatchNorm2D[B tensor.Backend] struct {
	mode
	numFeatures int
	eps         float32

	weight      *Parameter[B]
	bias        *Parameter[B]
	runningMean *Parameter[B]
	runningVar  *Parameter[B]
}

// NewBatchNorm2D creates a BatchNorm layer with weight=1, bias=0,
// running_mean=0 and running_var=1.
func NewBatchNorm2D[B tensor.Backend](numFeatures int, backend B) *BatchNorm2D[B] {
	if numFeatures <= 0 {
		panic(fmt.Sprintf("batchnorm2d: invalid feature count %d", numFeatures))
	}
	shape := tensor.Shape{numFeatures}
	return &BatchNorm2D[B]{
		numFeatures: numFeatures,
		eps:         DefaultBatchNormEps,
		weight:      NewParameter("weight", filled(shape, 1, backend)),
		bias:        NewParameter("bias", filled(shape, 0, backend)),
		runningMean: NewParameter("running_mean", filled(shape, 0, backend)),
		runningVar:  NewParameter("running_var", filled(shape, 1, backend)),
	}
}

// Forward normalizes the input.
func (bn *BatchNorm2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 || shape[1] != bn.numFeatures {
		panic(fmt.Sprintf("batchnorm2d: expected [N,%d,H,W] input, got %v", bn.numFeatures, shape))
	}
	b := input.Backend()
	out := b.BatchNorm2D(input.Raw(), bn.weight.Raw(), bn.bias.Raw(), bn.runningMean.Raw(), bn.runningVar.Raw(), bn.eps)
	return tensor.New[float32, B](out, b)
}

// Parameters returns the learned affine parameters (weight, bias).
func (bn *BatchNorm2D[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.weight, bn.bias}
}

// StateDict returns weight, bias, running_mean and running_var.
func (bn *BatchNorm2D[B]) StateDict() map[string]*tensor.RawTensor {
	return stateOf(bn.weight, bn.bias, bn.runningMean, bn.runningVar)
}

// LoadStateDict loads the affine parameters and running statistics.
func (bn *BatchNorm2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadParams(stateDict, bn.weight, bn.bias, bn.runningMean, bn.runningVar)
}
