package operators

import (
	"github.com/born-ml/zooexport/internal/tensor"
)

func handleIdentity(_ *Env, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("identity", inputs, 1, 1); err != nil {
		return nil, err
	}
	return []*tensor.RawTensor{inputs[0]}, nil
}

// handleDropout is the identity at inference time. The optional mask output
// is not produced.
func handleDropout(_ *Env, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("dropout", inputs, 1, 3); err != nil {
		return nil, err
	}
	return []*tensor.RawTensor{inputs[0]}, nil
}
