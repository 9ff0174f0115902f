package operators

import (
	"fmt"

	"github.com/born-ml/zooexport/internal/tensor"
)

func handleAdd(env *Env, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("add", inputs, 2, 2); err != nil {
		return nil, err
	}
	result := env.Backend.Add(inputs[0], inputs[1])
	return []*tensor.RawTensor{result}, nil
}

func handleSum(env *Env, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if len(inputs) == 0 || inputs[0] == nil {
		return nil, fmt.Errorf("sum requires at least 1 input")
	}
	result := inputs[0]
	for i := 1; i < len(inputs); i++ {
		result = env.Backend.Add(result, inputs[i])
	}
	return []*tensor.RawTensor{result}, nil
}

func handleMatMul(env *Env, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("matMul", inputs, 2, 2); err != nil {
		return nil, err
	}
	result := env.Backend.MatMul(inputs[0], inputs[1])
	return []*tensor.RawTensor{result}, nil
}

// handleGemm implements General Matrix Multiplication: Y = alpha*A'*B' + beta*C.
func handleGemm(env *Env, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("gemm", inputs, 2, 3); err != nil {
		return nil, err
	}

	alpha := node.FloatAttr("alpha", 1.0)
	beta := node.FloatAttr("beta", 1.0)
	transA := node.IntAttr("transA", 0) != 0
	transB := node.IntAttr("transB", 0) != 0

	var c *tensor.RawTensor
	if len(inputs) == 3 {
		c = inputs[2]
	}
	result := env.Backend.Gemm(inputs[0], inputs[1], c, alpha, beta, transA, transB)
	return []*tensor.RawTensor{result}, nil
}

func handleRelu(env *Env, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("relu", inputs, 1, 1); err != nil {
		return nil, err
	}
	return []*tensor.RawTensor{env.Backend.ReLU(inputs[0])}, nil
}

// requireInputs checks the input count and that the first minimum inputs are present.
func requireInputs(op string, inputs []*tensor.RawTensor, minimum, maximum int) error {
	if len(inputs) < minimum || len(inputs) > maximum {
		if minimum == maximum {
			return fmt.Errorf("%s requires %d inputs, got %d", op, minimum, len(inputs))
		}
		return fmt.Errorf("%s requires %d to %d inputs, got %d", op, minimum, maximum, len(inputs))
	}
	for i := 0; i < minimum; i++ {
		if inputs[i] == nil {
			return fmt.Errorf("%s: input %d is required", op, i)
		}
	}
	return nil
}
