package operators

import (
	"fmt"

	"github.com/born-ml/zooexport/internal/tensor"
)

func handleReshape(env *Env, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("reshape", inputs, 2, 2); err != nil {
		return nil, err
	}
	if inputs[1].DType() != tensor.Int64 {
		return nil, fmt.Errorf("reshape: shape must be int64, got %s", inputs[1].DType())
	}

	newShape, err := resolveReshape(inputs[0].Shape(), inputs[1].AsInt64(), node.IntAttr("allowzero", 0) != 0)
	if err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	return []*tensor.RawTensor{env.Backend.Reshape(inputs[0], newShape)}, nil
}

// resolveReshape applies the ONNX rules: 0 copies the input dimension
// (unless allowzero is set) and a single -1 is inferred.
func resolveReshape(in tensor.Shape, target []int64, allowZero bool) (tensor.Shape, error) {
	out := make(tensor.Shape, len(target))
	infer := -1
	known := 1
	for i, v := range target {
		switch {
		case v == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("more than one -1 in %v", target)
			}
			infer = i
			continue
		case v == 0 && !allowZero:
			if i >= len(in) {
				return nil, fmt.Errorf("0 at axis %d of %v exceeds input rank %d", i, target, len(in))
			}
			out[i] = in[i]
		case v < 0:
			return nil, fmt.Errorf("invalid dimension %d in %v", v, target)
		default:
			out[i] = int(v)
		}
		known *= out[i]
	}
	if infer >= 0 {
		if known == 0 || in.NumElements()%known != 0 {
			return nil, fmt.Errorf("cannot infer -1 in %v for input %v", target, in)
		}
		out[infer] = in.NumElements() / known
	}
	if out.NumElements() != in.NumElements() {
		return nil, fmt.Errorf("cannot reshape %v into %v", in, out)
	}
	return out, nil
}

func handleTranspose(env *Env, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("transpose", inputs, 1, 1); err != nil {
		return nil, err
	}

	perm := node.IntsAttr("perm")
	var axes []int
	if len(perm) > 0 {
		axes = make([]int, len(perm))
		for i, v := range perm {
			axes[i] = int(v)
		}
	}
	return []*tensor.RawTensor{env.Backend.Transpose(inputs[0], axes...)}, nil
}

func handleFlatten(env *Env, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("flatten", inputs, 1, 1); err != nil {
		return nil, err
	}
	axis := int(node.IntAttr("axis", 1))
	return []*tensor.RawTensor{env.Backend.Flatten(inputs[0], axis)}, nil
}
