package operators

import (
	"fmt"

	"github.com/born-ml/zooexport/internal/tensor"
)

// window holds the 2D window attributes shared by Conv and MaxPool.
// The backend only runs square kernels with equal strides and symmetric pads.
type window struct {
	kernel, stride, padding int
}

func parseWindow(op string, node *Node, kernelFromWeights []int) (window, error) {
	if autoPad := node.StringAttr("auto_pad", "NOTSET"); autoPad != "NOTSET" {
		return window{}, fmt.Errorf("%s: auto_pad %q is not supported", op, autoPad)
	}

	kernel := node.IntsAttr("kernel_shape")
	if len(kernel) == 0 {
		for _, k := range kernelFromWeights {
			kernel = append(kernel, int64(k))
		}
	}
	k, err := uniform(op, "kernel_shape", kernel, 2, 0)
	if err != nil {
		return window{}, err
	}
	s, err := uniform(op, "strides", node.IntsAttr("strides"), 2, 1)
	if err != nil {
		return window{}, err
	}
	p, err := uniform(op, "pads", node.IntsAttr("pads"), 4, 0)
	if err != nil {
		return window{}, err
	}
	d, err := uniform(op, "dilations", node.IntsAttr("dilations"), 2, 1)
	if err != nil {
		return window{}, err
	}
	if d != 1 {
		return window{}, fmt.Errorf("%s: dilation %d is not supported", op, d)
	}
	return window{kernel: k, stride: s, padding: p}, nil
}

// uniform reads an attribute whose n entries must all be equal.
// An absent attribute yields def.
func uniform(op, name string, vals []int64, n int, def int) (int, error) {
	if len(vals) == 0 {
		return def, nil
	}
	if len(vals) != n {
		return 0, fmt.Errorf("%s: %s needs %d values, got %v", op, name, n, vals)
	}
	for _, v := range vals[1:] {
		if v != vals[0] {
			return 0, fmt.Errorf("%s: non-uniform %s %v is not supported", op, name, vals)
		}
	}
	return int(vals[0]), nil
}

func handleConv(env *Env, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("conv", inputs, 2, 3); err != nil {
		return nil, err
	}
	if group := node.IntAttr("group", 1); group != 1 {
		return nil, fmt.Errorf("conv: group %d is not supported", group)
	}

	weight := inputs[1]
	if len(weight.Shape()) != 4 {
		return nil, fmt.Errorf("conv: weight must be 4D, got %v", weight.Shape())
	}
	w, err := parseWindow("conv", node, weight.Shape()[2:])
	if err != nil {
		return nil, err
	}
	if weight.Shape()[2] != w.kernel || weight.Shape()[3] != w.kernel {
		return nil, fmt.Errorf("conv: kernel_shape %d does not match weight %v", w.kernel, weight.Shape())
	}

	var bias *tensor.RawTensor
	if len(inputs) == 3 {
		bias = inputs[2]
	}
	result := env.Backend.Conv2D(inputs[0], weight, bias, w.stride, w.padding)
	return []*tensor.RawTensor{result}, nil
}

// handleBatchNormalization runs the inference form with running statistics.
func handleBatchNormalization(env *Env, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("batchNormalization", inputs, 5, 5); err != nil {
		return nil, err
	}
	if node.IntAttr("training_mode", 0) != 0 {
		return nil, fmt.Errorf("batchNormalization: training_mode is not supported")
	}
	eps := node.FloatAttr("epsilon", 1e-5)
	result := env.Backend.BatchNorm2D(inputs[0], inputs[1], inputs[2], inputs[3], inputs[4], eps)
	return []*tensor.RawTensor{result}, nil
}

func handleMaxPool(env *Env, node *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("maxPool", inputs, 1, 1); err != nil {
		return nil, err
	}
	if node.IntAttr("ceil_mode", 0) != 0 {
		return nil, fmt.Errorf("maxPool: ceil_mode is not supported")
	}
	if len(node.Outputs) > 1 {
		return nil, fmt.Errorf("maxPool: Indices output is not supported")
	}
	w, err := parseWindow("maxPool", node, nil)
	if err != nil {
		return nil, err
	}
	if w.kernel == 0 {
		return nil, fmt.Errorf("maxPool: kernel_shape is required")
	}
	result := env.Backend.MaxPool2D(inputs[0], w.kernel, w.stride, w.padding)
	return []*tensor.RawTensor{result}, nil
}

func handleGlobalAveragePool(env *Env, _ *Node, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := requireInputs("globalAveragePool", inputs, 1, 1); err != nil {
		return nil, err
	}
	return []*tensor.RawTensor{env.Backend.GlobalAvgPool2D(inputs[0])}, nil
}
