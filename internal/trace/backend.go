// Package trace records a forward pass as an ONNX-shaped graph.
//
// Backend wraps any tensor.Backend with the decorator pattern. Every call is
// computed by the wrapped backend and recorded as one node, so running a
// model's Forward on a traced input yields both the eager result and the
// graph that produced it.
//
// Usage:
//
//	tracer := trace.New[tensor.Backend](cpu.New())
//	for name, p := range model.StateDict() {
//	    tracer.Bind(p, name)
//	}
//	x := tensor.WithBackend[float32, tensor.Backend](sample, tracer)
//	tracer.BindInput(x.Raw(), "input.0")
//	y := model.Forward(x)
//	err := tracer.MarkOutput(y.Raw(), "output.0")
//	graph := tracer.Graph()
package trace

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/zooexport/internal/onnx"
	"github.com/born-ml/zooexport/internal/tensor"
)

// batchNormMomentum is the ONNX attribute torch.onnx writes for the default
// BatchNorm2d momentum of 0.1; ONNX weighs the running value instead of the
// update. Running statistics are only loaded here, so the value is fixed.
const batchNormMomentum = 0.9

// ErrUnknownValue is returned when a tensor was not produced, bound or
// consumed during the trace.
var ErrUnknownValue = errors.New("tensor is not part of the trace")

// Backend records every call into a Graph while delegating the computation
// to the wrapped backend. It is not safe for concurrent use.
type Backend[B tensor.Backend] struct {
	inner B
	graph *Graph

	names     map[*tensor.RawTensor]string // value name of every known tensor
	bound     map[*tensor.RawTensor]string // parameters not yet consumed
	scopes    []string
	nodeNames map[string]int // uses of each node name, for _n suffixes
	constants map[string]int // onnx::<Op>_<n> counters
}

// New creates a tracing backend around inner.
func New[B tensor.Backend](inner B) *Backend[B] {
	return &Backend[B]{
		inner:     inner,
		graph:     newGraph(),
		names:     make(map[*tensor.RawTensor]string),
		bound:     make(map[*tensor.RawTensor]string),
		nodeNames: make(map[string]int),
		constants: make(map[string]int),
	}
}

// Name returns the backend name.
func (b *Backend[B]) Name() string {
	return "Trace(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *Backend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// Graph returns the graph recorded so far.
func (b *Backend[B]) Graph() *Graph {
	return b.graph
}

// Bind names a parameter. It becomes an initializer on first use; bound
// tensors no op reads are not part of the graph.
func (b *Backend[B]) Bind(raw *tensor.RawTensor, name string) {
	b.bound[raw] = name
}

// BindInput declares raw as a graph input.
func (b *Backend[B]) BindInput(raw *tensor.RawTensor, name string) {
	b.names[raw] = name
	b.graph.Inputs = append(b.graph.Inputs, name)
	b.graph.Values[name] = valueOf(raw)
}

// MarkOutput declares raw as a graph output under name. The producing
// node's output is renamed; a graph input or constant is routed through an
// Identity node instead.
func (b *Backend[B]) MarkOutput(raw *tensor.RawTensor, name string) error {
	current, ok := b.names[raw]
	if !ok {
		return ErrUnknownValue
	}
	if current != name {
		if _, taken := b.graph.Values[name]; taken {
			return fmt.Errorf("output name %q is already used by another value", name)
		}
	}

	if b.graph.Producer(current) == nil {
		b.record("Identity", []string{current}, name, raw, nil)
	} else if current != name {
		b.graph.rename(current, name)
		b.names[raw] = name
	}
	b.graph.Outputs = append(b.graph.Outputs, name)
	return nil
}

// PushScope enters a submodule. Node names are prefixed with the scope path.
func (b *Backend[B]) PushScope(name string) {
	b.scopes = append(b.scopes, name)
}

// PopScope leaves the innermost submodule.
func (b *Backend[B]) PopScope() {
	if len(b.scopes) > 0 {
		b.scopes = b.scopes[:len(b.scopes)-1]
	}
}

// scopePath returns "/a/b" for the current scope stack.
func (b *Backend[B]) scopePath() string {
	if len(b.scopes) == 0 {
		return ""
	}
	return "/" + strings.Join(b.scopes, "/")
}

// input returns the value name of a tensor an op reads. Bound parameters and
// unknown tensors become initializers.
func (b *Backend[B]) input(raw *tensor.RawTensor, opType string) string {
	if name, ok := b.names[raw]; ok {
		return name
	}
	name, ok := b.bound[raw]
	if !ok {
		name = fmt.Sprintf("onnx::%s_%d", opType, b.constants[opType])
		b.constants[opType]++
	}
	b.names[raw] = name
	b.graph.SetInitializer(name, raw)
	return name
}

// record appends a node that reads inputs and produces out. out must be a
// tensor the trace has not seen yet.
func (b *Backend[B]) record(opType string, inputs []string, outName string, out *tensor.RawTensor, attrs []onnx.AttributeProto) *tensor.RawTensor {
	scope := b.scopePath()
	name := scope + "/" + opType
	if n := b.nodeNames[name]; n > 0 {
		b.nodeNames[name] = n + 1
		name = fmt.Sprintf("%s_%d", name, n)
	} else {
		b.nodeNames[name] = 1
	}

	if _, seen := b.names[out]; seen {
		// The wrapped backend returned a known tensor; give the new value its own handle.
		out = out.Clone()
	}
	if outName == "" {
		outName = name + "_output_0"
	}
	b.names[out] = outName
	b.graph.Values[outName] = valueOf(out)
	b.graph.Nodes = append(b.graph.Nodes, &Node{
		Name:    name,
		OpType:  opType,
		Inputs:  inputs,
		Outputs: []string{outName},
		Attrs:   attrs,
		Scope:   scope,
	})
	return out
}

func valueOf(raw *tensor.RawTensor) Value {
	return Value{Shape: raw.Shape().Clone(), DType: raw.DType()}
}

// pin keeps the wrapped backend from reusing the buffers of ts inplace, so
// every recorded value keeps its data.
func pin(ts ...*tensor.RawTensor) func() {
	releases := make([]func(), 0, len(ts))
	for _, t := range ts {
		if t != nil {
			releases = append(releases, t.ForceNonUnique())
		}
	}
	return func() {
		for _, release := range releases {
			release()
		}
	}
}

// Add performs element-wise addition and records an Add node.
func (b *Backend[B]) Add(x, y *tensor.RawTensor) *tensor.RawTensor {
	defer pin(x, y)()
	result := b.inner.Add(x, y)
	return b.record("Add", []string{b.input(x, "Add"), b.input(y, "Add")}, "", result, nil)
}

// ReLU records a Relu node.
func (b *Backend[B]) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	defer pin(x)()
	result := b.inner.ReLU(x)
	return b.record("Relu", []string{b.input(x, "Relu")}, "", result, nil)
}

// MatMul records a MatMul node.
func (b *Backend[B]) MatMul(x, y *tensor.RawTensor) *tensor.RawTensor {
	defer pin(x, y)()
	result := b.inner.MatMul(x, y)
	return b.record("MatMul", []string{b.input(x, "MatMul"), b.input(y, "MatMul")}, "", result, nil)
}

// Gemm records a Gemm node. A nil c is omitted from the inputs.
func (b *Backend[B]) Gemm(x, y, c *tensor.RawTensor, alpha, beta float32, transA, transB bool) *tensor.RawTensor {
	defer pin(x, y, c)()
	result := b.inner.Gemm(x, y, c, alpha, beta, transA, transB)

	inputs := []string{b.input(x, "Gemm"), b.input(y, "Gemm")}
	if c != nil {
		inputs = append(inputs, b.input(c, "Gemm"))
	}
	attrs := []onnx.AttributeProto{onnx.AttrFloat("alpha", alpha), onnx.AttrFloat("beta", beta)}
	if transA {
		attrs = append(attrs, onnx.AttrInt("transA", 1))
	}
	if transB {
		attrs = append(attrs, onnx.AttrInt("transB", 1))
	}
	return b.record("Gemm", inputs, "", result, attrs)
}

// Conv2D records a Conv node with explicit window attributes.
func (b *Backend[B]) Conv2D(input, kernel, bias *tensor.RawTensor, stride, padding int) *tensor.RawTensor {
	defer pin(input, kernel, bias)()
	result := b.inner.Conv2D(input, kernel, bias, stride, padding)

	inputs := []string{b.input(input, "Conv"), b.input(kernel, "Conv")}
	if bias != nil {
		inputs = append(inputs, b.input(bias, "Conv"))
	}
	ks := kernel.Shape()
	p, s := int64(padding), int64(stride)
	attrs := []onnx.AttributeProto{
		onnx.AttrInts("dilations", 1, 1),
		onnx.AttrInt("group", 1),
		onnx.AttrInts("kernel_shape", int64(ks[2]), int64(ks[3])),
		onnx.AttrInts("pads", p, p, p, p),
		onnx.AttrInts("strides", s, s),
	}
	return b.record("Conv", inputs, "", result, attrs)
}

// MaxPool2D records a MaxPool node.
func (b *Backend[B]) MaxPool2D(input *tensor.RawTensor, kernelSize, stride, padding int) *tensor.RawTensor {
	defer pin(input)()
	result := b.inner.MaxPool2D(input, kernelSize, stride, padding)

	k, s, p := int64(kernelSize), int64(stride), int64(padding)
	attrs := []onnx.AttributeProto{
		onnx.AttrInt("ceil_mode", 0),
		onnx.AttrInts("dilations", 1, 1),
		onnx.AttrInts("kernel_shape", k, k),
		onnx.AttrInts("pads", p, p, p, p),
		onnx.AttrInts("strides", s, s),
	}
	return b.record("MaxPool", []string{b.input(input, "MaxPool")}, "", result, attrs)
}

// GlobalAvgPool2D records a GlobalAveragePool node.
func (b *Backend[B]) GlobalAvgPool2D(x *tensor.RawTensor) *tensor.RawTensor {
	defer pin(x)()
	result := b.inner.GlobalAvgPool2D(x)
	return b.record("GlobalAveragePool", []string{b.input(x, "GlobalAveragePool")}, "", result, nil)
}

// BatchNorm2D records an inference-mode BatchNormalization node.
func (b *Backend[B]) BatchNorm2D(x, scale, shift, mean, variance *tensor.RawTensor, eps float32) *tensor.RawTensor {
	defer pin(x, scale, shift, mean, variance)()
	result := b.inner.BatchNorm2D(x, scale, shift, mean, variance, eps)

	const op = "BatchNormalization"
	inputs := []string{
		b.input(x, op), b.input(scale, op), b.input(shift, op),
		b.input(mean, op), b.input(variance, op),
	}
	attrs := []onnx.AttributeProto{
		onnx.AttrFloat("epsilon", eps),
		onnx.AttrFloat("momentum", batchNormMomentum),
	}
	return b.record(op, inputs, "", result, attrs)
}

// Flatten records a Flatten node.
func (b *Backend[B]) Flatten(x *tensor.RawTensor, axis int) *tensor.RawTensor {
	defer pin(x)()
	result := b.inner.Flatten(x, axis)
	return b.record("Flatten", []string{b.input(x, "Flatten")}, "", result, []onnx.AttributeProto{
		onnx.AttrInt("axis", int64(axis)),
	})
}

// Reshape records a Reshape node. The target shape becomes an int64
// initializer.
func (b *Backend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	defer pin(t)()
	result := b.inner.Reshape(t, newShape)

	shape, err := tensor.NewRaw(tensor.Shape{len(newShape)}, tensor.Int64, tensor.CPU)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	copy(shape.AsInt64(), newShape.Int64s())

	inputs := []string{b.input(t, "Reshape"), b.input(shape, "Reshape")}
	return b.record("Reshape", inputs, "", result, nil)
}

// Transpose records a Transpose node with an explicit perm.
func (b *Backend[B]) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	defer pin(t)()

	ndim := len(t.Shape())
	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	result := b.inner.Transpose(t, axes...)

	perm := make([]int64, len(axes))
	for i, ax := range axes {
		perm[i] = int64(ax)
	}
	return b.record("Transpose", []string{b.input(t, "Transpose")}, "", result, []onnx.AttributeProto{
		onnx.AttrInts("perm", perm...),
	})
}
