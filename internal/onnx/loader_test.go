package onnx

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/zooexport/internal/backend/cpu"
	"github.com/born-ml/zooexport/internal/tensor"
)

func randRaw(t *testing.T, rng *rand.Rand, shape ...int) *tensor.RawTensor {
	t.Helper()
	vals := make([]float32, tensor.Shape(shape).NumElements())
	for i := range vals {
		vals[i] = float32(rng.NormFloat64())
	}
	r, err := tensor.NewRawFloat32(shape, vals)
	require.NoError(t, err)
	return r
}

func initializer(t *testing.T, name string, r *tensor.RawTensor) TensorProto {
	t.Helper()
	tp, err := TensorFromRaw(name, r)
	require.NoError(t, err)
	return tp
}

type smallNet struct {
	convW, convB, scale, shift, mean, variance, fcW, fcB *tensor.RawTensor
}

func newSmallNet(t *testing.T, rng *rand.Rand) *smallNet {
	variance := randRaw(t, rng, 3)
	for i, v := range variance.AsFloat32() {
		variance.AsFloat32()[i] = v*v + 0.5
	}
	return &smallNet{
		convW:    randRaw(t, rng, 3, 2, 3, 3),
		convB:    randRaw(t, rng, 3),
		scale:    randRaw(t, rng, 3),
		shift:    randRaw(t, rng, 3),
		mean:     randRaw(t, rng, 3),
		variance: variance,
		fcW:      randRaw(t, rng, 5, 3),
		fcB:      randRaw(t, rng, 5),
	}
}

// proto builds Conv, BN, Relu, MaxPool, a residual Add, GlobalAveragePool,
// Flatten and Gemm.
func (n *smallNet) proto(t *testing.T) *ModelProto {
	return &ModelProto{
		IRVersion:   IRVersion,
		OpsetImport: []OperatorSetID{{Version: DefaultOpset}},
		Graph: &GraphProto{
			Name: "small",
			Nodes: []NodeProto{
				{Name: "/conv/Conv", OpType: "Conv", Inputs: []string{"input.0", "conv.weight", "conv.bias"}, Outputs: []string{"c"},
					Attributes: []AttributeProto{AttrInts("kernel_shape", 3, 3), AttrInts("pads", 1, 1, 1, 1), AttrInts("strides", 1, 1)}},
				{Name: "/bn/BatchNormalization", OpType: "BatchNormalization", Inputs: []string{"c", "bn.weight", "bn.bias", "bn.running_mean", "bn.running_var"}, Outputs: []string{"b"},
					Attributes: []AttributeProto{AttrFloat("epsilon", 1e-5)}},
				{Name: "/relu/Relu", OpType: "Relu", Inputs: []string{"b"}, Outputs: []string{"r"}},
				{Name: "/pool/MaxPool", OpType: "MaxPool", Inputs: []string{"r"}, Outputs: []string{"p"},
					Attributes: []AttributeProto{AttrInts("kernel_shape", 2, 2), AttrInts("strides", 2, 2)}},
				{Name: "/Add", OpType: "Add", Inputs: []string{"p", "p"}, Outputs: []string{"s"}},
				{Name: "/avgpool/GlobalAveragePool", OpType: "GlobalAveragePool", Inputs: []string{"s"}, Outputs: []string{"g"}},
				{Name: "/Flatten", OpType: "Flatten", Inputs: []string{"g"}, Outputs: []string{"f"},
					Attributes: []AttributeProto{AttrInt("axis", 1)}},
				{Name: "/fc/Gemm", OpType: "Gemm", Inputs: []string{"f", "fc.weight", "fc.bias"}, Outputs: []string{"output.0"},
					Attributes: []AttributeProto{AttrFloat("alpha", 1), AttrFloat("beta", 1), AttrInt("transB", 1)}},
			},
			Initializers: []TensorProto{
				initializer(t, "conv.weight", n.convW),
				initializer(t, "conv.bias", n.convB),
				initializer(t, "bn.weight", n.scale),
				initializer(t, "bn.bias", n.shift),
				initializer(t, "bn.running_mean", n.mean),
				initializer(t, "bn.running_var", n.variance),
				initializer(t, "fc.weight", n.fcW),
				initializer(t, "fc.bias", n.fcB),
			},
			Inputs:  []ValueInfoProto{TensorValueInfo("input.0", TensorProtoFloat, []int64{1, 2, 6, 6})},
			Outputs: []ValueInfoProto{TensorValueInfo("output.0", TensorProtoFloat, []int64{1, 5})},
		},
	}
}

func (n *smallNet) eager(b tensor.Backend, x *tensor.RawTensor) *tensor.RawTensor {
	h := b.Conv2D(x, n.convW, n.convB, 1, 1)
	h = b.BatchNorm2D(h, n.scale, n.shift, n.mean, n.variance, 1e-5)
	h = b.ReLU(h)
	h = b.MaxPool2D(h, 2, 2, 0)
	h = b.Add(h.DeepCopy(), h)
	h = b.GlobalAvgPool2D(h)
	h = b.Flatten(h, 1)
	return b.Gemm(h, n.fcW, n.fcB, 1, 1, false, true)
}

func TestModelForwardMatchesBackend(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	net := newSmallNet(t, rng)
	backend := cpu.New()

	data, err := Marshal(net.proto(t))
	require.NoError(t, err)
	model, err := LoadFromBytes(data, backend, LoadOptions{StrictMode: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"input.0"}, model.InputNames())
	assert.Equal(t, []string{"output.0"}, model.OutputNames())
	assert.EqualValues(t, DefaultOpset, model.OpsetVersion())

	x := randRaw(t, rng, 1, 2, 6, 6)
	before := append([]float32(nil), x.AsFloat32()...)

	got, err := model.Forward(x)
	require.NoError(t, err)
	want := net.eager(backend, x)

	assert.Equal(t, tensor.Shape{1, 5}, got.Shape())
	assert.Less(t, tensor.MaxAbsDiff(got, want), 1e-5)
	assert.Equal(t, before, x.AsFloat32(), "input was modified")

	// A second run sees unchanged initializers.
	again, err := model.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, got.AsFloat32(), again.AsFloat32())
}

func TestModelForwardShapeMismatch(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	model, err := LoadFromProto(newSmallNet(t, rng).proto(t), cpu.New(), DefaultLoadOptions())
	require.NoError(t, err)

	_, err = model.Forward(randRaw(t, rng, 1, 2, 7, 7))
	assert.ErrorContains(t, err, "input input.0: shape (1, 2, 7, 7), expected (1, 2, 6, 6)")

	_, err = model.ForwardNamed(map[string]*tensor.RawTensor{})
	assert.ErrorContains(t, err, "missing input: input.0")
}

func TestValidateOperators(t *testing.T) {
	m := &ModelProto{Graph: &GraphProto{Nodes: []NodeProto{{OpType: "Relu"}, {OpType: "Softmax"}}}}

	_, err := LoadFromProto(m, cpu.New(), LoadOptions{StrictMode: true})
	assert.ErrorContains(t, err, "unsupported operators Softmax")

	_, err = LoadFromProto(m, cpu.New(), DefaultLoadOptions())
	assert.NoError(t, err)
}

func TestExecutionOrder(t *testing.T) {
	nodes := []NodeProto{
		{Name: "c", Inputs: []string{"b_out"}, Outputs: []string{"c_out"}},
		{Name: "a", Inputs: []string{"x"}, Outputs: []string{"a_out"}},
		{Name: "b", Inputs: []string{"a_out"}, Outputs: []string{"b_out"}},
		{Name: "d", Inputs: []string{"x"}, Outputs: []string{"d_out"}},
	}
	sorted, err := executionOrder(nodes)
	require.NoError(t, err)
	var order []string
	for _, n := range sorted {
		order = append(order, n.Name)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)

	nodes[1].Inputs = []string{"c_out"}
	_, err = executionOrder(nodes)
	assert.ErrorContains(t, err, "cycle")
}

func TestDecodeTensor(t *testing.T) {
	tp := &TensorProto{DataType: TensorProtoFloat, Dims: []int64{2, 2}, FloatData: []float32{1, 2, 3, 4}}
	r, err := decodeTensor(tp)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, r.AsFloat32())

	tp = &TensorProto{DataType: TensorProtoInt64, Dims: []int64{2}, RawData: []byte{1, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0}}
	r, err = decodeTensor(tp)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, r.AsInt64())

	_, err = decodeTensor(&TensorProto{DataType: TensorProtoFloat, Dims: []int64{3}, FloatData: []float32{1}})
	assert.Error(t, err)

	_, err = decodeTensor(&TensorProto{DataType: TensorProtoFloat16, Dims: []int64{1}, RawData: []byte{0, 0}})
	assert.ErrorContains(t, err, "float16")
}

func TestInfoFromProto(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	m := newSmallNet(t, rng).proto(t)
	m.ProducerName = "zooexport"
	m.MetadataProps = []StringStringEntry{{Key: "architecture", Value: "small"}}

	info := InfoFromProto(m)
	assert.EqualValues(t, IRVersion, info.IRVersion)
	assert.EqualValues(t, DefaultOpset, info.OpsetVersion)
	assert.Equal(t, "zooexport", info.ProducerName)
	assert.Equal(t, []string{"input.0"}, info.InputNames())
	assert.Equal(t, []string{"output.0"}, info.OutputNames())
	assert.Equal(t, ValueSummary{Name: "input.0", ElemType: "float", Dims: []int64{1, 2, 6, 6}}, info.Inputs[0])
	assert.Equal(t, "input.0 float[1,2,6,6]", info.Inputs[0].String())
	assert.Equal(t, "x float[?,3]", ValueSummary{Name: "x", ElemType: "float", Dims: []int64{-1, 3}}.String())
	assert.Equal(t, 8, info.NodeCount)
	assert.Equal(t, 8, info.WeightCount)
	assert.EqualValues(t, 54+3+3*4+15+5, info.ParamCount)
	assert.Equal(t, 1, info.OpCounts["Conv"])
	assert.Equal(t, 1, info.OpCounts["Gemm"])
	assert.Len(t, info.OpCounts, 8)
}

func TestListSupportedOps(t *testing.T) {
	ops := ListSupportedOps()
	assert.Contains(t, ops, "Conv")
	assert.IsIncreasing(t, ops)
}
