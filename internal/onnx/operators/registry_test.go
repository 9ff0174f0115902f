package operators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/zooexport/internal/backend/cpu"
	"github.com/born-ml/zooexport/internal/tensor"
)

func raw(t *testing.T, shape tensor.Shape, values ...float32) *tensor.RawTensor {
	t.Helper()
	if values == nil {
		values = make([]float32, shape.NumElements())
		for i := range values {
			values[i] = float32(i + 1)
		}
	}
	r, err := tensor.NewRawFloat32(shape, values)
	require.NoError(t, err)
	return r
}

func int64Raw(t *testing.T, values ...int64) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(tensor.Shape{len(values)}, tensor.Int64, tensor.CPU)
	require.NoError(t, err)
	copy(r.AsInt64(), values)
	return r
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	essentialOps := []string{
		"Conv", "BatchNormalization", "MaxPool", "GlobalAveragePool",
		"Gemm", "MatMul", "Add", "Sum", "Relu",
		"Flatten", "Reshape", "Transpose",
		"Identity", "Dropout",
	}
	for _, op := range essentialOps {
		_, ok := r.Lookup(op)
		assert.True(t, ok, "expected operator %s to be registered", op)
	}
	assert.Len(t, r.Ops(), len(essentialOps))
	assert.IsIncreasing(t, r.Ops())
}

func TestRegistryUnknownOp(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("UnknownOp")
	assert.False(t, ok)

	_, err := r.Run(&Env{Backend: cpu.New()}, &Node{OpType: "UnknownOp"}, nil)
	assert.ErrorContains(t, err, "unsupported operator UnknownOp")
}

func TestRegisterCustomOp(t *testing.T) {
	r := NewRegistry()
	r.Register("MyCustomOp", func(_ *Env, _ *Node, _ []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		return nil, nil
	})
	_, ok := r.Lookup("MyCustomOp")
	assert.True(t, ok)
}

func TestRunRecoversBackendPanic(t *testing.T) {
	r := NewRegistry()
	env := &Env{Backend: cpu.New()}
	_, err := r.Run(env, &Node{OpType: "Add"}, []*tensor.RawTensor{
		raw(t, tensor.Shape{2, 3}),
		raw(t, tensor.Shape{4}),
	})
	require.Error(t, err)
}

func TestGemmAttributes(t *testing.T) {
	r := NewRegistry()
	env := &Env{Backend: cpu.New()}
	node := &Node{OpType: "Gemm", Attributes: []Attribute{
		{Name: "alpha", F: 1},
		{Name: "beta", F: 1},
		{Name: "transB", I: 1},
	}}

	a := raw(t, tensor.Shape{1, 2}, 1, 2)
	w := raw(t, tensor.Shape{3, 2}, 1, 0, 0, 1, 1, 1)
	c := raw(t, tensor.Shape{3}, 10, 20, 30)

	out, err := r.Run(env, node, []*tensor.RawTensor{a, w, c})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, tensor.Shape{1, 3}, out[0].Shape())
	assert.Equal(t, []float32{11, 22, 33}, out[0].AsFloat32())
}

func TestConvAttributes(t *testing.T) {
	r := NewRegistry()
	env := &Env{Backend: cpu.New()}
	x := raw(t, tensor.Shape{1, 1, 4, 4})
	w := raw(t, tensor.Shape{2, 1, 3, 3})

	node := &Node{OpType: "Conv", Attributes: []Attribute{
		{Name: "kernel_shape", Ints: []int64{3, 3}},
		{Name: "strides", Ints: []int64{2, 2}},
		{Name: "pads", Ints: []int64{1, 1, 1, 1}},
		{Name: "dilations", Ints: []int64{1, 1}},
		{Name: "group", I: 1},
	}}
	out, err := r.Run(env, node, []*tensor.RawTensor{x, w})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2, 2, 2}, out[0].Shape())

	t.Run("Dilation", func(t *testing.T) {
		bad := &Node{OpType: "Conv", Attributes: []Attribute{{Name: "dilations", Ints: []int64{2, 2}}}}
		_, err := r.Run(env, bad, []*tensor.RawTensor{x, w})
		assert.ErrorContains(t, err, "dilation")
	})
	t.Run("AsymmetricPads", func(t *testing.T) {
		bad := &Node{OpType: "Conv", Attributes: []Attribute{{Name: "pads", Ints: []int64{0, 0, 1, 1}}}}
		_, err := r.Run(env, bad, []*tensor.RawTensor{x, w})
		assert.ErrorContains(t, err, "non-uniform pads")
	})
	t.Run("Group", func(t *testing.T) {
		bad := &Node{OpType: "Conv", Attributes: []Attribute{{Name: "group", I: 2}}}
		_, err := r.Run(env, bad, []*tensor.RawTensor{x, w})
		assert.ErrorContains(t, err, "group")
	})
	t.Run("AutoPad", func(t *testing.T) {
		bad := &Node{OpType: "Conv", Attributes: []Attribute{{Name: "auto_pad", S: []byte("SAME_UPPER")}}}
		_, err := r.Run(env, bad, []*tensor.RawTensor{x, w})
		assert.ErrorContains(t, err, "auto_pad")
	})
}

func TestMaxPoolRequiresKernel(t *testing.T) {
	r := NewRegistry()
	env := &Env{Backend: cpu.New()}
	_, err := r.Run(env, &Node{OpType: "MaxPool"}, []*tensor.RawTensor{raw(t, tensor.Shape{1, 1, 4, 4})})
	assert.ErrorContains(t, err, "kernel_shape is required")
}

func TestReshape(t *testing.T) {
	r := NewRegistry()
	env := &Env{Backend: cpu.New()}
	x := raw(t, tensor.Shape{2, 3, 4})

	out, err := r.Run(env, &Node{OpType: "Reshape"}, []*tensor.RawTensor{x, int64Raw(t, 0, -1)})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 12}, out[0].Shape())

	_, err = r.Run(env, &Node{OpType: "Reshape"}, []*tensor.RawTensor{x, int64Raw(t, -1, -1)})
	assert.ErrorContains(t, err, "more than one -1")

	_, err = r.Run(env, &Node{OpType: "Reshape"}, []*tensor.RawTensor{x, int64Raw(t, 5, -1)})
	assert.ErrorContains(t, err, "cannot infer")
}

func TestResolveReshapeAllowZero(t *testing.T) {
	got, err := resolveReshape(tensor.Shape{0, 3}, []int64{3, 0}, true)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 0}, got)
}

func TestFlattenAndDropout(t *testing.T) {
	r := NewRegistry()
	env := &Env{Backend: cpu.New()}
	x := raw(t, tensor.Shape{2, 3, 1, 1})

	out, err := r.Run(env, &Node{OpType: "Flatten", Attributes: []Attribute{{Name: "axis", I: 1}}}, []*tensor.RawTensor{x})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3}, out[0].Shape())

	out, err = r.Run(env, &Node{OpType: "Dropout"}, []*tensor.RawTensor{x})
	require.NoError(t, err)
	assert.Same(t, x, out[0])
}
