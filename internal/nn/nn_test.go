package nn_test

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/zooexport/internal/backend/cpu"
	"github.com/born-ml/zooexport/internal/nn"
	"github.com/born-ml/zooexport/internal/tensor"
)

func TestConv2DForward(t *testing.T) {
	backend := cpu.New()
	conv := nn.NewConv2D(1, 2, 3, 1, 1, true, tensor.NewRand(1), backend)

	require.NoError(t, conv.LoadStateDict(map[string]*tensor.RawTensor{
		"weight": mustRaw(t, tensor.Shape{2, 1, 3, 3}, ones(9), fill(9, 0)),
		"bias":   mustRaw(t, tensor.Shape{2}, []float32{0, 7}),
	}))

	x := tensor.Full[float32](tensor.Shape{1, 1, 4, 4}, 1, backend)
	y := conv.Forward(x)

	assert.Equal(t, tensor.Shape{1, 2, 4, 4}, y.Shape())
	assert.InDelta(t, 4, y.At(0, 0, 0, 0), 1e-6, "corner sees 4 ones")
	assert.InDelta(t, 9, y.At(0, 0, 1, 1), 1e-6, "interior sees 9 ones")
	assert.InDelta(t, 7, y.At(0, 1, 2, 2), 1e-6, "zero kernel leaves the bias")
}

func TestConv2DKaimingInit(t *testing.T) {
	conv := nn.NewConv2D(64, 64, 3, 1, 1, false, tensor.NewRand(2), cpu.New())
	assert.Nil(t, conv.Bias())
	assert.Len(t, conv.Parameters(), 1)

	data := conv.Weight().Tensor().Data()
	var sumSq float64
	for _, v := range data {
		sumSq += float64(v) * float64(v)
	}
	std := math.Sqrt(sumSq / float64(len(data)))
	want := math.Sqrt(2.0 / (64 * 9))
	assert.InDelta(t, want, std, want*0.05)
}

func TestBatchNorm2DForward(t *testing.T) {
	backend := cpu.New()
	bn := nn.NewBatchNorm2D(2, backend)

	x := tensor.Full[float32](tensor.Shape{1, 2, 1, 1}, 3, backend)
	y := bn.Forward(x)
	assert.InDelta(t, 3/math.Sqrt(1+1e-5), y.At(0, 0, 0, 0), 1e-5, "fresh layer is identity up to eps")

	require.NoError(t, bn.LoadStateDict(map[string]*tensor.RawTensor{
		"weight":       mustRaw(t, tensor.Shape{2}, []float32{2, 1}),
		"bias":         mustRaw(t, tensor.Shape{2}, []float32{1, 0}),
		"running_mean": mustRaw(t, tensor.Shape{2}, []float32{1, 3}),
		"running_var":  mustRaw(t, tensor.Shape{2}, []float32{4, 1}),
	}))
	y = bn.Forward(x)
	assert.InDelta(t, 3.0, y.At(0, 0, 0, 0), 1e-4)
	assert.InDelta(t, 0.0, y.At(0, 1, 0, 0), 1e-4)

	assert.Len(t, bn.Parameters(), 2, "running stats are buffers, not parameters")
	assert.Len(t, bn.StateDict(), 4)
}

func TestLinearForward(t *testing.T) {
	backend := cpu.New()
	fc := nn.NewLinear(3, 2, tensor.NewRand(3), backend)
	require.NoError(t, fc.LoadStateDict(map[string]*tensor.RawTensor{
		"weight": mustRaw(t, tensor.Shape{2, 3}, []float32{1, 2, 3, 0, 0, 1}),
		"bias":   mustRaw(t, tensor.Shape{2}, []float32{0.5, -1}),
	}))

	x, err := tensor.FromSlice([]float32{1, 1, 2}, tensor.Shape{1, 3}, backend)
	require.NoError(t, err)
	y := fc.Forward(x)

	assert.Equal(t, tensor.Shape{1, 2}, y.Shape())
	assert.InDeltaSlice(t, []float32{9.5, 1}, y.Data(), 1e-6)
}

func TestLinearInitBounds(t *testing.T) {
	fc := nn.NewLinear(100, 10, tensor.NewRand(4), cpu.New())
	for _, v := range fc.Weight().Tensor().Data() {
		require.LessOrEqual(t, math.Abs(float64(v)), 0.1)
	}
}

func TestSequentialStateDict(t *testing.T) {
	backend := cpu.New()
	rng := tensor.NewRand(5)
	model := nn.NewSequential[*cpu.CPUBackend](
		nn.NewConv2D(3, 4, 3, 1, 1, false, rng, backend),
		nn.NewBatchNorm2D(4, backend),
		nn.NewReLU[*cpu.CPUBackend](),
		nn.NewAdaptiveAvgPool2D[*cpu.CPUBackend](),
		nn.NewFlatten[*cpu.CPUBackend](1),
		nn.NewLinear(4, 2, rng, backend),
	)

	sd := model.StateDict()
	assert.Equal(t, []string{
		"0.weight",
		"1.bias", "1.running_mean", "1.running_var", "1.weight",
		"5.bias", "5.weight",
	}, nn.SortedKeys(sd))

	// Round trip into a fresh model with a different seed.
	other := nn.NewSequential[*cpu.CPUBackend](
		nn.NewConv2D(3, 4, 3, 1, 1, false, tensor.NewRand(99), backend),
		nn.NewBatchNorm2D(4, backend),
		nn.NewReLU[*cpu.CPUBackend](),
		nn.NewAdaptiveAvgPool2D[*cpu.CPUBackend](),
		nn.NewFlatten[*cpu.CPUBackend](1),
		nn.NewLinear(4, 2, tensor.NewRand(98), backend),
	)
	require.NoError(t, other.LoadStateDict(sd))

	x := tensor.Randn(tensor.Shape{1, 3, 8, 8}, 1, tensor.NewRand(6), backend)
	a := model.Forward(x)
	b := other.Forward(x)
	assert.Equal(t, tensor.Shape{1, 2}, a.Shape())
	assert.InDeltaSlice(t, a.Data(), b.Data(), 1e-6)
}

func TestSequentialLoadErrors(t *testing.T) {
	backend := cpu.New()
	model := nn.NewSequential[*cpu.CPUBackend](nn.NewLinear(2, 2, tensor.NewRand(1), backend))

	err := model.LoadStateDict(map[string]*tensor.RawTensor{
		"0.weight": mustRaw(t, tensor.Shape{2, 2}, fill(4, 1)),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing bias")
	assert.True(t, strings.HasPrefix(err.Error(), "0: "), "error names the child: %v", err)

	err = model.LoadStateDict(map[string]*tensor.RawTensor{
		"0.weight": mustRaw(t, tensor.Shape{4}, fill(4, 1)),
		"0.bias":   mustRaw(t, tensor.Shape{2}, fill(2, 1)),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape mismatch")
}

func TestTrainEvalPropagates(t *testing.T) {
	backend := cpu.New()
	bn := nn.NewBatchNorm2D(2, backend)
	model := nn.NewSequential[*cpu.CPUBackend](bn, nn.NewReLU[*cpu.CPUBackend]())

	assert.True(t, model.Training(), "modules start in training mode")
	nn.Eval[*cpu.CPUBackend](model)
	assert.False(t, model.Training())
	assert.False(t, bn.Training())

	model.Train(true)
	assert.True(t, bn.Training())
}

// scopeRecorder is a CPU backend that remembers the scope path of every ReLU.
type scopeRecorder struct {
	*cpu.CPUBackend
	stack []string
	seen  []string
}

func (s *scopeRecorder) PushScope(name string) { s.stack = append(s.stack, name) }
func (s *scopeRecorder) PopScope()             { s.stack = s.stack[:len(s.stack)-1] }

func (s *scopeRecorder) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	s.seen = append(s.seen, "/"+strings.Join(s.stack, "/"))
	return s.CPUBackend.ReLU(x)
}

func TestSequentialScopes(t *testing.T) {
	rec := &scopeRecorder{CPUBackend: cpu.New()}
	var b tensor.Backend = rec

	inner := nn.NewSequential[tensor.Backend](nn.NewReLU[tensor.Backend]()).Named("downsample")
	model := nn.NewSequential[tensor.Backend](nn.NewReLU[tensor.Backend](), inner).Named("layer1")

	x := tensor.Zeros[float32](tensor.Shape{1, 2}, b)
	nn.Call[tensor.Backend]("layer1", model, x)

	assert.Equal(t, []string{
		"/layer1/layer1.0",
		"/layer1/layer1.1/downsample.0",
	}, rec.seen)
	assert.Empty(t, rec.stack, "scopes are balanced")
}

func mustRaw(t *testing.T, shape tensor.Shape, parts ...[]float32) *tensor.RawTensor {
	t.Helper()
	var values []float32
	for _, p := range parts {
		values = append(values, p...)
	}
	r, err := tensor.NewRawFloat32(shape, values)
	require.NoError(t, err)
	return r
}

func ones(n int) []float32 { return fill(n, 1) }

func fill(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}
