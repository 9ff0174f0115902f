package exporter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/zooexport/internal/backend/cpu"
	"github.com/born-ml/zooexport/internal/exporter"
	"github.com/born-ml/zooexport/internal/tensor"
	"github.com/born-ml/zooexport/internal/trace"
)

func raw(t *testing.T, shape tensor.Shape, vals ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRawFloat32(shape, vals)
	require.NoError(t, err)
	return r
}

// traceConvBN records conv -> bn -> out, with the conv output optionally
// also feeding an Add.
func traceConvBN(t *testing.T, shareConvOutput bool) *trace.Graph {
	t.Helper()
	tracer := trace.New[B](cpu.New())
	x := raw(t, tensor.Shape{1, 1, 2, 2}, 1, 2, 3, 4)
	w := raw(t, tensor.Shape{2, 1, 1, 1}, 2, -1)
	scale := raw(t, tensor.Shape{2}, 1, 0.5)
	shift := raw(t, tensor.Shape{2}, 0, 1)
	mean := raw(t, tensor.Shape{2}, 1, -1)
	variance := raw(t, tensor.Shape{2}, 4, 1)
	for name, r := range map[string]*tensor.RawTensor{
		"w": w, "bn.weight": scale, "bn.bias": shift, "bn.running_mean": mean, "bn.running_var": variance,
	} {
		tracer.Bind(r, name)
	}

	tracer.BindInput(x, "x")
	h := tracer.Conv2D(x, w, nil, 1, 0)
	y := tracer.BatchNorm2D(h, scale, shift, mean, variance, 0)
	if shareConvOutput {
		y = tracer.Add(y, h)
	}
	require.NoError(t, tracer.MarkOutput(y, "y"))
	return tracer.Graph()
}

func TestFoldBatchNorm(t *testing.T) {
	g := traceConvBN(t, false)
	folded, err := exporter.FoldBatchNorm(g)
	require.NoError(t, err)
	assert.Equal(t, 1, folded)
	require.Len(t, g.Nodes, 1)

	conv := g.Nodes[0]
	assert.Equal(t, "Conv", conv.OpType)
	assert.Equal(t, []string{"x", "onnx::Conv_0", "onnx::Conv_1"}, conv.Inputs)
	assert.Equal(t, []string{"y"}, conv.Outputs)

	// a = scale/sqrt(var): 0.5 and 0.5.
	w, ok := g.Initializer("onnx::Conv_0")
	require.True(t, ok)
	assert.InDeltaSlice(t, []float32{1, -0.5}, w.AsFloat32(), 1e-6)
	b, ok := g.Initializer("onnx::Conv_1")
	require.True(t, ok)
	assert.InDeltaSlice(t, []float32{-0.5, 1.5}, b.AsFloat32(), 1e-6)

	assert.Equal(t, 5, exporter.PruneInitializers(g))
	assert.Len(t, g.Initializers, 2)
	_, ok = g.Values["w"]
	assert.False(t, ok)
}

func TestFoldBatchNormSkipsSharedConvOutput(t *testing.T) {
	g := traceConvBN(t, true)
	folded, err := exporter.FoldBatchNorm(g)
	require.NoError(t, err)
	assert.Zero(t, folded)
	assert.Equal(t, map[string]int{"Conv": 1, "BatchNormalization": 1, "Add": 1}, g.OpCounts())
	assert.Zero(t, exporter.PruneInitializers(g))
}
