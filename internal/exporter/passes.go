package exporter

import (
	"fmt"
	"math"

	"github.com/born-ml/zooexport/internal/tensor"
	"github.com/born-ml/zooexport/internal/trace"
)

// FoldBatchNorm merges every BatchNormalization that directly follows a Conv
// into that Conv:
//
//	a  = scale / sqrt(var + eps)
//	W' = W * a            (per output channel)
//	b' = (b - mean) * a + shift
//
// A pair is folded only when the Conv output has no other reader and all
// weights are float32 initializers. The folded tensors are new initializers
// named onnx::Conv_<n>; the originals are left for PruneInitializers.
// It returns the number of folded pairs.
func FoldBatchNorm(g *trace.Graph) (int, error) {
	folded := 0
	kept := g.Nodes[:0:0]
	drop := make(map[*trace.Node]bool)

	for _, bn := range g.Nodes {
		if bn.OpType != "BatchNormalization" || len(bn.Inputs) != 5 {
			continue
		}
		conv := g.Producer(bn.Inputs[0])
		if conv == nil || conv.OpType != "Conv" || drop[conv] {
			continue
		}
		if len(g.Consumers(bn.Inputs[0])) != 1 || g.IsOutput(bn.Inputs[0]) {
			continue
		}

		weight, bias, err := foldConvBN(g, conv, bn)
		if err != nil {
			return folded, fmt.Errorf("fold %s into %s: %w", bn.Name, conv.Name, err)
		}
		if weight == nil {
			continue
		}

		weightName := uniqueName(g, "onnx::Conv")
		g.SetInitializer(weightName, weight)
		biasName := uniqueName(g, "onnx::Conv")
		g.SetInitializer(biasName, bias)

		delete(g.Values, conv.Outputs[0])
		conv.Inputs = []string{conv.Inputs[0], weightName, biasName}
		conv.Outputs = bn.Outputs
		drop[bn] = true
		folded++
	}

	for _, n := range g.Nodes {
		if !drop[n] {
			kept = append(kept, n)
		}
	}
	g.Nodes = kept
	return folded, nil
}

// foldConvBN computes the folded weight and bias. It returns nil tensors when
// an input is not a float32 initializer.
func foldConvBN(g *trace.Graph, conv, bn *trace.Node) (weight, bias *tensor.RawTensor, err error) {
	w, ok := float32Initializer(g, conv.Inputs[1])
	if !ok {
		return nil, nil, nil
	}
	var params [4][]float32
	for i, name := range bn.Inputs[1:] {
		t, ok := float32Initializer(g, name)
		if !ok {
			return nil, nil, nil
		}
		params[i] = t.AsFloat32()
	}
	scale, shift, mean, variance := params[0], params[1], params[2], params[3]

	outC := w.Shape()[0]
	var convBias []float32
	if len(conv.Inputs) == 3 && conv.Inputs[2] != "" {
		b, ok := float32Initializer(g, conv.Inputs[2])
		if !ok {
			return nil, nil, nil
		}
		convBias = b.AsFloat32()
	}
	for _, p := range [][]float32{scale, shift, mean, variance} {
		if len(p) != outC {
			return nil, nil, fmt.Errorf("batch norm has %d channels, conv has %d", len(p), outC)
		}
	}
	if convBias != nil && len(convBias) != outC {
		return nil, nil, fmt.Errorf("conv bias has %d channels, conv has %d", len(convBias), outC)
	}

	eps := 1e-5
	for _, a := range bn.Attrs {
		if a.Name == "epsilon" {
			eps = float64(a.F)
		}
	}

	weight, err = tensor.NewRaw(w.Shape(), tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, nil, err
	}
	bias, err = tensor.NewRaw(tensor.Shape{outC}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, nil, err
	}

	src, dst, db := w.AsFloat32(), weight.AsFloat32(), bias.AsFloat32()
	perChannel := len(src) / outC
	for c := 0; c < outC; c++ {
		a := float64(scale[c]) / math.Sqrt(float64(variance[c])+eps)
		for i := c * perChannel; i < (c+1)*perChannel; i++ {
			dst[i] = float32(float64(src[i]) * a)
		}
		b := 0.0
		if convBias != nil {
			b = float64(convBias[c])
		}
		db[c] = float32((b-float64(mean[c]))*a + float64(shift[c]))
	}
	return weight, bias, nil
}

func float32Initializer(g *trace.Graph, name string) (*tensor.RawTensor, bool) {
	t, ok := g.Initializer(name)
	if !ok || t.DType() != tensor.Float32 {
		return nil, false
	}
	return t, true
}

// uniqueName returns prefix_<n> for the smallest n not used by any value.
func uniqueName(g *trace.Graph, prefix string) string {
	for n := 0; ; n++ {
		name := fmt.Sprintf("%s_%d", prefix, n)
		if _, taken := g.Values[name]; !taken {
			return name
		}
	}
}

// PruneInitializers drops initializers no node reads and returns how many
// were removed.
func PruneInitializers(g *trace.Graph) int {
	used := make(map[string]bool)
	for _, n := range g.Nodes {
		for _, in := range n.Inputs {
			used[in] = true
		}
	}

	kept := g.Initializers[:0:0]
	for _, init := range g.Initializers {
		if used[init.Name] || g.IsOutput(init.Name) {
			kept = append(kept, init)
			continue
		}
		delete(g.Values, init.Name)
	}
	pruned := len(g.Initializers) - len(kept)
	g.Initializers = kept
	return pruned
}
