package exporter

import (
	"fmt"

	"github.com/born-ml/zooexport/internal/onnx"
	"github.com/born-ml/zooexport/internal/trace"
)

// buildModel converts a traced graph into a ModelProto.
func buildModel(g *trace.Graph, cfg *config) (*onnx.ModelProto, error) {
	graph := &onnx.GraphProto{
		Name:         cfg.graphName,
		Nodes:        make([]onnx.NodeProto, 0, len(g.Nodes)),
		Initializers: make([]onnx.TensorProto, 0, len(g.Initializers)),
	}

	for _, n := range g.Nodes {
		graph.Nodes = append(graph.Nodes, onnx.NodeProto{
			Name:       n.Name,
			OpType:     n.OpType,
			Inputs:     append([]string(nil), n.Inputs...),
			Outputs:    append([]string(nil), n.Outputs...),
			Attributes: n.Attrs,
		})
	}

	for _, init := range g.Initializers {
		t, err := onnx.TensorFromRaw(init.Name, init.Tensor)
		if err != nil {
			return nil, fmt.Errorf("%w: initializer %w", ErrNotTraceable, err)
		}
		graph.Initializers = append(graph.Initializers, t)
	}

	var err error
	if graph.Inputs, err = valueInfos(g, g.Inputs); err != nil {
		return nil, err
	}
	if graph.Outputs, err = valueInfos(g, g.Outputs); err != nil {
		return nil, err
	}

	return &onnx.ModelProto{
		IRVersion:       onnx.IRVersionFor(cfg.opset),
		OpsetImport:     []onnx.OperatorSetID{{Version: cfg.opset}},
		ProducerName:    Producer,
		ProducerVersion: Version,
		DocString:       cfg.docString,
		Graph:           graph,
		MetadataProps:   cfg.metadata,
	}, nil
}

func valueInfos(g *trace.Graph, names []string) ([]onnx.ValueInfoProto, error) {
	infos := make([]onnx.ValueInfoProto, 0, len(names))
	for _, name := range names {
		v, ok := g.Values[name]
		if !ok {
			return nil, fmt.Errorf("%w: value %q has no recorded type", ErrNotTraceable, name)
		}
		elemType, err := onnx.DataTypeOf(v.DType)
		if err != nil {
			return nil, fmt.Errorf("%w: value %q: %w", ErrNotTraceable, name, err)
		}
		infos = append(infos, onnx.TensorValueInfo(name, elemType, v.Shape.Int64s()))
	}
	return infos, nil
}
