package onnx

import (
	"fmt"
	"strings"

	"github.com/born-ml/zooexport/internal/onnx/operators"
	"github.com/born-ml/zooexport/internal/tensor"
)

// LoadOptions configures how a parsed model is prepared for execution.
type LoadOptions struct {
	// StrictMode fails the load on the first op the registry cannot run.
	// Otherwise the error surfaces from Forward.
	StrictMode bool

	// CustomOps adds or overrides op handlers.
	CustomOps map[string]operators.Handler
}

// DefaultLoadOptions returns lenient options with no custom ops.
func DefaultLoadOptions() LoadOptions { return LoadOptions{} }

func pickOptions(opts []LoadOptions) LoadOptions {
	if len(opts) == 0 {
		return DefaultLoadOptions()
	}
	return opts[0]
}

// Load parses an ONNX file and prepares it to run on backend.
func Load(path string, backend tensor.Backend, opts ...LoadOptions) (*Model, error) {
	proto, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return LoadFromProto(proto, backend, pickOptions(opts))
}

// LoadFromBytes is Load for an in-memory file.
func LoadFromBytes(data []byte, backend tensor.Backend, opts ...LoadOptions) (*Model, error) {
	proto, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return LoadFromProto(proto, backend, pickOptions(opts))
}

// LoadFromProto prepares an already parsed model.
func LoadFromProto(proto *ModelProto, backend tensor.Backend, opt LoadOptions) (*Model, error) {
	if proto.Graph == nil {
		return nil, fmt.Errorf("onnx: model has no graph")
	}
	registry := operators.NewRegistry()
	for op, h := range opt.CustomOps {
		registry.Register(op, h)
	}
	if opt.StrictMode {
		if missing := unsupportedOps(proto.Graph, registry); len(missing) > 0 {
			return nil, fmt.Errorf("onnx: unsupported operators %s", strings.Join(missing, ", "))
		}
	}

	m := &Model{proto: proto, registry: registry, backend: backend}
	if err := m.compile(); err != nil {
		return nil, fmt.Errorf("onnx: compile graph: %w", err)
	}
	return m, nil
}

// unsupportedOps lists, once each in graph order, the op types registry
// cannot run.
func unsupportedOps(graph *GraphProto, registry *operators.Registry) []string {
	var missing []string
	seen := make(map[string]bool)
	for i := range graph.Nodes {
		op := graph.Nodes[i].OpType
		if _, ok := registry.Lookup(op); !ok && !seen[op] {
			seen[op] = true
			missing = append(missing, op)
		}
	}
	return missing
}

// ListSupportedOps returns all supported ONNX operators, sorted.
func ListSupportedOps() []string {
	return operators.NewRegistry().Ops()
}
