package trace

import (
	"github.com/born-ml/zooexport/internal/onnx"
	"github.com/born-ml/zooexport/internal/tensor"
)

// Node is one recorded backend call.
type Node struct {
	Name    string // "/layer1/layer1.0/conv1/Conv"
	OpType  string
	Inputs  []string
	Outputs []string
	Attrs   []onnx.AttributeProto
	Scope   string // "/layer1/layer1.0/conv1", empty at the top level
}

// Value is the static type of a graph value.
type Value struct {
	Shape tensor.Shape
	DType tensor.DataType
}

// Initializer is a named constant of the graph: a bound parameter or an
// unbound tensor an op consumed.
type Initializer struct {
	Name   string
	Tensor *tensor.RawTensor
}

// Graph is a recorded forward pass. Nodes are in execution order and
// initializers in order of first use.
type Graph struct {
	Nodes        []*Node
	Initializers []Initializer
	Inputs       []string
	Outputs      []string
	Values       map[string]Value
}

func newGraph() *Graph {
	return &Graph{Values: make(map[string]Value)}
}

// Initializer returns the constant registered under name.
func (g *Graph) Initializer(name string) (*tensor.RawTensor, bool) {
	for _, init := range g.Initializers {
		if init.Name == name {
			return init.Tensor, true
		}
	}
	return nil, false
}

// SetInitializer replaces the constant under name, or appends it when new.
func (g *Graph) SetInitializer(name string, t *tensor.RawTensor) {
	g.Values[name] = Value{Shape: t.Shape().Clone(), DType: t.DType()}
	for i := range g.Initializers {
		if g.Initializers[i].Name == name {
			g.Initializers[i].Tensor = t
			return
		}
	}
	g.Initializers = append(g.Initializers, Initializer{Name: name, Tensor: t})
}

// Producer returns the node that outputs value, or nil for graph inputs and
// initializers.
func (g *Graph) Producer(value string) *Node {
	for _, n := range g.Nodes {
		for _, out := range n.Outputs {
			if out == value {
				return n
			}
		}
	}
	return nil
}

// Consumers returns the nodes that read value, in execution order.
func (g *Graph) Consumers(value string) []*Node {
	var nodes []*Node
	for _, n := range g.Nodes {
		for _, in := range n.Inputs {
			if in == value {
				nodes = append(nodes, n)
				break
			}
		}
	}
	return nodes
}

// IsOutput reports whether value is a graph output.
func (g *Graph) IsOutput(value string) bool {
	for _, out := range g.Outputs {
		if out == value {
			return true
		}
	}
	return false
}

// OpCounts returns the op type histogram.
func (g *Graph) OpCounts() map[string]int {
	counts := make(map[string]int)
	for _, n := range g.Nodes {
		counts[n.OpType]++
	}
	return counts
}

// rename replaces every use of a value name.
func (g *Graph) rename(from, to string) {
	for _, n := range g.Nodes {
		for i := range n.Inputs {
			if n.Inputs[i] == from {
				n.Inputs[i] = to
			}
		}
		for i := range n.Outputs {
			if n.Outputs[i] == from {
				n.Outputs[i] = to
			}
		}
	}
	if v, ok := g.Values[from]; ok {
		delete(g.Values, from)
		g.Values[to] = v
	}
}
