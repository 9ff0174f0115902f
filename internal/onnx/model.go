package onnx

import (
	"fmt"

	"github.com/born-ml/zooexport/internal/onnx/operators"
	"github.com/born-ml/zooexport/internal/tensor"
)

// Model is a parsed graph compiled for execution on a backend.
type Model struct {
	proto    *ModelProto
	registry *operators.Registry
	backend  tensor.Backend

	weights map[string]*tensor.RawTensor
	inputs  []ValueInfoProto
	outputs []string
	steps   []step
	shared  map[string]bool // values read by more than one node
	opset   int64
}

// step is one node in execution order.
type step struct {
	node operators.Node
}

// InputNames returns the graph inputs that are not initializers.
func (m *Model) InputNames() []string {
	names := make([]string, len(m.inputs))
	for i := range m.inputs {
		names[i] = m.inputs[i].Name
	}
	return names
}

// OutputNames returns the graph outputs.
func (m *Model) OutputNames() []string { return m.outputs }

// OpsetVersion returns the default-domain opset the model imports.
func (m *Model) OpsetVersion() int64 { return m.opset }

// Metadata returns metadata_props plus the producer fields and domain.
func (m *Model) Metadata() map[string]string {
	meta := map[string]string{
		"producer_name":    m.proto.ProducerName,
		"producer_version": m.proto.ProducerVersion,
		"domain":           m.proto.Domain,
	}
	for _, kv := range m.proto.MetadataProps {
		meta[kv.Key] = kv.Value
	}
	return meta
}

// Forward runs a single-input, single-output model.
func (m *Model) Forward(input *tensor.RawTensor) (*tensor.RawTensor, error) {
	if len(m.inputs) != 1 || len(m.outputs) != 1 {
		return nil, fmt.Errorf("model has %d inputs and %d outputs, use ForwardNamed", len(m.inputs), len(m.outputs))
	}
	out, err := m.ForwardNamed(map[string]*tensor.RawTensor{m.inputs[0].Name: input})
	if err != nil {
		return nil, err
	}
	return out[m.outputs[0]], nil
}

// ForwardNamed runs the graph on named inputs and returns every graph
// output by name. Inputs must match the declared static dimensions.
func (m *Model) ForwardNamed(inputs map[string]*tensor.RawTensor) (map[string]*tensor.RawTensor, error) {
	// Kernels may reuse a unique buffer in place. Anything read again later
	// (weights, inputs, shared values) is pinned for the whole run.
	var pins []func()
	defer func() {
		for _, unpin := range pins {
			unpin()
		}
	}()
	values := make(map[string]*tensor.RawTensor, len(m.weights)+len(m.steps))
	bind := func(name string, t *tensor.RawTensor, pin bool) {
		if pin {
			pins = append(pins, t.ForceNonUnique())
		}
		values[name] = t
	}

	for name, w := range m.weights {
		bind(name, w, true)
	}
	for i := range m.inputs {
		decl := &m.inputs[i]
		t, ok := inputs[decl.Name]
		if !ok {
			return nil, fmt.Errorf("missing input: %s", decl.Name)
		}
		if err := checkDeclaredShape(decl, t.Shape()); err != nil {
			return nil, err
		}
		bind(decl.Name, t, true)
	}

	env := &operators.Env{Backend: m.backend}
	for i := range m.steps {
		node := &m.steps[i].node
		args := make([]*tensor.RawTensor, len(node.Inputs))
		for k, name := range node.Inputs {
			if name == "" {
				continue // omitted optional input
			}
			t, ok := values[name]
			if !ok {
				return nil, fmt.Errorf("node %s: missing input %s", node.Name, name)
			}
			args[k] = t
		}
		outs, err := m.registry.Run(env, node, args)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", node.Name, err)
		}
		for k := 0; k < len(node.Outputs) && k < len(outs); k++ {
			bind(node.Outputs[k], outs[k], m.shared[node.Outputs[k]])
		}
	}

	result := make(map[string]*tensor.RawTensor, len(m.outputs))
	for _, name := range m.outputs {
		t, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("missing output: %s", name)
		}
		result[name] = t
	}
	return result, nil
}

// checkDeclaredShape compares a tensor shape with the static dims of a graph
// input. Symbolic dims match anything.
func checkDeclaredShape(decl *ValueInfoProto, shape tensor.Shape) error {
	dims := decl.Dims()
	if dims == nil {
		return nil
	}
	if len(dims) != len(shape) {
		return fmt.Errorf("input %s: shape %v, expected rank %d", decl.Name, shape, len(dims))
	}
	for i, d := range dims {
		if d >= 0 && int(d) != shape[i] {
			return fmt.Errorf("input %s: shape %v, expected %v", decl.Name, shape, tensor.ShapeFromInt64s(dims))
		}
	}
	return nil
}

// compile decodes the initializers and orders the nodes.
func (m *Model) compile() error {
	graph := m.proto.Graph

	m.weights = make(map[string]*tensor.RawTensor, len(graph.Initializers))
	for i := range graph.Initializers {
		init := &graph.Initializers[i]
		t, err := decodeTensor(init)
		if err != nil {
			return fmt.Errorf("initializer %s: %w", init.Name, err)
		}
		m.weights[init.Name] = t
	}
	// IR < 4 files list initializers among the graph inputs.
	for i := range graph.Inputs {
		if _, ok := m.weights[graph.Inputs[i].Name]; !ok {
			m.inputs = append(m.inputs, graph.Inputs[i])
		}
	}
	for i := range graph.Outputs {
		m.outputs = append(m.outputs, graph.Outputs[i].Name)
	}

	order, err := executionOrder(graph.Nodes)
	if err != nil {
		return err
	}
	reads := make(map[string]int)
	m.steps = make([]step, len(order))
	for i, n := range order {
		m.steps[i] = step{node: operatorNode(n)}
		for _, in := range n.Inputs {
			reads[in]++
		}
	}
	m.shared = make(map[string]bool)
	for name, n := range reads {
		if n > 1 {
			m.shared[name] = true
		}
	}
	m.opset = defaultOpsetVersion(m.proto)
	return nil
}

func defaultOpsetVersion(proto *ModelProto) int64 {
	for _, opset := range proto.OpsetImport {
		if opset.Domain == "" || opset.Domain == "ai.onnx" {
			return opset.Version
		}
	}
	return 0
}

// executionOrder sorts nodes so every node follows the producers of its
// inputs, keeping file order among independent nodes. A cycle is an error.
func executionOrder(nodes []NodeProto) ([]*NodeProto, error) {
	producer := make(map[string]int, len(nodes))
	for i := range nodes {
		for _, out := range nodes[i].Outputs {
			producer[out] = i
		}
	}
	pending := make([]int, len(nodes))
	consumers := make([][]int, len(nodes))
	for i := range nodes {
		for _, in := range nodes[i].Inputs {
			if p, ok := producer[in]; ok && p != i {
				pending[i]++
				consumers[p] = append(consumers[p], i)
			}
		}
	}

	order := make([]*NodeProto, 0, len(nodes))
	var ready []int
	for i := range nodes {
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}
	for len(ready) > 0 {
		// Lowest index first keeps the result stable.
		best := 0
		for k := range ready {
			if ready[k] < ready[best] {
				best = k
			}
		}
		i := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, &nodes[i])
		for _, c := range consumers[i] {
			if pending[c]--; pending[c] == 0 {
				ready = append(ready, c)
			}
		}
	}
	if len(order) != len(nodes) {
		return nil, fmt.Errorf("graph has a cycle through %d nodes", len(nodes)-len(order))
	}
	return order, nil
}

func operatorNode(n *NodeProto) operators.Node {
	attrs := make([]operators.Attribute, len(n.Attributes))
	for i, a := range n.Attributes {
		attrs[i] = operators.Attribute{
			Name: a.Name, Type: a.Type,
			F: a.F, I: a.I, S: a.S,
			Floats: a.Floats, Ints: a.Ints,
		}
	}
	return operators.Node{
		Name:       n.Name,
		OpType:     n.OpType,
		Domain:     n.Domain,
		Inputs:     n.Inputs,
		Outputs:    n.Outputs,
		Attributes: attrs,
	}
}
