package onnx

import (
	"errors"
	"fmt"
)

// Check verifies the structural rules a reader relies on: nodes are in
// topological order, every value name is assigned once, every node input is
// defined before use, and every graph output is produced.
func Check(m *ModelProto) error {
	if m == nil || m.Graph == nil {
		return errors.New("model has no graph")
	}
	g := m.Graph

	defined := make(map[string]string, len(g.Inputs)+len(g.Initializers)+len(g.Nodes))
	define := func(name, by string) error {
		if name == "" {
			return fmt.Errorf("%s: empty value name", by)
		}
		if prev, ok := defined[name]; ok {
			return fmt.Errorf("%s: value %q already defined by %s", by, name, prev)
		}
		defined[name] = by
		return nil
	}

	for i := range g.Inputs {
		if err := define(g.Inputs[i].Name, "graph input"); err != nil {
			return err
		}
	}
	for i := range g.Initializers {
		if err := define(g.Initializers[i].Name, "initializer"); err != nil {
			return err
		}
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		by := fmt.Sprintf("node %q (%s)", n.Name, n.OpType)
		if n.OpType == "" {
			return fmt.Errorf("node %d: missing op_type", i)
		}
		for _, in := range n.Inputs {
			if in == "" {
				continue
			}
			if _, ok := defined[in]; !ok {
				return fmt.Errorf("%s: input %q is not defined before use", by, in)
			}
		}
		for _, out := range n.Outputs {
			if err := define(out, by); err != nil {
				return err
			}
		}
	}
	if len(g.Outputs) == 0 {
		return errors.New("graph has no outputs")
	}
	for i := range g.Outputs {
		if _, ok := defined[g.Outputs[i].Name]; !ok {
			return fmt.Errorf("graph output %q is never produced", g.Outputs[i].Name)
		}
	}
	return nil
}
