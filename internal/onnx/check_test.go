package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	assert.NoError(t, Check(sampleModel()))

	tests := []struct {
		name   string
		mutate func(m *ModelProto)
		want   string
	}{
		{"NoGraph", func(m *ModelProto) { m.Graph = nil }, "no graph"},
		{"UndefinedInput", func(m *ModelProto) { m.Graph.Nodes[0].Inputs[1] = "missing" }, `input "missing" is not defined`},
		{"OutOfOrder", func(m *ModelProto) {
			m.Graph.Nodes[0], m.Graph.Nodes[1] = m.Graph.Nodes[1], m.Graph.Nodes[0]
		}, "not defined before use"},
		{"DuplicateValue", func(m *ModelProto) { m.Graph.Nodes[1].Outputs[0] = "conv1.weight" }, "already defined by initializer"},
		{"MissingOpType", func(m *ModelProto) { m.Graph.Nodes[1].OpType = "" }, "missing op_type"},
		{"NoOutputs", func(m *ModelProto) { m.Graph.Outputs = nil }, "no outputs"},
		{"DanglingOutput", func(m *ModelProto) { m.Graph.Outputs[0].Name = "nowhere" }, `"nowhere" is never produced`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleModel()
			tt.mutate(m)
			assert.ErrorContains(t, Check(m), tt.want)
		})
	}
}
