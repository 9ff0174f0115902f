// Package onnx is the public entry point for the ONNX files zooexport
// writes. It loads a model onto the CPU backend and runs it on plain
// float32 slices, or summarizes a file without running anything.
//
//	info, err := onnx.Inspect("data/resnet18.onnx")
//	m, err := onnx.Load("data/resnet18.onnx")
//	logits, shape, err := m.Run(pixels, 1, 3, 224, 224)
package onnx

import (
	"fmt"

	"github.com/born-ml/zooexport/internal/backend/cpu"
	"github.com/born-ml/zooexport/internal/onnx"
	"github.com/born-ml/zooexport/internal/tensor"
)

// Info summarizes a model file: versions, graph inputs and outputs, node
// and parameter counts, the op histogram and the metadata entries.
type Info = onnx.ModelInfo

// ValueSummary is one graph input or output.
type ValueSummary = onnx.ValueSummary

// Inspect parses the file at path and summarizes it.
func Inspect(path string) (*Info, error) {
	return onnx.GetModelInfo(path)
}

// Model is a loaded graph with one input and one output.
type Model struct {
	m *onnx.Model
}

// Load parses the file at path and compiles it for the CPU backend. Files
// using operators the executor lacks are rejected.
func Load(path string) (*Model, error) {
	m, err := onnx.Load(path, cpu.New(), onnx.LoadOptions{StrictMode: true})
	if err != nil {
		return nil, err
	}
	return &Model{m: m}, nil
}

func (m *Model) InputNames() []string        { return m.m.InputNames() }
func (m *Model) OutputNames() []string       { return m.m.OutputNames() }
func (m *Model) OpsetVersion() int64         { return m.m.OpsetVersion() }
func (m *Model) Metadata() map[string]string { return m.m.Metadata() }

// Run feeds input, laid out row-major with the given shape, through the
// graph and returns the output data and shape. input is not modified.
func (m *Model) Run(input []float32, shape ...int) ([]float32, []int, error) {
	x, err := tensor.NewRawFloat32(tensor.Shape(shape), input)
	if err != nil {
		return nil, nil, fmt.Errorf("onnx: input: %w", err)
	}
	y, err := m.m.Forward(x)
	if err != nil {
		return nil, nil, err
	}
	if y.DType() != tensor.Float32 {
		return nil, nil, fmt.Errorf("onnx: output is %s, not float32", y.DType())
	}
	return append([]float32(nil), y.AsFloat32()...), append([]int(nil), y.Shape()...), nil
}
