// Package onnx reads and writes ONNX model files.
//
// The codec is hand-written over google.golang.org/protobuf/encoding/protowire
// and covers the subset of onnx.proto that image classifiers use:
//   - ModelProto: IR version, opset imports, producer and metadata_props
//   - GraphProto: nodes, initializers, inputs, outputs and value_info
//   - NodeProto and AttributeProto: op type, value names and attributes
//   - TensorProto: dims, data type and raw_data (little-endian)
//
// Marshal and WriteFile produce the bytes, Parse and ParseFile read them
// back, and Check enforces the graph rules a reader depends on. Load builds a
// small executor over a parsed graph that runs on any tensor.Backend.
//
// Example usage:
//
//	info, err := onnx.GetModelInfo("data/resnet18.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d nodes, inputs %v\n", info.NodeCount, info.InputNames())
//
//	model, err := onnx.Load("data/resnet18.onnx", cpu.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logits, err := model.Forward(input)
package onnx
