// Package operators maps ONNX nodes onto tensor.Backend calls.
//
// Each handler validates its inputs and attributes, then delegates to the
// backend. The set covers convolutional classifiers: Conv,
// BatchNormalization, MaxPool, GlobalAveragePool, Gemm, MatMul, Add, Relu,
// Flatten, Reshape, Transpose and the inference no-ops Identity and Dropout.
package operators
