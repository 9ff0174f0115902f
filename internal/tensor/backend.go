package tensor

// Backend is the op set the model code is written against. cpu.CPUBackend
// computes eagerly; trace.Backend wraps another Backend and records each
// call as an ONNX node.
//
// Ops panic on invalid shapes. Callers that want an error recover at their
// boundary.
type Backend interface {
	Name() string
	Device() Device

	// Add broadcasts like NumPy.
	Add(a, b *RawTensor) *RawTensor
	ReLU(x *RawTensor) *RawTensor

	MatMul(a, b *RawTensor) *RawTensor
	// Gemm is alpha*op(a)*op(b) + beta*c, op transposing when asked. c may
	// be nil and is broadcast to the result.
	Gemm(a, b, c *RawTensor, alpha, beta float32, transA, transB bool) *RawTensor

	// NCHW layout and square kernels throughout.
	Conv2D(x, weight, bias *RawTensor, stride, padding int) *RawTensor
	MaxPool2D(x *RawTensor, kernel, stride, padding int) *RawTensor
	GlobalAvgPool2D(x *RawTensor) *RawTensor
	// BatchNorm2D applies inference-mode normalization with running stats.
	BatchNorm2D(x, scale, shift, mean, variance *RawTensor, eps float32) *RawTensor

	Flatten(x *RawTensor, axis int) *RawTensor
	Reshape(x *RawTensor, shape Shape) *RawTensor
	Transpose(x *RawTensor, axes ...int) *RawTensor
}
