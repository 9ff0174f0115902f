// Package nn implements the neural network modules the model zoo is built from.
//
//   - Module: the interface every layer and container implements
//   - Parameter: a named weight tensor
//   - Conv2D, BatchNorm2D, ReLU, MaxPool2D, AdaptiveAvgPool2D, Flatten, Linear
//   - Sequential: a container that chains modules
//
// Modules dispatch every op through the backend of their input tensor, so the
// same model runs eagerly on the CPU backend and records a graph when fed a
// tensor bound to the tracing backend.
package nn

import (
	"github.com/born-ml/zooexport/internal/tensor"
)

// Module is the base interface for all neural network components.
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters, nested ones included.
	Parameters() []*Parameter[B]

	// StateDict returns every parameter and buffer keyed by its dotted name
	// relative to this module ("weight", "0.bn1.running_mean", ...).
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies values from stateDict into this module.
	// Every key the module owns must be present with a matching shape.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error

	// Train switches between training (true) and inference (false) mode.
	Train(mode bool)

	// Training reports the current mode.
	Training() bool
}

// Eval puts m into inference mode. Shorthand for m.Train(false).
func Eval[B tensor.Backend](m Module[B]) {
	m.Train(false)
}

// mode is embedded by leaf modules to carry the training flag.
// Modules are created in training mode, as in PyTorch.
type mode struct {
	eval bool
}

// Train sets the training flag.
func (m *mode) Train(on bool) { m.eval = !on }

// Training reports whether the module is in training mode.
func (m *mode) Training() bool { return !m.eval }
