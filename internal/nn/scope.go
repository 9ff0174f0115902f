package nn

import (
	"github.com/born-ml/zooexport/internal/tensor"
)

// Scoper is implemented by backends that want to know which submodule an op
// was issued from. The tracing backend uses it to name graph nodes
// ("/layer1/layer1.0/conv1/Conv").
type Scoper interface {
	PushScope(name string)
	PopScope()
}

// Call runs m.Forward(x) inside the named scope when x's backend is a Scoper.
// Containers use it for every child so node names follow the module tree.
func Call[B tensor.Backend](name string, m Module[B], x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if s, ok := any(x.Backend()).(Scoper); ok {
		s.PushScope(name)
		defer s.PopScope()
	}
	return m.Forward(x)
}
