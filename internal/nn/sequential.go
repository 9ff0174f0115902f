package nn

import (
	"strconv"

	"github.com/born-ml/zooexport/internal/tensor"
)

// Sequential feeds each child's output into the next child. State dict keys
// address children by position ("0.conv1.weight"); a named container scopes
// traced children as "<name>.<i>", matching torch.nn.Sequential.
//
//	layer1 := nn.NewSequential[B](block0, block1).Named("layer1")
type Sequential[B tensor.Backend] struct {
	name     string
	children []Module[B]
}

// NewSequential chains children in order.
func NewSequential[B tensor.Backend](children ...Module[B]) *Sequential[B] {
	return &Sequential[B]{children: children}
}

// Named sets the attribute name used in trace scopes.
func (s *Sequential[B]) Named(name string) *Sequential[B] {
	s.name = name
	return s
}

func (s *Sequential[B]) scope(i int) string {
	if s.name == "" {
		return strconv.Itoa(i)
	}
	return s.name + "." + strconv.Itoa(i)
}

func (s *Sequential[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	for i, child := range s.children {
		x = Call(s.scope(i), child, x)
	}
	return x
}

func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var out []*Parameter[B]
	for _, child := range s.children {
		out = append(out, child.Parameters()...)
	}
	return out
}

func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for i, child := range s.children {
		MergeState(sd, strconv.Itoa(i), child.StateDict())
	}
	return sd
}

func (s *Sequential[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	for i, child := range s.children {
		if err := LoadChild(sd, strconv.Itoa(i), child); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequential[B]) Train(mode bool) {
	for _, child := range s.children {
		child.Train(mode)
	}
}

// Training reports whether any child is still in training mode.
func (s *Sequential[B]) Training() bool {
	for _, child := range s.children {
		if child.Training() {
			return true
		}
	}
	return false
}
