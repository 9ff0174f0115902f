package nn

import (
	"fmt"

	"github.com/born-ml/zooexport/internal/tensor"
)

// Parameter is a named float32 tensor a module owns. Learned weights and
// BatchNorm running statistics are both Parameters, so both appear in the
// state dict.
type Parameter[B tensor.Backend] struct {
	name   string
	tensor *tensor.Tensor[float32, B]
}

func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{name: name, tensor: t}
}

func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] { return p.tensor }

func (p *Parameter[B]) Raw() *tensor.RawTensor { return p.tensor.Raw() }

// Load copies src in place. src must be float32 with the parameter's shape.
func (p *Parameter[B]) Load(src *tensor.RawTensor) error {
	switch want := p.tensor.Shape(); {
	case !src.Shape().Equal(want):
		return fmt.Errorf("%s: shape mismatch: want %v, got %v", p.name, want, src.Shape())
	case src.DType() != tensor.Float32:
		return fmt.Errorf("%s: dtype mismatch: want float32, got %s", p.name, src.DType())
	}
	copy(p.tensor.Data(), src.AsFloat32())
	return nil
}

// loadParams loads each non-nil parameter from its local name in sd.
func loadParams[B tensor.Backend](sd map[string]*tensor.RawTensor, params ...*Parameter[B]) error {
	for _, p := range params {
		if p == nil {
			continue
		}
		src, ok := sd[p.name]
		if !ok {
			return fmt.Errorf("missing %s in state dict", p.name)
		}
		if err := p.Load(src); err != nil {
			return err
		}
	}
	return nil
}

func stateOf[B tensor.Backend](params ...*Parameter[B]) map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		if p != nil {
			sd[p.name] = p.Raw()
		}
	}
	return sd
}
