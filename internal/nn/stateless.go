package nn

import (
	"github.com/born-ml/zooexport/internal/tensor"
)

// stateless is embedded by modules that own no parameters.
type stateless[B tensor.Backend] struct {
	mode
}

// Parameters returns nil.
func (s stateless[B]) Parameters() []*Parameter[B] { return nil }

// StateDict returns an empty map.
func (s stateless[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict accepts any input; there is nothing to load.
func (s stateless[B]) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }
