package nn

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/born-ml/zooexport/internal/tensor"
)

// MergeState copies every entry of src into dst under "prefix.name".
func MergeState(dst map[string]*tensor.RawTensor, prefix string, src map[string]*tensor.RawTensor) {
	for name, raw := range src {
		dst[prefix+"."+name] = raw
	}
}

// SubState returns the entries of sd below prefix with the prefix stripped.
func SubState(sd map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	p := prefix + "."
	for key, raw := range sd {
		if rest, ok := strings.CutPrefix(key, p); ok {
			out[rest] = raw
		}
	}
	return out
}

// LoadChild loads the prefix subtree of sd into child, wrapping errors with
// the prefix so they name the full parameter path.
func LoadChild[B tensor.Backend](sd map[string]*tensor.RawTensor, prefix string, child Module[B]) error {
	if err := child.LoadStateDict(SubState(sd, prefix)); err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	return nil
}

// SortedKeys returns the state dict names in lexical order.
func SortedKeys(sd map[string]*tensor.RawTensor) []string {
	return slices.Sorted(maps.Keys(sd))
}
