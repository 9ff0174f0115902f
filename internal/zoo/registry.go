// Package zoo provides the pretrained image classifiers zooexport exports:
// the architectures, a registry keyed by name, and the weights sources.
package zoo

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/born-ml/zooexport/internal/tensor"
)

// ErrUnknownModel is returned for a name the registry does not know.
var ErrUnknownModel = errors.New("unknown model")

// ImageNetClasses is the class count of the ImageNet-1k heads.
const ImageNetClasses = 1000

// Entry is one registered architecture.
type Entry struct {
	Name           string
	Description    string
	Config         Config
	DefaultWeights string // safetensors URL
}

const hubURL = "https://huggingface.co/%s/resolve/main/model.safetensors"

var registry = map[string]Entry{
	"resnet18": {
		Name:           "resnet18",
		Description:    "ResNet-18, BasicBlock, torchvision ImageNet-1k weights",
		Config:         Config{Layers: [4]int{2, 2, 2, 2}, Width: 64, NumClasses: ImageNetClasses, InputSize: 224},
		DefaultWeights: fmt.Sprintf(hubURL, "timm/resnet18.tv_in1k"),
	},
	"resnet34": {
		Name:           "resnet34",
		Description:    "ResNet-34, BasicBlock, torchvision ImageNet-1k weights",
		Config:         Config{Layers: [4]int{3, 4, 6, 3}, Width: 64, NumClasses: ImageNetClasses, InputSize: 224},
		DefaultWeights: fmt.Sprintf(hubURL, "timm/resnet34.tv_in1k"),
	},
	"resnet50": {
		Name:           "resnet50",
		Description:    "ResNet-50, Bottleneck, torchvision ImageNet-1k V2 weights",
		Config:         Config{Layers: [4]int{3, 4, 6, 3}, Bottleneck: true, Width: 64, NumClasses: ImageNetClasses, InputSize: 224},
		DefaultWeights: fmt.Sprintf(hubURL, "timm/resnet50.tv2_in1k"),
	},
}

// DefaultModel is the architecture exported when none is named.
const DefaultModel = "resnet18"

// Lookup returns the entry registered under name.
func Lookup(name string) (Entry, error) {
	e, ok := registry[strings.ToLower(name)]
	if !ok {
		return Entry{}, fmt.Errorf("%w %q (available: %s)", ErrUnknownModel, name, strings.Join(Names(), ", "))
	}
	return e, nil
}

// Names returns the registered names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Entries returns all entries sorted by name.
func Entries() []Entry {
	entries := make([]Entry, 0, len(registry))
	for _, name := range Names() {
		entries = append(entries, registry[name])
	}
	return entries
}

// Build constructs the named architecture with freshly initialized weights.
func Build[B tensor.Backend](name string, rng *rand.Rand, backend B) (*ResNet[B], error) {
	e, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return NewResNet[B](e.Config, rng, backend)
}
