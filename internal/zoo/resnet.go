package zoo

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/zooexport/internal/nn"
	"github.com/born-ml/zooexport/internal/tensor"
)

// Config describes a ResNet variant.
type Config struct {
	Layers     [4]int // blocks per stage
	Bottleneck bool   // Bottleneck blocks (expansion 4) instead of BasicBlock
	Width      int    // stem width; stages use Width, 2*Width, 4*Width, 8*Width
	NumClasses int
	InputSize  int // spatial size of the declared input
}

func (c Config) expansion() int {
	if c.Bottleneck {
		return 4
	}
	return 1
}

// FeatureDim returns the number of features entering the classifier.
func (c Config) FeatureDim() int {
	return 8 * c.Width * c.expansion()
}

func (c Config) validate() error {
	if c.Width <= 0 || c.NumClasses <= 0 || c.InputSize <= 0 {
		return fmt.Errorf("invalid resnet config %+v", c)
	}
	for _, n := range c.Layers {
		if n <= 0 {
			return fmt.Errorf("invalid resnet stage sizes %v", c.Layers)
		}
	}
	return nil
}

// ResNet is the torchvision ResNet. Its state dict uses torchvision names
// ("conv1.weight", "layer1.0.bn1.running_mean", "fc.bias").
type ResNet[B tensor.Backend] struct {
	cfg     Config
	conv1   *nn.Conv2D[B]
	bn1     *nn.BatchNorm2D[B]
	relu    *nn.ReLU[B]
	maxpool *nn.MaxPool2D[B]
	layers  [4]*nn.Sequential[B]
	avgpool *nn.AdaptiveAvgPool2D[B]
	flatten *nn.Flatten[B]
	fc      *nn.Linear[B]
}

// NewResNet builds a ResNet with torchvision's initialization: Kaiming
// normal convs, unit BatchNorm and the default Linear init.
func NewResNet[B tensor.Backend](cfg Config, rng *rand.Rand, backend B) (*ResNet[B], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	w := cfg.Width
	r := &ResNet[B]{
		cfg:     cfg,
		conv1:   nn.NewConv2D[B](3, w, 7, 2, 3, false, rng, backend),
		bn1:     nn.NewBatchNorm2D[B](w, backend),
		relu:    nn.NewReLU[B](),
		maxpool: nn.NewMaxPool2D[B](3, 2, 1),
		avgpool: nn.NewAdaptiveAvgPool2D[B](),
		flatten: nn.NewFlatten[B](1),
		fc:      nn.NewLinear[B](cfg.FeatureDim(), cfg.NumClasses, rng, backend),
	}

	inPlanes := w
	for stage := range 4 {
		planes := w << stage
		stride := 2
		if stage == 0 {
			stride = 1
		}
		blocks := make([]nn.Module[B], cfg.Layers[stage])
		for i := range blocks {
			s := 1
			if i == 0 {
				s = stride
			}
			if cfg.Bottleneck {
				blocks[i] = newBottleneck[B](inPlanes, planes, s, rng, backend)
			} else {
				blocks[i] = newBasicBlock[B](inPlanes, planes, s, rng, backend)
			}
			inPlanes = planes * cfg.expansion()
		}
		r.layers[stage] = nn.NewSequential[B](blocks...).Named(layerName(stage))
	}
	return r, nil
}

func layerName(stage int) string {
	return fmt.Sprintf("layer%d", stage+1)
}

// Config returns the architecture parameters.
func (r *ResNet[B]) Config() Config { return r.cfg }

// InputShape is [N, 3, InputSize, InputSize] with any batch size.
func (r *ResNet[B]) InputShape() tensor.Shape {
	return tensor.Shape{0, 3, r.cfg.InputSize, r.cfg.InputSize}
}

// Forward maps [N, 3, H, W] images to [N, NumClasses] logits.
func (r *ResNet[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	x = nn.Call[B]("conv1", r.conv1, x)
	x = nn.Call[B]("bn1", r.bn1, x)
	x = nn.Call[B]("relu", r.relu, x)
	x = nn.Call[B]("maxpool", r.maxpool, x)
	for i, layer := range r.layers {
		x = nn.Call[B](layerName(i), layer, x)
	}
	x = nn.Call[B]("avgpool", r.avgpool, x)
	x = r.flatten.Forward(x)
	return nn.Call[B]("fc", r.fc, x)
}

func (r *ResNet[B]) children() []namedModule[B] {
	mods := []namedModule[B]{
		{"conv1", r.conv1},
		{"bn1", r.bn1},
	}
	for i, layer := range r.layers {
		mods = append(mods, namedModule[B]{layerName(i), layer})
	}
	return append(mods, namedModule[B]{"fc", r.fc})
}

// Parameters returns every learned parameter.
func (r *ResNet[B]) Parameters() []*nn.Parameter[B] {
	return parametersOf(r.children())
}

// StateDict returns all parameters and BatchNorm buffers.
func (r *ResNet[B]) StateDict() map[string]*tensor.RawTensor {
	return stateDictOf(r.children())
}

// LoadStateDict loads every entry the model owns.
func (r *ResNet[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	return loadStateDictOf(r.children(), sd)
}

// Train sets the mode of every submodule.
func (r *ResNet[B]) Train(on bool) {
	trainAll(r.children(), on)
	r.relu.Train(on)
	r.maxpool.Train(on)
	r.avgpool.Train(on)
	r.flatten.Train(on)
}

// Training reports whether any submodule is in training mode.
func (r *ResNet[B]) Training() bool {
	return anyTraining(r.children())
}

// BasicBlock is two 3x3 convs with an identity or projected shortcut.
type BasicBlock[B tensor.Backend] struct {
	conv1      *nn.Conv2D[B]
	bn1        *nn.BatchNorm2D[B]
	relu       *nn.ReLU[B]
	conv2      *nn.Conv2D[B]
	bn2        *nn.BatchNorm2D[B]
	downsample *nn.Sequential[B] // nil for an identity shortcut
}

func newBasicBlock[B tensor.Backend](inPlanes, planes, stride int, rng *rand.Rand, backend B) *BasicBlock[B] {
	return &BasicBlock[B]{
		conv1:      nn.NewConv2D[B](inPlanes, planes, 3, stride, 1, false, rng, backend),
		bn1:        nn.NewBatchNorm2D[B](planes, backend),
		relu:       nn.NewReLU[B](),
		conv2:      nn.NewConv2D[B](planes, planes, 3, 1, 1, false, rng, backend),
		bn2:        nn.NewBatchNorm2D[B](planes, backend),
		downsample: newDownsample[B](inPlanes, planes, stride, rng, backend),
	}
}

// Forward computes relu(bn2(conv2(relu(bn1(conv1(x))))) + shortcut(x)).
func (b *BasicBlock[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out := nn.Call[B]("conv1", b.conv1, x)
	out = nn.Call[B]("bn1", b.bn1, out)
	out = nn.Call[B]("relu", b.relu, out)
	out = nn.Call[B]("conv2", b.conv2, out)
	out = nn.Call[B]("bn2", b.bn2, out)
	out = out.Add(shortcut(b.downsample, x))
	return nn.Call[B]("relu_1", b.relu, out)
}

func (b *BasicBlock[B]) children() []namedModule[B] {
	mods := []namedModule[B]{
		{"conv1", b.conv1}, {"bn1", b.bn1},
		{"conv2", b.conv2}, {"bn2", b.bn2},
	}
	if b.downsample != nil {
		mods = append(mods, namedModule[B]{"downsample", b.downsample})
	}
	return mods
}

// Parameters returns the block's learned parameters.
func (b *BasicBlock[B]) Parameters() []*nn.Parameter[B] { return parametersOf(b.children()) }

// StateDict returns the block's parameters and buffers.
func (b *BasicBlock[B]) StateDict() map[string]*tensor.RawTensor { return stateDictOf(b.children()) }

// LoadStateDict loads the block's entries.
func (b *BasicBlock[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	return loadStateDictOf(b.children(), sd)
}

// Train sets the mode of every submodule.
func (b *BasicBlock[B]) Train(on bool) {
	trainAll(b.children(), on)
	b.relu.Train(on)
}

// Training reports whether any submodule is in training mode.
func (b *BasicBlock[B]) Training() bool { return anyTraining(b.children()) }

// Bottleneck is 1x1 reduce, 3x3, 1x1 expand with a shortcut. The stride sits
// on the 3x3 conv, as in torchvision's ResNet v1.5.
type Bottleneck[B tensor.Backend] struct {
	conv1      *nn.Conv2D[B]
	bn1        *nn.BatchNorm2D[B]
	conv2      *nn.Conv2D[B]
	bn2        *nn.BatchNorm2D[B]
	conv3      *nn.Conv2D[B]
	bn3        *nn.BatchNorm2D[B]
	relu       *nn.ReLU[B]
	downsample *nn.Sequential[B]
}

func newBottleneck[B tensor.Backend](inPlanes, planes, stride int, rng *rand.Rand, backend B) *Bottleneck[B] {
	out := planes * 4
	return &Bottleneck[B]{
		conv1:      nn.NewConv2D[B](inPlanes, planes, 1, 1, 0, false, rng, backend),
		bn1:        nn.NewBatchNorm2D[B](planes, backend),
		conv2:      nn.NewConv2D[B](planes, planes, 3, stride, 1, false, rng, backend),
		bn2:        nn.NewBatchNorm2D[B](planes, backend),
		conv3:      nn.NewConv2D[B](planes, out, 1, 1, 0, false, rng, backend),
		bn3:        nn.NewBatchNorm2D[B](out, backend),
		relu:       nn.NewReLU[B](),
		downsample: newDownsample[B](inPlanes, out, stride, rng, backend),
	}
}

// Forward computes the bottleneck residual.
func (b *Bottleneck[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out := nn.Call[B]("conv1", b.conv1, x)
	out = nn.Call[B]("bn1", b.bn1, out)
	out = nn.Call[B]("relu", b.relu, out)
	out = nn.Call[B]("conv2", b.conv2, out)
	out = nn.Call[B]("bn2", b.bn2, out)
	out = nn.Call[B]("relu_1", b.relu, out)
	out = nn.Call[B]("conv3", b.conv3, out)
	out = nn.Call[B]("bn3", b.bn3, out)
	out = out.Add(shortcut(b.downsample, x))
	return nn.Call[B]("relu_2", b.relu, out)
}

func (b *Bottleneck[B]) children() []namedModule[B] {
	mods := []namedModule[B]{
		{"conv1", b.conv1}, {"bn1", b.bn1},
		{"conv2", b.conv2}, {"bn2", b.bn2},
		{"conv3", b.conv3}, {"bn3", b.bn3},
	}
	if b.downsample != nil {
		mods = append(mods, namedModule[B]{"downsample", b.downsample})
	}
	return mods
}

// Parameters returns the block's learned parameters.
func (b *Bottleneck[B]) Parameters() []*nn.Parameter[B] { return parametersOf(b.children()) }

// StateDict returns the block's parameters and buffers.
func (b *Bottleneck[B]) StateDict() map[string]*tensor.RawTensor { return stateDictOf(b.children()) }

// LoadStateDict loads the block's entries.
func (b *Bottleneck[B]) LoadStateDict(sd map[string]*tensor.RawTensor) error {
	return loadStateDictOf(b.children(), sd)
}

// Train sets the mode of every submodule.
func (b *Bottleneck[B]) Train(on bool) {
	trainAll(b.children(), on)
	b.relu.Train(on)
}

// Training reports whether any submodule is in training mode.
func (b *Bottleneck[B]) Training() bool { return anyTraining(b.children()) }

// newDownsample returns the 1x1 projection shortcut, or nil when the input
// already matches the block output.
func newDownsample[B tensor.Backend](inPlanes, outPlanes, stride int, rng *rand.Rand, backend B) *nn.Sequential[B] {
	if stride == 1 && inPlanes == outPlanes {
		return nil
	}
	return nn.NewSequential[B](
		nn.NewConv2D[B](inPlanes, outPlanes, 1, stride, 0, false, rng, backend),
		nn.NewBatchNorm2D[B](outPlanes, backend),
	).Named("downsample")
}

func shortcut[B tensor.Backend](downsample *nn.Sequential[B], x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if downsample == nil {
		return x
	}
	return nn.Call[B]("downsample", downsample, x)
}

type namedModule[B tensor.Backend] struct {
	name   string
	module nn.Module[B]
}

func parametersOf[B tensor.Backend](mods []namedModule[B]) []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, m := range mods {
		params = append(params, m.module.Parameters()...)
	}
	return params
}

func stateDictOf[B tensor.Backend](mods []namedModule[B]) map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor)
	for _, m := range mods {
		nn.MergeState(sd, m.name, m.module.StateDict())
	}
	return sd
}

func loadStateDictOf[B tensor.Backend](mods []namedModule[B], sd map[string]*tensor.RawTensor) error {
	for _, m := range mods {
		if err := nn.LoadChild(sd, m.name, m.module); err != nil {
			return err
		}
	}
	return nil
}

func trainAll[B tensor.Backend](mods []namedModule[B], on bool) {
	for _, m := range mods {
		m.module.Train(on)
	}
}

func anyTraining[B tensor.Backend](mods []namedModule[B]) bool {
	for _, m := range mods {
		if m.module.Training() {
			return true
		}
	}
	return false
}
