package nn

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/zooexport/internal/tensor"
)

// KaimingNormal samples N(0, 2/fan), torchvision's ResNet conv init with
// fan = fan_out.
func KaimingNormal[B tensor.Backend](fan int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	return tensor.Randn(shape, math.Sqrt(2/float64(fan)), rng, backend)
}

// fanInUniform samples U(-1/sqrt(fan), 1/sqrt(fan)), the default init of
// torch.nn.Linear.
func fanInUniform[B tensor.Backend](fan int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	bound := 1 / math.Sqrt(float64(fan))
	return tensor.Uniform(shape, -bound, bound, rng, backend)
}

func filled[B tensor.Backend](shape tensor.Shape, v float32, backend B) *tensor.Tensor[float32, B] {
	return tensor.Full(shape, v, backend)
}
