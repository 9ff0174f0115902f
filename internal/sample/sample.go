// Package sample builds the dummy input fed to the traced forward pass.
package sample

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for FromImage
	_ "image/png"
	"os"

	"github.com/nfnt/resize"

	"github.com/born-ml/zooexport/internal/tensor"
)

// ImageNet normalization constants, per RGB channel.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Random draws a standard-normal tensor of the given shape.
func Random[B tensor.Backend](shape tensor.Shape, seed uint64, backend B) (*tensor.Tensor[float32, B], error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("sample shape: %w", err)
	}
	return tensor.Randn(shape, 1, tensor.NewRand(seed), backend), nil
}

// FromImage decodes a PNG or JPEG, resizes it bilinearly to height x width,
// scales to [0, 1] and normalizes with the ImageNet mean and std. The result
// is a [1, 3, height, width] NCHW tensor.
func FromImage[B tensor.Backend](path string, height, width int, backend B) (*tensor.Tensor[float32, B], error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", height, width)
	}
	//nolint:gosec // G304: sample image path comes from the user
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sample image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode sample image %s: %w", path, err)
	}

	resized := resize.Resize(uint(width), uint(height), img, resize.Bilinear)
	return FromRGB(resized, backend)
}

// FromRGB converts an image to a normalized [1, 3, H, W] tensor at the
// image's own size.
func FromRGB[B tensor.Backend](img image.Image, backend B) (*tensor.Tensor[float32, B], error) {
	bounds := img.Bounds()
	h, w := bounds.Dy(), bounds.Dx()
	data := make([]float32, 3*h*w)
	plane := h * w
	for y := range h {
		for x := range w {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := y*w + x
			for c, v := range [3]uint32{r, g, b} {
				data[c*plane+i] = (float32(v)/0xffff - ImageNetMean[c]) / ImageNetStd[c]
			}
		}
	}
	return tensor.FromSlice(data, tensor.Shape{1, 3, h, w}, backend)
}
