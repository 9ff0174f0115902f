package sample

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/zooexport/internal/backend/cpu"
	"github.com/born-ml/zooexport/internal/tensor"
)

type B = tensor.Backend

func TestRandomIsSeeded(t *testing.T) {
	shape := tensor.Shape{1, 3, 8, 8}
	a, err := Random[B](shape, 5, cpu.New())
	require.NoError(t, err)
	b, err := Random[B](shape, 5, cpu.New())
	require.NoError(t, err)
	c, err := Random[B](shape, 6, cpu.New())
	require.NoError(t, err)

	assert.Equal(t, shape, a.Shape())
	assert.Equal(t, a.Data(), b.Data())
	assert.NotEqual(t, a.Data(), c.Data())

	_, err = Random[B](tensor.Shape{1, 0}, 1, cpu.New())
	assert.Error(t, err)
}

func TestFromImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for y := range 10 {
		for x := range 20 {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 128, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "red.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	x, err := FromImage[B](path, 4, 6, cpu.New())
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{1, 3, 4, 6}, x.Shape())

	// A flat colour stays flat after resizing, up to 8-bit rounding.
	assert.InDelta(t, (1-ImageNetMean[0])/ImageNetStd[0], x.At(0, 0, 2, 3), 2.5e-2)
	assert.InDelta(t, (0-ImageNetMean[1])/ImageNetStd[1], x.At(0, 1, 0, 0), 2.5e-2)
	assert.InDelta(t, (128.0/255-ImageNetMean[2])/ImageNetStd[2], x.At(0, 2, 3, 5), 2.5e-2)
}

func TestFromImageErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := FromImage[B](filepath.Join(dir, "missing.png"), 4, 4, cpu.New())
	assert.ErrorIs(t, err, os.ErrNotExist)

	junk := filepath.Join(dir, "junk.png")
	require.NoError(t, os.WriteFile(junk, []byte("not an image"), 0o644))
	_, err = FromImage[B](junk, 4, 4, cpu.New())
	assert.ErrorContains(t, err, "decode")

	_, err = FromImage[B](junk, 0, 4, cpu.New())
	assert.Error(t, err)
}
