package cpu

import (
	"testing"

	"github.com/born-ml/zooexport/internal/tensor"
)

func TestMatMul(t *testing.T) {
	a := rawOf(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
	b := rawOf(t, tensor.Shape{3, 2}, 7, 8, 9, 10, 11, 12)

	c := New().MatMul(a, b)
	if !c.Shape().Equal(tensor.Shape{2, 2}) {
		t.Fatalf("shape = %v", c.Shape())
	}
	want := []float32{58, 64, 139, 154}
	if !float32SliceEqual(c.AsFloat32(), want) {
		t.Errorf("got %v, want %v", c.AsFloat32(), want)
	}
}

func TestGemm(t *testing.T) {
	backend := New()
	// x: [1, 3], w: [2, 3] as stored by a Linear layer, bias: [2].
	x := rawOf(t, tensor.Shape{1, 3}, 1, 2, 3)
	w := rawOf(t, tensor.Shape{2, 3}, 1, 0, 1, 0, 1, 0)
	bias := rawOf(t, tensor.Shape{2}, 10, 20)

	t.Run("TransB", func(t *testing.T) {
		y := backend.Gemm(x, w, bias, 1, 1, false, true)
		want := []float32{14, 22}
		if !float32SliceEqual(y.AsFloat32(), want) {
			t.Errorf("got %v, want %v", y.AsFloat32(), want)
		}
	})

	t.Run("AlphaBeta", func(t *testing.T) {
		y := backend.Gemm(x, w, bias, 2, 0.5, false, true)
		want := []float32{2*4 + 5, 2*2 + 10}
		if !float32SliceEqual(y.AsFloat32(), want) {
			t.Errorf("got %v, want %v", y.AsFloat32(), want)
		}
	})

	t.Run("TransA", func(t *testing.T) {
		xt := rawOf(t, tensor.Shape{3, 1}, 1, 2, 3)
		y := backend.Gemm(xt, w, nil, 1, 0, true, true)
		want := []float32{4, 2}
		if !float32SliceEqual(y.AsFloat32(), want) {
			t.Errorf("got %v, want %v", y.AsFloat32(), want)
		}
	})

	t.Run("ShapeMismatch", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		backend.Gemm(x, w, nil, 1, 0, false, false)
	})
}
