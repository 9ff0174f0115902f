package tensor

import (
	"math"
	"testing"
)

func TestZerosOnesFull(t *testing.T) {
	b := stubBackend{}

	for _, v := range Zeros[int64](Shape{2, 3}, b).Data() {
		if v != 0 {
			t.Fatalf("Zeros contains %d", v)
		}
	}
	for _, v := range Ones[float64](Shape{4}, b).Data() {
		if v != 1 {
			t.Fatalf("Ones contains %v", v)
		}
	}
	for _, v := range Full[float32](Shape{3, 3}, 3.5, b).Data() {
		if v != 3.5 {
			t.Fatalf("Full contains %v", v)
		}
	}
}

func TestRandnIsSeeded(t *testing.T) {
	b := stubBackend{}
	shape := Shape{1, 3, 8, 8}

	a := Randn(shape, 1, NewRand(42), b)
	c := Randn(shape, 1, NewRand(42), b)
	d := Randn(shape, 1, NewRand(43), b)

	if MaxAbsDiff(a.Raw(), c.Raw()) != 0 {
		t.Error("same seed should give identical tensors")
	}
	if MaxAbsDiff(a.Raw(), d.Raw()) == 0 {
		t.Error("different seeds should give different tensors")
	}
}

func TestRandnStatistics(t *testing.T) {
	x := Randn(Shape{10000}, 2, NewRand(7), stubBackend{})

	var sum, sumSq float64
	for _, v := range x.Data() {
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	n := float64(x.NumElements())
	mean := sum / n
	std := math.Sqrt(sumSq/n - mean*mean)

	if math.Abs(mean) > 0.1 {
		t.Errorf("mean = %v, want ~0", mean)
	}
	if math.Abs(std-2) > 0.1 {
		t.Errorf("std = %v, want ~2", std)
	}
}

func TestUniformRange(t *testing.T) {
	x := Uniform(Shape{1000}, -0.5, 0.5, NewRand(1), stubBackend{})
	for _, v := range x.Data() {
		if v < -0.5 || v >= 0.5 {
			t.Fatalf("value %v outside [-0.5, 0.5)", v)
		}
	}
}

func TestAllClose(t *testing.T) {
	a, _ := NewRawFloat32(Shape{3}, []float32{1, 2, 3})
	b, _ := NewRawFloat32(Shape{3}, []float32{1, 2, 3.0001})
	c, _ := NewRawFloat32(Shape{1, 3}, []float32{1, 2, 3})

	if !AllClose(a, b, 1e-4, 0) {
		t.Error("a and b should be close within 1e-4 relative")
	}
	if AllClose(a, b, 0, 1e-6) {
		t.Error("a and b should differ beyond 1e-6 absolute")
	}
	if AllClose(a, c, 1, 1) {
		t.Error("different shapes are never close")
	}
}
