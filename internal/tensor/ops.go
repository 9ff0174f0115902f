package tensor

// Methods the model code calls directly. Everything else goes through the
// backend on RawTensors.

func (t *Tensor[T, B]) wrap(raw *RawTensor) *Tensor[T, B] { return New[T](raw, t.backend) }

// Add adds other with NumPy broadcasting.
func (t *Tensor[T, B]) Add(other *Tensor[T, B]) *Tensor[T, B] {
	return t.wrap(t.backend.Add(t.raw, other.raw))
}

func (t *Tensor[T, B]) ReLU() *Tensor[T, B] { return t.wrap(t.backend.ReLU(t.raw)) }

// Flatten keeps the axes before axis and folds the rest into one:
// (N, C, H, W).Flatten(1) is (N, C*H*W).
func (t *Tensor[T, B]) Flatten(axis int) *Tensor[T, B] {
	return t.wrap(t.backend.Flatten(t.raw, axis))
}
