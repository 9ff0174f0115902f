package tensor

import "fmt"

// Tensor pairs a RawTensor with the backend that computes on it. T fixes
// the element type at compile time.
type Tensor[T DType, B Backend] struct {
	raw     *RawTensor
	backend B
}

// New wraps raw for backend b.
func New[T DType, B Backend](raw *RawTensor, b B) *Tensor[T, B] {
	return &Tensor[T, B]{raw: raw, backend: b}
}

// FromSlice copies data into a new tensor of the given shape.
func FromSlice[T DType, B Backend](data []T, shape Shape, b B) (*Tensor[T, B], error) {
	if n := shape.NumElements(); n != len(data) {
		return nil, fmt.Errorf("shape %v holds %d elements, got %d", shape, n, len(data))
	}
	t, err := alloc[T](shape, b)
	if err != nil {
		return nil, err
	}
	copy(t.Data(), data)
	return t, nil
}

func alloc[T DType, B Backend](shape Shape, b B) (*Tensor[T, B], error) {
	raw, err := NewRaw(shape, dataTypeOf[T](), b.Device())
	if err != nil {
		return nil, err
	}
	return New[T](raw, b), nil
}

func (t *Tensor[T, B]) Shape() Shape     { return t.raw.Shape() }
func (t *Tensor[T, B]) DType() DataType  { return t.raw.DType() }
func (t *Tensor[T, B]) Device() Device   { return t.raw.Device() }
func (t *Tensor[T, B]) NumElements() int { return t.raw.NumElements() }
func (t *Tensor[T, B]) Raw() *RawTensor  { return t.raw }
func (t *Tensor[T, B]) Backend() B       { return t.backend }
func (t *Tensor[T, B]) String() string   { return fmt.Sprintf("Tensor%v[%s]", t.Shape(), t.DType()) }

// Data is a zero-copy view of the elements; writes go to the tensor.
func (t *Tensor[T, B]) Data() []T { return view[T](t.raw) }

// At returns the element at the given multi-index. It panics when the index
// is out of range.
func (t *Tensor[T, B]) At(idx ...int) T { return t.Data()[t.offset(idx)] }

// Set stores v at the given multi-index.
func (t *Tensor[T, B]) Set(v T, idx ...int) { t.Data()[t.offset(idx)] = v }

func (t *Tensor[T, B]) offset(idx []int) int {
	shape, strides := t.Shape(), t.raw.Strides()
	if len(idx) != len(shape) {
		panic(fmt.Sprintf("tensor %v indexed with %d indices", shape, len(idx)))
	}
	off := 0
	for axis, i := range idx {
		if i < 0 || i >= shape[axis] {
			panic(fmt.Sprintf("index %d out of range for axis %d of %v", i, axis, shape))
		}
		off += i * strides[axis]
	}
	return off
}

// WithBackend rebinds t to backend c, sharing the buffer.
func WithBackend[T DType, B Backend, C Backend](t *Tensor[T, B], c C) *Tensor[T, C] {
	return New[T](t.raw, c)
}
