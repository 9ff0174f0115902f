package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"unsafe"
)

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
)

// String returns a human-readable device name.
func (d Device) String() string {
	if d == CPU {
		return "CPU"
	}
	return "Unknown"
}

// tensorBuffer is storage shared between RawTensor views. A backend may
// write into it in place only while refs == 1.
type tensorBuffer struct {
	data []byte
	refs atomic.Int32
}

func newTensorBuffer(size int) *tensorBuffer {
	b := &tensorBuffer{data: make([]byte, size)}
	b.refs.Store(1)
	return b
}

func (b *tensorBuffer) retain() { b.refs.Add(1) }

func (b *tensorBuffer) drop() {
	if b.refs.Add(-1) == 0 {
		b.data = nil
	}
}

// RawTensor is the low-level, untyped tensor representation.
type RawTensor struct {
	buffer *tensorBuffer
	shape  Shape
	stride []int
	dtype  DataType
	device Device
}

// NewRaw allocates a zero-filled RawTensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	size, err := byteSize(shape, dtype)
	if err != nil {
		return nil, err
	}
	return &RawTensor{
		buffer: newTensorBuffer(size),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// byteSize is the buffer length shape needs at dtype. Shapes whose size
// does not fit in an int are rejected.
func byteSize(shape Shape, dtype DataType) (int, error) {
	if err := shape.Validate(); err != nil {
		return 0, fmt.Errorf("invalid shape: %w", err)
	}
	n, size := shape.NumElements(), dtype.Size()
	if n > math.MaxInt/size {
		return 0, fmt.Errorf("invalid shape: %v of %s overflows the byte size", shape, dtype)
	}
	return n * size, nil
}

// NewRawFromBytes copies little-endian element bytes into a new RawTensor.
// This is the layout used by both safetensors and ONNX raw_data.
func NewRawFromBytes(shape Shape, dtype DataType, data []byte) (*RawTensor, error) {
	want, err := byteSize(shape, dtype)
	if err != nil {
		return nil, err
	}
	if len(data) != want {
		return nil, fmt.Errorf("shape %v of %s needs %d bytes, got %d", shape, dtype, want, len(data))
	}
	raw, err := NewRaw(shape, dtype, CPU)
	if err != nil {
		return nil, err
	}
	if dtype == Float32 {
		// Decode explicitly so the result is correct on big-endian hosts too.
		dst := raw.AsFloat32()
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return raw, nil
	}
	copy(raw.buffer.data, data)
	return raw, nil
}

// NewRawFloat32 copies values into a new float32 RawTensor.
func NewRawFloat32(shape Shape, values []float32) (*RawTensor, error) {
	if shape.NumElements() != len(values) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(values))
	}
	raw, err := NewRaw(shape, Float32, CPU)
	if err != nil {
		return nil, err
	}
	copy(raw.AsFloat32(), values)
	return raw, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's row-major strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.buffer.data
}

// LittleEndianBytes returns the element data in little-endian byte order,
// the encoding ONNX raw_data and safetensors expect.
func (r *RawTensor) LittleEndianBytes() []byte {
	if r.dtype != Float32 {
		return append([]byte(nil), r.buffer.data...)
	}
	src := r.AsFloat32()
	out := make([]byte, len(src)*4)
	for i, v := range src {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// view reinterprets the buffer as []T, checking the element type first.
func view[T DType](r *RawTensor) []T {
	if want := dataTypeOf[T](); r.dtype != want {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", r.dtype, want))
	}
	n := r.NumElements()
	if n == 0 {
		return nil
	}
	//nolint:gosec // the buffer holds exactly n elements of T
	return unsafe.Slice((*T)(unsafe.Pointer(&r.buffer.data[0])), n)
}

// AsFloat32 views a Float32 tensor's data. Other types panic.
func (r *RawTensor) AsFloat32() []float32 { return view[float32](r) }

// AsFloat64 views a Float64 tensor's data.
func (r *RawTensor) AsFloat64() []float64 { return view[float64](r) }

// AsInt32 views an Int32 tensor's data.
func (r *RawTensor) AsInt32() []int32 { return view[int32](r) }

// AsInt64 views an Int64 tensor's data.
func (r *RawTensor) AsInt64() []int64 { return view[int64](r) }

// AsUint8 views a Uint8 tensor's data.
func (r *RawTensor) AsUint8() []uint8 { return view[uint8](r) }

// AsBool views a Bool tensor's data.
func (r *RawTensor) AsBool() []bool { return view[bool](r) }

// Clone returns a view sharing r's buffer.
func (r *RawTensor) Clone() *RawTensor {
	r.buffer.retain()
	return r.withBuffer(r.buffer)
}

// DeepCopy returns a RawTensor with its own copy of the data.
func (r *RawTensor) DeepCopy() *RawTensor {
	buf := newTensorBuffer(len(r.buffer.data))
	copy(buf.data, r.buffer.data)
	return r.withBuffer(buf)
}

func (r *RawTensor) withBuffer(buf *tensorBuffer) *RawTensor {
	return &RawTensor{
		buffer: buf,
		shape:  r.shape.Clone(),
		stride: slices.Clone(r.stride),
		dtype:  r.dtype,
		device: r.device,
	}
}

// WithShape returns a view of the same buffer with a different shape.
// The element count must match.
func (r *RawTensor) WithShape(shape Shape) (*RawTensor, error) {
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("cannot view %v as %v: element count differs", r.shape, shape)
	}
	view := r.Clone()
	view.shape = shape.Clone()
	view.stride = shape.ComputeStrides()
	return view, nil
}

// Release decrements the reference count and drops the data when it reaches 0.
func (r *RawTensor) Release() {
	r.buffer.drop()
}

// IsUnique returns true if this tensor is the only reference to the buffer.
// When true, backends can perform inplace operations.
func (r *RawTensor) IsUnique() bool {
	return r.buffer.refs.Load() == 1
}

// ForceNonUnique temporarily increases refCount to prevent inplace modifications.
// The returned cleanup function MUST be called to restore refCount.
//
// The tracing backend relies on this: an inplace result would alias its
// input and collapse two graph values into one.
//
//	defer x.ForceNonUnique()()
//	y := backend.Add(x, skip) // x is left untouched
func (r *RawTensor) ForceNonUnique() func() {
	r.buffer.retain()
	return func() {
		r.buffer.drop()
	}
}
