// Package tensor provides the core tensor types used by the model, the tracer
// and the ONNX codec.
package tensor

import "fmt"

// DType is the constraint on Tensor element types.
type DType interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~uint8 | ~bool
}

// DataType is the runtime element type of a RawTensor.
type DataType int

// Element types.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Uint8
	Bool
)

var dataTypes = [...]struct {
	name, short string
	size        int
}{
	Float32: {"float32", "F32", 4},
	Float64: {"float64", "F64", 8},
	Int32:   {"int32", "I32", 4},
	Int64:   {"int64", "I64", 8},
	Uint8:   {"uint8", "U8", 1},
	Bool:    {"bool", "BOOL", 1},
}

func (dt DataType) valid() bool { return dt >= 0 && int(dt) < len(dataTypes) }

// Size returns the element size in bytes. It panics on an unknown type.
func (dt DataType) Size() int {
	if !dt.valid() {
		panic(fmt.Sprintf("unknown data type %d", int(dt)))
	}
	return dataTypes[dt].size
}

func (dt DataType) String() string {
	if !dt.valid() {
		return "unknown"
	}
	return dataTypes[dt].name
}

// ParseDataType accepts a long name ("float32") or a safetensors code ("F32").
func ParseDataType(name string) (DataType, error) {
	for dt, info := range dataTypes {
		if name == info.name || name == info.short {
			return DataType(dt), nil
		}
	}
	return 0, fmt.Errorf("unsupported dtype %q", name)
}

// dataTypeOf returns the DataType matching T.
func dataTypeOf[T DType]() DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	default:
		return Bool
	}
}
