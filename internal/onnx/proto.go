package onnx

import (
	"fmt"

	"github.com/born-ml/zooexport/internal/tensor"
)

// The message types below mirror onnx.proto. Only the fields zooexport reads
// or writes are present; wire.go maps them to their field numbers.

type ModelProto struct {
	IRVersion       int64
	OpsetImport     []OperatorSetID
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	Graph           *GraphProto
	MetadataProps   []StringStringEntry
}

type GraphProto struct {
	Name         string
	Nodes        []NodeProto
	Inputs       []ValueInfoProto
	Outputs      []ValueInfoProto
	Initializers []TensorProto
	DocString    string
	ValueInfo    []ValueInfoProto // shapes of intermediate values
}

type NodeProto struct {
	Name       string
	OpType     string
	Inputs     []string
	Outputs    []string
	Attributes []AttributeProto
	Domain     string // "" is ai.onnx
	DocString  string
}

// TensorProto carries data in RawData (little-endian) or, from some
// writers, in one of the typed repeated fields.
type TensorProto struct {
	Name      string
	DataType  int32
	Dims      []int64
	RawData   []byte
	FloatData []float32
	Int32Data []int32
	Int64Data []int64
	DocString string
}

type ValueInfoProto struct {
	Name      string
	Type      *TypeProto
	DocString string
}

// TypeProto only models the tensor_type arm of the oneof.
type TypeProto struct {
	TensorType *TensorTypeProto
}

type TensorTypeProto struct {
	ElemType int32
	Shape    *TensorShapeProto
}

type TensorShapeProto struct {
	Dims []DimensionProto
}

// DimensionProto holds either a fixed size or a symbolic name.
type DimensionProto struct {
	DimValue int64
	DimParam string
}

type AttributeProto struct {
	Name      string
	Type      int32
	F         float32
	I         int64
	S         []byte
	T         *TensorProto
	G         *GraphProto
	Floats    []float32
	Ints      []int64
	Strings   [][]byte
	Tensors   []TensorProto
	Graphs    []GraphProto
	DocString string
}

type OperatorSetID struct {
	Domain  string
	Version int64
}

type StringStringEntry struct {
	Key   string
	Value string
}

// TensorProto.DataType values.
const (
	TensorProtoUndefined = iota
	TensorProtoFloat
	TensorProtoUint8
	TensorProtoInt8
	TensorProtoUint16
	TensorProtoInt16
	TensorProtoInt32
	TensorProtoInt64
	TensorProtoString
	TensorProtoBool
	TensorProtoFloat16
	TensorProtoDouble
	TensorProtoUint32
	TensorProtoUint64
	TensorProtoComplex64
	TensorProtoComplex128
	TensorProtoBfloat16
)

var dataTypeNames = [...]string{
	TensorProtoFloat:      "float",
	TensorProtoUint8:      "uint8",
	TensorProtoInt8:       "int8",
	TensorProtoUint16:     "uint16",
	TensorProtoInt16:      "int16",
	TensorProtoInt32:      "int32",
	TensorProtoInt64:      "int64",
	TensorProtoString:     "string",
	TensorProtoBool:       "bool",
	TensorProtoFloat16:    "float16",
	TensorProtoDouble:     "double",
	TensorProtoUint32:     "uint32",
	TensorProtoUint64:     "uint64",
	TensorProtoComplex64:  "complex64",
	TensorProtoComplex128: "complex128",
	TensorProtoBfloat16:   "bfloat16",
}

// AttributeProto.Type values.
const (
	AttributeProtoUndefined = iota
	AttributeProtoFloat
	AttributeProtoInt
	AttributeProtoString
	AttributeProtoTensor
	AttributeProtoGraph
	AttributeProtoFloats
	AttributeProtoInts
	AttributeProtoStrings
	AttributeProtoTensors
	AttributeProtoGraphs
)

// Versions written by the exporter.
const (
	IRVersion    = 8
	DefaultOpset = 17
	MinOpset     = 13 // Gemm, Flatten and Reshape as emitted here
	MaxOpset     = 21
)

// IRVersionFor returns the lowest IR version that can carry the default
// domain at opset.
func IRVersionFor(opset int64) int64 {
	switch {
	case opset >= 21:
		return 10
	case opset >= 19:
		return 9
	default:
		return IRVersion
	}
}

// AttrInt returns an INT attribute.
func AttrInt(name string, v int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoInt, I: v}
}

// AttrInts returns an INTS attribute.
func AttrInts(name string, v ...int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoInts, Ints: v}
}

// AttrFloat returns a FLOAT attribute.
func AttrFloat(name string, v float32) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoFloat, F: v}
}

// Attr looks up a node attribute by name.
func (n *NodeProto) Attr(name string) (*AttributeProto, bool) {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i], true
		}
	}
	return nil, false
}

// onnxTypes pairs the element types tensor supports with their codes.
var onnxTypes = []struct {
	dtype tensor.DataType
	code  int32
}{
	{tensor.Float32, TensorProtoFloat},
	{tensor.Float64, TensorProtoDouble},
	{tensor.Int32, TensorProtoInt32},
	{tensor.Int64, TensorProtoInt64},
	{tensor.Uint8, TensorProtoUint8},
	{tensor.Bool, TensorProtoBool},
}

// DataTypeOf maps a tensor dtype to its TensorProto.DataType.
func DataTypeOf(dt tensor.DataType) (int32, error) {
	for _, t := range onnxTypes {
		if t.dtype == dt {
			return t.code, nil
		}
	}
	return TensorProtoUndefined, fmt.Errorf("no onnx data type for %s", dt)
}

// TensorFromRaw encodes raw as an initializer. The data goes to raw_data in
// little-endian order.
func TensorFromRaw(name string, raw *tensor.RawTensor) (TensorProto, error) {
	dt, err := DataTypeOf(raw.DType())
	if err != nil {
		return TensorProto{}, fmt.Errorf("%s: %w", name, err)
	}
	return TensorProto{
		Name:     name,
		DataType: dt,
		Dims:     raw.Shape().Int64s(),
		RawData:  raw.LittleEndianBytes(),
	}, nil
}

// decodeTensor is the inverse of TensorFromRaw. It also accepts the typed
// float_data/int32_data/int64_data fields other writers use.
func decodeTensor(t *TensorProto) (*tensor.RawTensor, error) {
	dtype, ok := tensorTypeOf(t.DataType)
	if !ok {
		return nil, fmt.Errorf("unsupported data type %s", DataTypeName(t.DataType))
	}
	shape := tensor.ShapeFromInt64s(t.Dims)
	if len(t.RawData) > 0 {
		return tensor.NewRawFromBytes(shape, dtype, t.RawData)
	}

	out, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		return nil, err
	}
	var got int
	switch dtype {
	case tensor.Float32:
		got = copy(out.AsFloat32(), t.FloatData)
	case tensor.Int32:
		got = copy(out.AsInt32(), t.Int32Data)
	case tensor.Int64:
		got = copy(out.AsInt64(), t.Int64Data)
	}
	if want := shape.NumElements(); got != want {
		return nil, fmt.Errorf("%s tensor of shape %v has %d of %d elements", dtype, shape, got, want)
	}
	return out, nil
}

func tensorTypeOf(code int32) (tensor.DataType, bool) {
	for _, t := range onnxTypes {
		if t.code == code {
			return t.dtype, true
		}
	}
	return 0, false
}

// TensorValueInfo describes a tensor value with a static shape.
func TensorValueInfo(name string, elemType int32, dims []int64) ValueInfoProto {
	shape := &TensorShapeProto{Dims: make([]DimensionProto, len(dims))}
	for i, d := range dims {
		shape.Dims[i] = DimensionProto{DimValue: d}
	}
	return ValueInfoProto{
		Name: name,
		Type: &TypeProto{TensorType: &TensorTypeProto{ElemType: elemType, Shape: shape}},
	}
}

// ElemType returns the element type, or TensorProtoUndefined when the value
// is not a tensor.
func (v *ValueInfoProto) ElemType() int32 {
	if v.Type == nil || v.Type.TensorType == nil {
		return TensorProtoUndefined
	}
	return v.Type.TensorType.ElemType
}

// Dims returns the static dimensions. Symbolic dimensions are reported as -1.
func (v *ValueInfoProto) Dims() []int64 {
	if v.Type == nil || v.Type.TensorType == nil || v.Type.TensorType.Shape == nil {
		return nil
	}
	dims := make([]int64, len(v.Type.TensorType.Shape.Dims))
	for i, d := range v.Type.TensorType.Shape.Dims {
		if d.DimParam != "" {
			dims[i] = -1
			continue
		}
		dims[i] = d.DimValue
	}
	return dims
}

// DataTypeName returns the ONNX spelling of a TensorProto.DataType.
func DataTypeName(dt int32) string {
	if dt > 0 && int(dt) < len(dataTypeNames) {
		return dataTypeNames[dt]
	}
	return fmt.Sprintf("type(%d)", dt)
}
