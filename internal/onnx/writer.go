package onnx

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal encodes m in the protobuf wire format. Fields are written in field
// number order, so equal models always encode to equal bytes.
func Marshal(m *ModelProto) ([]byte, error) {
	if m == nil {
		return nil, errors.New("nil model")
	}
	if m.Graph == nil {
		return nil, errors.New("model has no graph")
	}
	b, err := appendModelProto(make([]byte, 0, m.Graph.rawSize()+4096), m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model: %w", err)
	}
	return b, nil
}

// WriteFile encodes m and replaces path with the result. The bytes go to a
// temporary file in the same directory first, so readers never see a
// partial model. It returns the number of bytes written.
func WriteFile(path string, m *ModelProto) (int, error) {
	data, err := Marshal(m)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // the write error wins
		return 0, fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // the sync error wins
		return 0, fmt.Errorf("failed to sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil { //nolint:gosec // model files are meant to be shared
		return 0, fmt.Errorf("failed to chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return len(data), nil
}

// rawSize is the payload of all initializers, used to size the output buffer.
func (g *GraphProto) rawSize() int {
	n := 0
	for i := range g.Initializers {
		n += len(g.Initializers[i].RawData) + 4*len(g.Initializers[i].FloatData)
	}
	return n
}

func appendModelProto(b []byte, m *ModelProto) ([]byte, error) {
	var err error
	if m.IRVersion != 0 {
		b = appendVarintField(b, 1, uint64(m.IRVersion))
	}
	b = appendOptString(b, 2, m.ProducerName)
	b = appendOptString(b, 3, m.ProducerVersion)
	b = appendOptString(b, 4, m.Domain)
	if m.ModelVersion != 0 {
		b = appendVarintField(b, 5, uint64(m.ModelVersion))
	}
	b = appendOptString(b, 6, m.DocString)
	if b, err = appendMessageField(b, 7, func(b []byte) ([]byte, error) {
		return appendGraphProto(b, m.Graph)
	}); err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}
	for _, op := range m.OpsetImport {
		msg := appendOptString(nil, 1, op.Domain)
		msg = appendVarintField(msg, 2, uint64(op.Version))
		b = appendBytesField(b, 8, msg)
	}
	for _, e := range m.MetadataProps {
		msg := appendStringField(nil, 1, e.Key)
		msg = appendStringField(msg, 2, e.Value)
		b = appendBytesField(b, 14, msg)
	}
	return b, nil
}

func appendGraphProto(b []byte, g *GraphProto) ([]byte, error) {
	var err error
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if b, err = appendMessageField(b, 1, func(b []byte) ([]byte, error) {
			return appendNodeProto(b, n)
		}); err != nil {
			return nil, fmt.Errorf("node %q: %w", n.Name, err)
		}
	}
	b = appendOptString(b, 2, g.Name)
	for i := range g.Initializers {
		b = appendBytesField(b, 5, appendTensorProto(nil, &g.Initializers[i]))
	}
	b = appendOptString(b, 10, g.DocString)
	for _, group := range []struct {
		num    protowire.Number
		values []ValueInfoProto
	}{{11, g.Inputs}, {12, g.Outputs}, {13, g.ValueInfo}} {
		for i := range group.values {
			b = appendBytesField(b, group.num, appendValueInfoProto(nil, &group.values[i]))
		}
	}
	return b, nil
}

func appendNodeProto(b []byte, n *NodeProto) ([]byte, error) {
	var err error
	// Empty names are kept: they mark omitted optional inputs.
	for _, in := range n.Inputs {
		b = appendStringField(b, 1, in)
	}
	for _, out := range n.Outputs {
		b = appendStringField(b, 2, out)
	}
	b = appendOptString(b, 3, n.Name)
	b = appendStringField(b, 4, n.OpType)
	for i := range n.Attributes {
		a := &n.Attributes[i]
		if b, err = appendMessageField(b, 5, func(b []byte) ([]byte, error) {
			return appendAttributeProto(b, a)
		}); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
	}
	b = appendOptString(b, 6, n.DocString)
	b = appendOptString(b, 7, n.Domain)
	return b, nil
}

func appendTensorProto(b []byte, t *TensorProto) []byte {
	for _, d := range t.Dims {
		b = appendVarintField(b, 1, uint64(d))
	}
	b = appendVarintField(b, 2, uint64(t.DataType))
	if len(t.FloatData) > 0 {
		packed := make([]byte, 0, 4*len(t.FloatData))
		for _, v := range t.FloatData {
			packed = protowire.AppendFixed32(packed, math.Float32bits(v))
		}
		b = appendBytesField(b, 4, packed)
	}
	if len(t.Int32Data) > 0 {
		var packed []byte
		for _, v := range t.Int32Data {
			packed = protowire.AppendVarint(packed, uint64(int64(v)))
		}
		b = appendBytesField(b, 5, packed)
	}
	if len(t.Int64Data) > 0 {
		var packed []byte
		for _, v := range t.Int64Data {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		b = appendBytesField(b, 7, packed)
	}
	b = appendOptString(b, 8, t.Name)
	if t.RawData != nil {
		b = appendBytesField(b, 9, t.RawData)
	}
	b = appendOptString(b, 12, t.DocString)
	return b
}

func appendValueInfoProto(b []byte, v *ValueInfoProto) []byte {
	b = appendStringField(b, 1, v.Name)
	if v.Type != nil {
		var typ []byte
		if tt := v.Type.TensorType; tt != nil {
			msg := appendVarintField(nil, 1, uint64(tt.ElemType))
			if tt.Shape != nil {
				var shape []byte
				for _, d := range tt.Shape.Dims {
					var dim []byte
					if d.DimParam != "" {
						dim = appendStringField(dim, 2, d.DimParam)
					} else {
						dim = appendVarintField(dim, 1, uint64(d.DimValue))
					}
					shape = appendBytesField(shape, 1, dim)
				}
				msg = appendBytesField(msg, 2, shape)
			}
			typ = appendBytesField(typ, 1, msg)
		}
		b = appendBytesField(b, 2, typ)
	}
	b = appendOptString(b, 3, v.DocString)
	return b
}

// appendAttributeProto writes the name, the value field selected by Type and
// the type itself. The value is written even when it is zero.
func appendAttributeProto(b []byte, a *AttributeProto) ([]byte, error) {
	var err error
	b = appendStringField(b, 1, a.Name)
	switch a.Type {
	case AttributeProtoFloat:
		b = appendFloat32Field(b, 2, a.F)
	case AttributeProtoInt:
		b = appendVarintField(b, 3, uint64(a.I))
	case AttributeProtoString:
		b = appendBytesField(b, 4, a.S)
	case AttributeProtoTensor:
		if a.T == nil {
			return nil, errors.New("tensor attribute without a tensor")
		}
		b = appendBytesField(b, 5, appendTensorProto(nil, a.T))
	case AttributeProtoGraph:
		if a.G == nil {
			return nil, errors.New("graph attribute without a graph")
		}
		if b, err = appendMessageField(b, 6, func(b []byte) ([]byte, error) {
			return appendGraphProto(b, a.G)
		}); err != nil {
			return nil, err
		}
	case AttributeProtoFloats:
		for _, v := range a.Floats {
			b = appendFloat32Field(b, 7, v)
		}
	case AttributeProtoInts:
		for _, v := range a.Ints {
			b = appendVarintField(b, 8, uint64(v))
		}
	case AttributeProtoStrings:
		for _, s := range a.Strings {
			b = appendBytesField(b, 9, s)
		}
	case AttributeProtoTensors:
		for i := range a.Tensors {
			b = appendBytesField(b, 10, appendTensorProto(nil, &a.Tensors[i]))
		}
	case AttributeProtoGraphs:
		for i := range a.Graphs {
			g := &a.Graphs[i]
			if b, err = appendMessageField(b, 11, func(b []byte) ([]byte, error) {
				return appendGraphProto(b, g)
			}); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported attribute type %d", a.Type)
	}
	b = appendOptString(b, 13, a.DocString)
	b = appendVarintField(b, 20, uint64(a.Type))
	return b, nil
}
