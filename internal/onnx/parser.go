package onnx

import (
	"fmt"
	"os"
)

// ParseFile parses an ONNX model from file.
//
//nolint:gosec // G304: Path is provided by user, file inclusion is intentional for ONNX model loading
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes. Unknown fields are skipped.
func Parse(data []byte) (*ModelProto, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to parse model: empty input")
	}
	model := &ModelProto{}
	if err := readModelProto(data, model); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return model, nil
}

func readModelProto(data []byte, m *ModelProto) error {
	return eachField(data, func(f field) error {
		var err error
		switch f.num {
		case 1:
			m.IRVersion, err = f.int64()
		case 2:
			m.ProducerName, err = f.string()
		case 3:
			m.ProducerVersion, err = f.string()
		case 4:
			m.Domain, err = f.string()
		case 5:
			m.ModelVersion, err = f.int64()
		case 6:
			m.DocString, err = f.string()
		case 7:
			var b []byte
			if b, err = f.message(); err == nil {
				m.Graph = &GraphProto{}
				err = readGraphProto(b, m.Graph)
			}
		case 8:
			var b []byte
			if b, err = f.message(); err == nil {
				var op OperatorSetID
				if err = readOperatorSetID(b, &op); err == nil {
					m.OpsetImport = append(m.OpsetImport, op)
				}
			}
		case 14:
			var b []byte
			if b, err = f.message(); err == nil {
				var e StringStringEntry
				if err = readStringStringEntry(b, &e); err == nil {
					m.MetadataProps = append(m.MetadataProps, e)
				}
			}
		}
		return err
	})
}

func readGraphProto(data []byte, g *GraphProto) error {
	return eachField(data, func(f field) error {
		var err error
		switch f.num {
		case 1:
			var b []byte
			if b, err = f.message(); err == nil {
				var n NodeProto
				if err = readNodeProto(b, &n); err == nil {
					g.Nodes = append(g.Nodes, n)
				}
			}
		case 2:
			g.Name, err = f.string()
		case 5:
			var b []byte
			if b, err = f.message(); err == nil {
				var t TensorProto
				if err = readTensorProto(b, &t); err == nil {
					g.Initializers = append(g.Initializers, t)
				}
			}
		case 10:
			g.DocString, err = f.string()
		case 11, 12, 13:
			var b []byte
			if b, err = f.message(); err == nil {
				var v ValueInfoProto
				if err = readValueInfoProto(b, &v); err == nil {
					switch f.num {
					case 11:
						g.Inputs = append(g.Inputs, v)
					case 12:
						g.Outputs = append(g.Outputs, v)
					default:
						g.ValueInfo = append(g.ValueInfo, v)
					}
				}
			}
		}
		return err
	})
}

func readNodeProto(data []byte, n *NodeProto) error {
	return eachField(data, func(f field) error {
		var err error
		switch f.num {
		case 1:
			var s string
			if s, err = f.string(); err == nil {
				n.Inputs = append(n.Inputs, s)
			}
		case 2:
			var s string
			if s, err = f.string(); err == nil {
				n.Outputs = append(n.Outputs, s)
			}
		case 3:
			n.Name, err = f.string()
		case 4:
			n.OpType, err = f.string()
		case 5:
			var b []byte
			if b, err = f.message(); err == nil {
				var a AttributeProto
				if err = readAttributeProto(b, &a); err == nil {
					n.Attributes = append(n.Attributes, a)
				}
			}
		case 6:
			n.DocString, err = f.string()
		case 7:
			n.Domain, err = f.string()
		}
		return err
	})
}

func readTensorProto(data []byte, t *TensorProto) error {
	return eachField(data, func(f field) error {
		var err error
		switch f.num {
		case 1:
			t.Dims, err = f.appendInt64s(t.Dims)
		case 2:
			t.DataType, err = f.int32()
		case 4:
			t.FloatData, err = f.appendFloat32s(t.FloatData)
		case 5:
			t.Int32Data, err = f.appendInt32s(t.Int32Data)
		case 7:
			t.Int64Data, err = f.appendInt64s(t.Int64Data)
		case 8:
			t.Name, err = f.string()
		case 9:
			t.RawData, err = f.bytes()
		case 12:
			t.DocString, err = f.string()
		}
		return err
	})
}

func readValueInfoProto(data []byte, v *ValueInfoProto) error {
	return eachField(data, func(f field) error {
		var err error
		switch f.num {
		case 1:
			v.Name, err = f.string()
		case 2:
			var b []byte
			if b, err = f.message(); err == nil {
				v.Type = &TypeProto{}
				err = readTypeProto(b, v.Type)
			}
		case 3:
			v.DocString, err = f.string()
		}
		return err
	})
}

func readTypeProto(data []byte, t *TypeProto) error {
	return eachField(data, func(f field) error {
		if f.num != 1 {
			return nil
		}
		b, err := f.message()
		if err != nil {
			return err
		}
		t.TensorType = &TensorTypeProto{}
		return readTensorTypeProto(b, t.TensorType)
	})
}

func readTensorTypeProto(data []byte, t *TensorTypeProto) error {
	return eachField(data, func(f field) error {
		var err error
		switch f.num {
		case 1:
			t.ElemType, err = f.int32()
		case 2:
			var b []byte
			if b, err = f.message(); err == nil {
				t.Shape = &TensorShapeProto{}
				err = readTensorShapeProto(b, t.Shape)
			}
		}
		return err
	})
}

func readTensorShapeProto(data []byte, s *TensorShapeProto) error {
	return eachField(data, func(f field) error {
		if f.num != 1 {
			return nil
		}
		b, err := f.message()
		if err != nil {
			return err
		}
		var d DimensionProto
		if err := readDimensionProto(b, &d); err != nil {
			return err
		}
		s.Dims = append(s.Dims, d)
		return nil
	})
}

func readDimensionProto(data []byte, d *DimensionProto) error {
	return eachField(data, func(f field) error {
		var err error
		switch f.num {
		case 1:
			d.DimValue, err = f.int64()
		case 2:
			d.DimParam, err = f.string()
		}
		return err
	})
}

func readAttributeProto(data []byte, a *AttributeProto) error {
	return eachField(data, func(f field) error {
		var err error
		switch f.num {
		case 1:
			a.Name, err = f.string()
		case 2:
			a.F, err = f.float32()
		case 3:
			a.I, err = f.int64()
		case 4:
			a.S, err = f.bytes()
		case 5:
			var b []byte
			if b, err = f.message(); err == nil {
				a.T = &TensorProto{}
				err = readTensorProto(b, a.T)
			}
		case 6:
			var b []byte
			if b, err = f.message(); err == nil {
				a.G = &GraphProto{}
				err = readGraphProto(b, a.G)
			}
		case 7:
			a.Floats, err = f.appendFloat32s(a.Floats)
		case 8:
			a.Ints, err = f.appendInt64s(a.Ints)
		case 9:
			var s []byte
			if s, err = f.bytes(); err == nil {
				a.Strings = append(a.Strings, s)
			}
		case 10:
			var b []byte
			if b, err = f.message(); err == nil {
				var t TensorProto
				if err = readTensorProto(b, &t); err == nil {
					a.Tensors = append(a.Tensors, t)
				}
			}
		case 11:
			var b []byte
			if b, err = f.message(); err == nil {
				var g GraphProto
				if err = readGraphProto(b, &g); err == nil {
					a.Graphs = append(a.Graphs, g)
				}
			}
		case 13:
			a.DocString, err = f.string()
		case 20:
			a.Type, err = f.int32()
		}
		return err
	})
}

func readOperatorSetID(data []byte, o *OperatorSetID) error {
	return eachField(data, func(f field) error {
		var err error
		switch f.num {
		case 1:
			o.Domain, err = f.string()
		case 2:
			o.Version, err = f.int64()
		}
		return err
	})
}

func readStringStringEntry(data []byte, e *StringStringEntry) error {
	return eachField(data, func(f field) error {
		var err error
		switch f.num {
		case 1:
			e.Key, err = f.string()
		case 2:
			e.Value, err = f.string()
		}
		return err
	})
}
