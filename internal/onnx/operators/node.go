package operators

// Node is the executor's view of an onnx NodeProto. It mirrors the fields
// handlers read so this package does not import onnx.
type Node struct {
	Name       string
	OpType     string
	Domain     string
	Inputs     []string
	Outputs    []string
	Attributes []Attribute
}

// Attribute is a decoded AttributeProto. Only the field matching Type is set.
type Attribute struct {
	Name   string
	Type   int32
	F      float32
	I      int64
	S      []byte
	Floats []float32
	Ints   []int64
}

func (n *Node) find(name string) *Attribute {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i]
		}
	}
	return nil
}

// IntAttr returns the INT attribute name, or def when absent.
func (n *Node) IntAttr(name string, def int64) int64 {
	if a := n.find(name); a != nil {
		return a.I
	}
	return def
}

// IntsAttr returns the INTS attribute name, or nil.
func (n *Node) IntsAttr(name string) []int64 {
	if a := n.find(name); a != nil {
		return a.Ints
	}
	return nil
}

// FloatAttr returns the FLOAT attribute name, or def when absent.
func (n *Node) FloatAttr(name string, def float32) float32 {
	if a := n.find(name); a != nil {
		return a.F
	}
	return def
}

// StringAttr returns the STRING attribute name, or def when absent.
func (n *Node) StringAttr(name, def string) string {
	if a := n.find(name); a != nil {
		return string(a.S)
	}
	return def
}
