package onnx

import (
	"strconv"
	"strings"
)

// ValueSummary is a graph input or output as inspect prints it.
type ValueSummary struct {
	Name     string
	ElemType string
	Dims     []int64 // -1 for symbolic dims
}

// String renders "name elem[d0,d1,...]" with "?" for symbolic dims.
func (v ValueSummary) String() string {
	var sb strings.Builder
	sb.WriteString(v.Name + " " + v.ElemType + "[")
	for i, d := range v.Dims {
		if i > 0 {
			sb.WriteByte(',')
		}
		if d < 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteString(strconv.FormatInt(d, 10))
		}
	}
	sb.WriteByte(']')
	return sb.String()
}

// Summarize describes a value info.
func Summarize(v *ValueInfoProto) ValueSummary {
	return ValueSummary{Name: v.Name, ElemType: DataTypeName(v.ElemType()), Dims: v.Dims()}
}

// ModelInfo is what inspect reports about a model file. Computing it needs
// no operator support.
type ModelInfo struct {
	IRVersion       int64
	OpsetVersion    int64
	ProducerName    string
	ProducerVersion string
	GraphName       string
	Inputs          []ValueSummary // initializers listed as inputs are skipped
	Outputs         []ValueSummary
	NodeCount       int
	WeightCount     int
	ParamCount      int64 // elements across all initializers
	OpCounts        map[string]int
	Metadata        []StringStringEntry
}

// GetModelInfo parses the file at path and summarizes it.
func GetModelInfo(path string) (*ModelInfo, error) {
	m, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return InfoFromProto(m), nil
}

func InfoFromProto(m *ModelProto) *ModelInfo {
	info := &ModelInfo{
		IRVersion:       m.IRVersion,
		OpsetVersion:    defaultOpsetVersion(m),
		ProducerName:    m.ProducerName,
		ProducerVersion: m.ProducerVersion,
		OpCounts:        map[string]int{},
		Metadata:        m.MetadataProps,
	}
	g := m.Graph
	if g == nil {
		return info
	}
	info.GraphName = g.Name
	info.NodeCount = len(g.Nodes)
	info.WeightCount = len(g.Initializers)

	weights := make(map[string]struct{}, len(g.Initializers))
	for _, w := range g.Initializers {
		weights[w.Name] = struct{}{}
		size := int64(1)
		for _, d := range w.Dims {
			size *= d
		}
		info.ParamCount += size
	}
	for i, in := range g.Inputs {
		if _, ok := weights[in.Name]; !ok {
			info.Inputs = append(info.Inputs, Summarize(&g.Inputs[i]))
		}
	}
	for i := range g.Outputs {
		info.Outputs = append(info.Outputs, Summarize(&g.Outputs[i]))
	}
	for _, n := range g.Nodes {
		info.OpCounts[n.OpType]++
	}
	return info
}

func (i *ModelInfo) InputNames() []string  { return summaryNames(i.Inputs) }
func (i *ModelInfo) OutputNames() []string { return summaryNames(i.Outputs) }

func summaryNames(vs []ValueSummary) []string {
	names := make([]string, len(vs))
	for k, v := range vs {
		names[k] = v.Name
	}
	return names
}
