package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// sampleModel exercises every field the writer emits.
func sampleModel() *ModelProto {
	return &ModelProto{
		IRVersion:       IRVersion,
		ProducerName:    "zooexport",
		ProducerVersion: "0.1.0",
		Domain:          "ai.zooexport",
		ModelVersion:    3,
		DocString:       "test model",
		OpsetImport:     []OperatorSetID{{Domain: "", Version: DefaultOpset}},
		MetadataProps: []StringStringEntry{
			{Key: "architecture", Value: "resnet18"},
			{Key: "weights", Value: "none"},
		},
		Graph: &GraphProto{
			Name:      "main_graph",
			DocString: "graph doc",
			Nodes: []NodeProto{
				{
					Name:    "/conv1/Conv",
					OpType:  "Conv",
					Inputs:  []string{"input.0", "conv1.weight", ""},
					Outputs: []string{"/conv1/Conv_output_0"},
					Attributes: []AttributeProto{
						AttrInts("dilations", 1, 1),
						AttrInt("group", 1),
						AttrInts("kernel_shape", 1, 1),
						AttrInts("pads", 0, 0, 0, 0),
						AttrInts("strides", 1, 1),
						AttrFloat("epsilon", 0), // zero values are still written
						{Name: "mode", Type: AttributeProtoString, S: []byte("constant")},
						{Name: "scales", Type: AttributeProtoFloats, Floats: []float32{0.5, 2}},
						{Name: "names", Type: AttributeProtoStrings, Strings: [][]byte{[]byte("a"), []byte("b")}},
						{Name: "value", Type: AttributeProtoTensor, T: &TensorProto{
							Name: "v", DataType: TensorProtoInt64, Dims: []int64{2}, Int64Data: []int64{-1, 7},
						}},
					},
					DocString: "node doc",
				},
				{
					Name:    "/Identity",
					OpType:  "Identity",
					Inputs:  []string{"/conv1/Conv_output_0"},
					Outputs: []string{"output.0"},
					Domain:  "",
				},
			},
			Initializers: []TensorProto{
				{Name: "conv1.weight", DataType: TensorProtoFloat, Dims: []int64{2, 3, 1, 1}, RawData: []byte{
					0, 0, 128, 63, 0, 0, 0, 64, 0, 0, 64, 64, 0, 0, 128, 64, 0, 0, 160, 64, 0, 0, 192, 64,
				}},
				{Name: "legacy", DataType: TensorProtoFloat, Dims: []int64{2}, FloatData: []float32{1.5, -2}, DocString: "typed"},
				{Name: "ints", DataType: TensorProtoInt32, Dims: []int64{3}, Int32Data: []int32{-3, 0, 9}},
			},
			Inputs: []ValueInfoProto{
				TensorValueInfo("input.0", TensorProtoFloat, []int64{1, 3, 4, 4}),
			},
			Outputs: []ValueInfoProto{
				{Name: "output.0", DocString: "logits", Type: &TypeProto{TensorType: &TensorTypeProto{
					ElemType: TensorProtoFloat,
					Shape: &TensorShapeProto{Dims: []DimensionProto{
						{DimParam: "batch"}, {DimValue: 2}, {DimValue: 4}, {DimValue: 4},
					}},
				}}},
			},
			ValueInfo: []ValueInfoProto{
				TensorValueInfo("/conv1/Conv_output_0", TensorProtoFloat, []int64{1, 2, 4, 4}),
			},
		},
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	want := sampleModel()

	data, err := Marshal(want)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	got, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMarshalDeterministic(t *testing.T) {
	a, err := Marshal(sampleModel())
	require.NoError(t, err)
	b, err := Marshal(sampleModel())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMarshalErrors(t *testing.T) {
	_, err := Marshal(nil)
	assert.Error(t, err)

	_, err = Marshal(&ModelProto{IRVersion: IRVersion})
	assert.ErrorContains(t, err, "no graph")

	m := sampleModel()
	m.Graph.Nodes[0].Attributes = append(m.Graph.Nodes[0].Attributes, AttributeProto{Name: "odd", Type: 99})
	_, err = Marshal(m)
	assert.ErrorContains(t, err, "unsupported attribute type 99")
}

// TestAttributeFieldNumbers pins the onnx.proto numbering of repeated
// attribute values, which readers such as onnxruntime depend on.
func TestAttributeFieldNumbers(t *testing.T) {
	b, err := appendAttributeProto(nil, &AttributeProto{Name: "pads", Type: AttributeProtoInts, Ints: []int64{1, 2}})
	require.NoError(t, err)

	var nums []protowire.Number
	require.NoError(t, eachField(b, func(f field) error {
		nums = append(nums, f.num)
		return nil
	}))
	assert.Equal(t, []protowire.Number{1, 8, 8, 20}, nums)
}

func TestParsePackedAndUnpacked(t *testing.T) {
	var packed []byte
	for _, v := range []int64{3, 3} {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	var attr []byte
	attr = appendStringField(attr, 1, "kernel_shape")
	attr = appendBytesField(attr, 8, packed)
	attr = appendVarintField(attr, 20, AttributeProtoInts)

	var node []byte
	node = appendStringField(node, 1, "x")
	node = appendStringField(node, 2, "y")
	node = appendStringField(node, 4, "MaxPool")
	node = appendBytesField(node, 5, attr)

	var graph []byte
	graph = appendBytesField(graph, 1, node)
	// An unknown field is skipped.
	graph = appendVarintField(graph, 99, 42)

	var model []byte
	model = appendVarintField(model, 1, 7)
	model = appendBytesField(model, 7, graph)

	m, err := Parse(model)
	require.NoError(t, err)
	require.Len(t, m.Graph.Nodes, 1)
	a, ok := m.Graph.Nodes[0].Attr("kernel_shape")
	require.True(t, ok)
	assert.Equal(t, []int64{3, 3}, a.Ints)
	assert.EqualValues(t, AttributeProtoInts, a.Type)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(nil)
	assert.ErrorContains(t, err, "empty input")

	// Truncated length-delimited field.
	_, err = Parse([]byte{0x3a, 0x10, 0x01})
	assert.Error(t, err)

	// ir_version sent as a string.
	_, err = Parse(appendStringField(nil, 1, "eight"))
	assert.ErrorContains(t, err, "wire type")
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))

	n, err := WriteFile(path, sampleModel())
	require.NoError(t, err)

	stat, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, n, stat.Size())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")

	m, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "main_graph", m.Graph.Name)
}

func TestWriteFileMissingDir(t *testing.T) {
	_, err := WriteFile(filepath.Join(t.TempDir(), "absent", "model.onnx"), sampleModel())
	assert.Error(t, err)
}

func TestIRVersionFor(t *testing.T) {
	assert.EqualValues(t, 8, IRVersionFor(DefaultOpset))
	assert.EqualValues(t, 8, IRVersionFor(MinOpset))
	assert.EqualValues(t, 9, IRVersionFor(19))
	assert.EqualValues(t, 10, IRVersionFor(MaxOpset))
}
