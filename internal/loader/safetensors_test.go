package loader

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/zooexport/internal/tensor"
)

func testTensors(t *testing.T) map[string]*tensor.RawTensor {
	t.Helper()
	w, err := tensor.NewRawFloat32(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	b, err := tensor.NewRawFloat32(tensor.Shape{3}, []float32{-1, 0, 1})
	require.NoError(t, err)
	steps, err := tensor.NewRaw(tensor.Shape{}, tensor.Int64, tensor.CPU)
	require.NoError(t, err)
	steps.AsInt64()[0] = 42
	return map[string]*tensor.RawTensor{
		"fc.weight":              w,
		"fc.bias":                b,
		"bn.num_batches_tracked": steps,
	}
}

// writeRaw builds a file from a literal header and data section.
func writeRaw(t *testing.T, header string, data []byte) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(header))))
	buf.WriteString(header)
	buf.Write(data)
	path := filepath.Join(t.TempDir(), "w.safetensors")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestWriteThenOpen(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []OpenOption
	}{
		{"mmap", nil},
		{"readat", []OpenOption{WithoutMmap()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "model.safetensors")
			want := testTensors(t)
			require.NoError(t, WriteFile(path, want, map[string]string{"format": "pt"}))

			f, err := Open(path, tc.opts...)
			require.NoError(t, err)
			defer f.Close()
			if tc.opts != nil {
				assert.False(t, f.Mapped())
			}

			assert.Equal(t, []string{"bn.num_batches_tracked", "fc.bias", "fc.weight"}, f.Names())
			assert.Equal(t, map[string]string{"format": "pt"}, f.Metadata())

			info, ok := f.Info("fc.weight")
			require.True(t, ok)
			assert.Equal(t, F32, info.DType)
			assert.Equal(t, []int{2, 3}, info.Shape)
			assert.Equal(t, int64(24), info.Bytes())

			sd, err := f.StateDict()
			require.NoError(t, err)
			require.Len(t, sd, 3)
			assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, sd["fc.weight"].AsFloat32())
			assert.Equal(t, []float32{-1, 0, 1}, sd["fc.bias"].AsFloat32())
			assert.Equal(t, []int64{42}, sd["bn.num_batches_tracked"].AsInt64())
			assert.Equal(t, tensor.Shape{}, sd["bn.num_batches_tracked"].Shape())
		})
	}
}

func TestWriteHeaderAligned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, testTensors(t), nil))
	n := binary.LittleEndian.Uint64(buf.Bytes()[:8])
	assert.Zero(t, n%8)
	// 24 + 12 + 8 bytes of data follow the header.
	assert.Equal(t, int(8+n+44), buf.Len())
}

func TestWriteFileLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "w.safetensors")
	require.NoError(t, WriteFile(path, testTensors(t), nil))
	require.NoError(t, WriteFile(path, testTensors(t), nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "w.safetensors", entries[0].Name())
}

func TestHalfPrecisionWidened(t *testing.T) {
	data := make([]byte, 0, 12)
	for _, h := range []uint16{0x3c00, 0xc000, 0x0001} { // 1, -2, smallest subnormal
		data = binary.LittleEndian.AppendUint16(data, h)
	}
	for _, h := range []uint16{0x3f80, 0x4040, 0xbf00} { // 1, 3, -0.5
		data = binary.LittleEndian.AppendUint16(data, h)
	}
	path := writeRaw(t, `{"a":{"dtype":"F16","shape":[3],"data_offsets":[0,6]},`+
		`"b":{"dtype":"BF16","shape":[3],"data_offsets":[6,12]}}`, data)

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	a, err := f.Tensor("a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -2, 5.9604645e-08}, a.AsFloat32())
	b, err := f.Tensor("b")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 3, -0.5}, b.AsFloat32())
}

func TestOpenRejectsBadHeaders(t *testing.T) {
	data := make([]byte, 16)
	for _, tc := range []struct {
		name   string
		header string
	}{
		{"not json", `{"a":`},
		{"out of bounds", `{"a":{"dtype":"F32","shape":[8],"data_offsets":[0,32]}}`},
		{"size mismatch", `{"a":{"dtype":"F32","shape":[3],"data_offsets":[0,8]}}`},
		{"unknown dtype", `{"a":{"dtype":"Q4","shape":[2],"data_offsets":[0,8]}}`},
		{"negative offset", `{"a":{"dtype":"U8","shape":[2],"data_offsets":[-2,0]}}`},
		{"overlap", `{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]},` +
			`"b":{"dtype":"F32","shape":[2],"data_offsets":[4,12]}}`},
		{"element count overflows", `{"a":{"dtype":"F32","shape":[4611686018427387904,4],"data_offsets":[0,0]}}`},
		{"half element count overflows", `{"a":{"dtype":"F16","shape":[4611686018427387904,4],"data_offsets":[0,0]}}`},
		{"zero dim", `{"a":{"dtype":"F32","shape":[0,4],"data_offsets":[0,0]}}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Open(writeRaw(t, tc.header, data))
			assert.ErrorIs(t, err, ErrInvalidHeader)
		})
	}

	t.Run("truncated", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "short")
		require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))
		_, err := Open(path)
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})

	t.Run("header larger than file", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(1000)))
		buf.WriteString("{}")
		path := filepath.Join(t.TempDir(), "big")
		require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
		_, err := Open(path)
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestMissingTensor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.safetensors")
	require.NoError(t, WriteFile(path, testTensors(t), nil))
	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Tensor("nope")
	assert.ErrorContains(t, err, "not found")
	_, ok := f.Info("nope")
	assert.False(t, ok)
}
