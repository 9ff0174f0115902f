package loader

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/goccy/go-json"

	"github.com/born-ml/zooexport/internal/tensor"
)

var safetensorsTypes = map[tensor.DataType]DType{
	tensor.Float32: F32,
	tensor.Float64: F64,
	tensor.Int32:   I32,
	tensor.Int64:   I64,
	tensor.Uint8:   U8,
	tensor.Bool:    Bool,
}

// Write encodes tensors as safetensors: data in name order, header padded
// with spaces to a multiple of 8 bytes.
func Write(w io.Writer, tensors map[string]*tensor.RawTensor, metadata map[string]string) error {
	names := slices.Sorted(maps.Keys(tensors))

	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}
	var end int64
	for _, name := range names {
		raw := tensors[name]
		dt, ok := safetensorsTypes[raw.DType()]
		if !ok {
			return fmt.Errorf("tensor %s: no safetensors dtype for %s", name, raw.DType())
		}
		start := end
		end += int64(raw.ByteSize())
		header[name] = TensorInfo{DType: dt, Shape: slices.Clone(raw.Shape()), DataOffsets: [2]int64{start, end}}
	}

	hdr, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if pad := len(hdr) % 8; pad != 0 {
		hdr = append(hdr, "        "[pad:]...)
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(hdr))); err != nil {
		return err
	}
	if _, err := bw.Write(hdr); err != nil {
		return err
	}
	for _, name := range names {
		if _, err := bw.Write(tensors[name].LittleEndianBytes()); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return bw.Flush()
}

// WriteFile writes tensors to a temp file next to path and renames it into
// place, so readers never see a partial file.
func WriteFile(path string, tensors map[string]*tensor.RawTensor, metadata map[string]string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = Write(tmp, tensors, metadata); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
