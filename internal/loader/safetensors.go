package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/goccy/go-json"

	"github.com/born-ml/zooexport/internal/tensor"
)

// DType is a SafeTensors element type.
type DType string

// SafeTensors dtypes understood by the reader.
const (
	F16  DType = "F16"
	BF16 DType = "BF16"
	F32  DType = "F32"
	F64  DType = "F64"
	I32  DType = "I32"
	I64  DType = "I64"
	U8   DType = "U8"
	Bool DType = "BOOL"
)

// Size returns the element size in bytes, or 0 for an unknown dtype.
func (d DType) Size() int {
	switch d {
	case U8, Bool:
		return 1
	case F16, BF16:
		return 2
	case F32, I32:
		return 4
	case F64, I64:
		return 8
	default:
		return 0
	}
}

// Limits applied to untrusted headers.
const (
	MaxHeaderSize    = 100 << 20
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// ErrInvalidHeader is returned for a header that cannot be decoded or does
// not describe the data section.
var ErrInvalidHeader = errors.New("invalid safetensors header")

// TensorInfo describes one tensor in the header.
type TensorInfo struct {
	DType       DType    `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Bytes returns the size of the tensor data.
func (ti TensorInfo) Bytes() int64 {
	return ti.DataOffsets[1] - ti.DataOffsets[0]
}

// Header is the decoded JSON header.
type Header struct {
	Metadata map[string]string
	Tensors  map[string]TensorInfo
}

// UnmarshalJSON splits "__metadata__" from the tensor entries.
func (h *Header) UnmarshalJSON(data []byte) error {
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	h.Tensors = make(map[string]TensorInfo, len(entries))
	for name, raw := range entries {
		if name == metadataKey {
			if err := json.Unmarshal(raw, &h.Metadata); err != nil {
				return fmt.Errorf("metadata: %w", err)
			}
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		h.Tensors[name] = info
	}
	return nil
}

const metadataKey = "__metadata__"

// File is an open SafeTensors file.
type File struct {
	path       string
	file       *os.File
	mapped     []byte // whole file; nil when reading through ReadAt
	header     Header
	dataOffset int64
}

type openConfig struct {
	mmap bool
}

// OpenOption configures Open.
type OpenOption func(*openConfig)

// WithoutMmap reads tensors with ReadAt even where mapping is available.
func WithoutMmap() OpenOption {
	return func(c *openConfig) { c.mmap = false }
}

// Open reads and validates the header of a SafeTensors file.
func Open(path string, opts ...OpenOption) (*File, error) {
	cfg := openConfig{mmap: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	//nolint:gosec // G304: weights path comes from the user
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open weights: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat weights: %w", err)
	}

	f := &File{path: path, file: file}
	if cfg.mmap && stat.Size() > 0 {
		// A failed mapping falls back to ReadAt.
		if data, err := mmapFile(file, stat.Size()); err == nil {
			f.mapped = data
		}
	}

	if err := f.readHeader(stat.Size()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func (f *File) readHeader(size int64) error {
	if size < 8 {
		return fmt.Errorf("%w: file is %d bytes", ErrInvalidHeader, size)
	}
	var prefix [8]byte
	if _, err := f.readAt(prefix[:], 0); err != nil {
		return fmt.Errorf("failed to read header size: %w", err)
	}
	headerSize := binary.LittleEndian.Uint64(prefix[:])
	if headerSize > MaxHeaderSize || int64(headerSize) > size-8 { //nolint:gosec // G115: bounded above
		return fmt.Errorf("%w: header size %d exceeds file", ErrInvalidHeader, headerSize)
	}

	raw := make([]byte, headerSize)
	if _, err := f.readAt(raw, 8); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(raw, &f.header); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	f.dataOffset = 8 + int64(headerSize) //nolint:gosec // G115: bounded above
	return validateHeader(&f.header, size-f.dataOffset)
}

func (f *File) readAt(p []byte, off int64) (int, error) {
	if f.mapped != nil {
		if off+int64(len(p)) > int64(len(f.mapped)) {
			return 0, io.ErrUnexpectedEOF
		}
		return copy(p, f.mapped[off:]), nil
	}
	return f.file.ReadAt(p, off)
}

// validateHeader checks names, sizes and that tensor regions lie inside the
// data section without overlapping.
func validateHeader(h *Header, dataSize int64) error {
	if len(h.Tensors) > MaxTensorCount {
		return fmt.Errorf("%w: %d tensors", ErrInvalidHeader, len(h.Tensors))
	}

	type region struct {
		name       string
		start, end int64
	}
	regions := make([]region, 0, len(h.Tensors))
	for name, info := range h.Tensors {
		if name == "" || len(name) > MaxTensorNameLen {
			return fmt.Errorf("%w: tensor name of length %d", ErrInvalidHeader, len(name))
		}
		size := info.DType.Size()
		if size == 0 {
			return fmt.Errorf("%w: tensor %s has unknown dtype %q", ErrInvalidHeader, name, info.DType)
		}
		// Zero-sized dims are legal safetensors but no tensor here can hold
		// them, so they are rejected with the rest of the header. The element
		// count is bounded by what the data section could hold.
		limit := dataSize / int64(size)
		elems := int64(1)
		for _, d := range info.Shape {
			switch {
			case d <= 0:
				return fmt.Errorf("%w: tensor %s has shape %v", ErrInvalidHeader, name, info.Shape)
			case elems > limit/int64(d):
				return fmt.Errorf("%w: tensor %s shape %v exceeds the %d byte data section",
					ErrInvalidHeader, name, info.Shape, dataSize)
			}
			elems *= int64(d)
		}
		start, end := info.DataOffsets[0], info.DataOffsets[1]
		if start < 0 || end < start || end > dataSize {
			return fmt.Errorf("%w: tensor %s offsets [%d, %d] outside data of %d bytes",
				ErrInvalidHeader, name, start, end, dataSize)
		}
		if end-start != elems*int64(size) {
			return fmt.Errorf("%w: tensor %s holds %d bytes, %s%v needs %d",
				ErrInvalidHeader, name, end-start, info.DType, info.Shape, elems*int64(size))
		}
		regions = append(regions, region{name, start, end})
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].start < regions[j].start })
	for i := 1; i < len(regions); i++ {
		if regions[i-1].end > regions[i].start {
			return fmt.Errorf("%w: tensors %s and %s overlap", ErrInvalidHeader, regions[i-1].name, regions[i].name)
		}
	}
	return nil
}

// Close releases the mapping and the file.
func (f *File) Close() error {
	var err error
	if f.mapped != nil {
		err = munmapFile(f.mapped)
		f.mapped = nil
	}
	if f.file != nil {
		if cerr := f.file.Close(); err == nil {
			err = cerr
		}
		f.file = nil
	}
	return err
}

// Path returns the file path.
func (f *File) Path() string { return f.path }

// Mapped reports whether tensors are read from a memory mapping.
func (f *File) Mapped() bool { return f.mapped != nil }

// Metadata returns the "__metadata__" map, which may be nil.
func (f *File) Metadata() map[string]string { return f.header.Metadata }

// Names returns the tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.header.Tensors))
	for name := range f.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns the header entry of a tensor.
func (f *File) Info(name string) (TensorInfo, bool) {
	info, ok := f.header.Tensors[name]
	return info, ok
}

// ReadData returns a copy of the raw little-endian bytes of a tensor.
func (f *File) ReadData(name string) ([]byte, error) {
	info, ok := f.header.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor %s not found", name)
	}
	data := make([]byte, info.Bytes())
	if _, err := f.readAt(data, f.dataOffset+info.DataOffsets[0]); err != nil {
		return nil, fmt.Errorf("failed to read tensor %s: %w", name, err)
	}
	return data, nil
}

// Tensor decodes a tensor. F16 and BF16 are widened to float32.
func (f *File) Tensor(name string) (*tensor.RawTensor, error) {
	info, ok := f.header.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor %s not found", name)
	}
	data, err := f.ReadData(name)
	if err != nil {
		return nil, err
	}
	shape := tensor.Shape(info.Shape)

	switch info.DType {
	case F16, BF16:
		raw, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		widen := float16ToFloat32
		if info.DType == BF16 {
			widen = bfloat16ToFloat32
		}
		dst := raw.AsFloat32()
		for i := range dst {
			dst[i] = widen(binary.LittleEndian.Uint16(data[i*2:]))
		}
		return raw, nil
	default:
		dt, err := tensor.ParseDataType(string(info.DType))
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		raw, err := tensor.NewRawFromBytes(shape, dt, data)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", name, err)
		}
		return raw, nil
	}
}

// StateDict decodes every tensor.
func (f *File) StateDict() (map[string]*tensor.RawTensor, error) {
	sd := make(map[string]*tensor.RawTensor, len(f.header.Tensors))
	for _, name := range f.Names() {
		raw, err := f.Tensor(name)
		if err != nil {
			return nil, err
		}
		sd[name] = raw
	}
	return sd, nil
}

func bfloat16ToFloat32(h uint16) float32 {
	return math.Float32frombits(uint32(h) << 16)
}

func float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff

	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// Subnormal: renormalize.
		e := uint32(127 - 15 + 1)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3ff
		return math.Float32frombits(sign | e<<23 | mant<<13)
	case exp == 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
	}
}
