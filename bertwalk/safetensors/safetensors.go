// Package safetensors reads the tensors of a HuggingFace model.safetensors file.
package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	json "github.com/goccy/go-json"
)

// ErrNotFound is returned for a tensor name absent from the header.
var ErrNotFound = errors.New("tensor not found")

// TensorInfo locates one tensor inside the data section.
type TensorInfo struct {
	DType string
	Shape []int
	Start int64
	End   int64
}

// Size is the byte length of the tensor data.
func (t TensorInfo) Size() int64 { return t.End - t.Start }

// File is an open checkpoint. Close releases the underlying file.
type File struct {
	Tensors  map[string]TensorInfo
	Metadata map[string]string

	f    *os.File
	data *io.SectionReader
}

// header entry as written by the safetensors serializers.
type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

const (
	metadataKey = "__metadata__"
	// maxHeaderLen guards against reading a corrupt length prefix as a huge allocation.
	maxHeaderLen = 100 << 20
)

// Open parses the header of path and keeps the file open for tensor reads.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	file, err := parse(f, st.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	file.f = f
	return file, nil
}

func parse(r io.ReaderAt, size int64) (*File, error) {
	var prefix [8]byte
	if _, err := r.ReadAt(prefix[:], 0); err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	headerLen := binary.LittleEndian.Uint64(prefix[:])
	if headerLen == 0 || headerLen > maxHeaderLen || int64(headerLen) > size-8 {
		return nil, fmt.Errorf("invalid header length %d", headerLen)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := r.ReadAt(headerBytes, 8); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	dataStart := int64(8 + headerLen)
	file := &File{
		Tensors: make(map[string]TensorInfo, len(raw)),
		data:    io.NewSectionReader(r, dataStart, size-dataStart),
	}
	for name, msg := range raw {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &file.Metadata); err != nil {
				return nil, fmt.Errorf("parse metadata: %w", err)
			}
			continue
		}
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		if len(th.DataOffsets) != 2 || th.DataOffsets[1] < th.DataOffsets[0] {
			return nil, fmt.Errorf("tensor %s: invalid data_offsets %v", name, th.DataOffsets)
		}
		file.Tensors[name] = TensorInfo{
			DType: th.DType,
			Shape: th.Shape,
			Start: th.DataOffsets[0],
			End:   th.DataOffsets[1],
		}
	}
	return file, nil
}

func (f *File) Close() error {
	if f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	t, ok := f.Tensors[name]
	return t, ok
}

// ReadTensor returns the raw little-endian bytes of a tensor.
func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	buf := make([]byte, t.Size())
	if _, err := f.data.ReadAt(buf, t.Start); err != nil {
		return nil, TensorInfo{}, fmt.Errorf("read tensor %s: %w", name, err)
	}
	return buf, t, nil
}

// element decoders by dtype: byte width and conversion of one element.
var decoders = map[string]struct {
	width  int
	decode func(b []byte) float64
}{
	"F32": {4, func(b []byte) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}},
	"BF16": {2, func(b []byte) float64 {
		return float64(bf16ToF32(binary.LittleEndian.Uint16(b)))
	}},
	"F16": {2, func(b []byte) float64 {
		return float64(fp16ToFloat32(binary.LittleEndian.Uint16(b)))
	}},
}

// ReadTensorF64 decodes an F32, F16 or BF16 tensor into float64 values.
func (f *File) ReadTensorF64(name string) ([]float64, TensorInfo, error) {
	info, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	dec, ok := decoders[info.DType]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: unsupported dtype %s", name, info.DType)
	}
	n, err := NumElements(info.Shape)
	if err != nil {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	if info.Size() != int64(n*dec.width) {
		return nil, TensorInfo{}, fmt.Errorf("tensor %s: %d bytes for %d %s values", name, info.Size(), n, info.DType)
	}
	raw, _, err := f.ReadTensor(name)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = dec.decode(raw[i*dec.width:])
	}
	return out, info, nil
}

// NumElements multiplies out shape, rejecting empty shapes, non-positive
// dims and overflow.
func NumElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("empty shape")
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("invalid dim %d", d)
		}
		if n > math.MaxInt/d {
			return 0, fmt.Errorf("tensor too large")
		}
		n *= d
	}
	return n, nil
}

func bf16ToF32(u uint16) float32 {
	return math.Float32frombits(uint32(u) << 16)
}

func fp16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h & 0x3ff)
	switch {
	case exp == 0 && frac == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// subnormal: value is frac * 2^-24
		v := float32(frac) / (1 << 24)
		if sign != 0 {
			v = -v
		}
		return v
	case exp == 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | frac<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | frac<<13)
	}
}
