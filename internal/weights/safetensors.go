// Package weights reads a safetensors checkpoint directory and populates an
// encoder.Encoder's parameter tree from it. There is no safetensors library
// anywhere in the dependency pack this project draws on, so the reader below
// is hand-rolled: the format is a small fixed binary layout (an 8-byte
// little-endian header length, a JSON header, then a raw data blob) and
// pulling in a whole ML checkpoint framework for eight lines of parsing
// would be the wrong trade.
package weights

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// Dtype is the subset of safetensors scalar types this reader accepts.
type Dtype string

const (
	F32  Dtype = "F32"
	F16  Dtype = "F16"
	BF16 Dtype = "BF16"
)

// tensorInfo mirrors one entry of a safetensors JSON header.
type tensorInfo struct {
	Dtype       Dtype  `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

// Archive is a parsed, memory-resident safetensors file: header metadata
// plus the raw data segment. Tensors are materialized to float32 lazily via
// Float32.
type Archive struct {
	order []string // tensor names sorted, for a deterministic load order
	infos map[string]tensorInfo
	data  []byte
}

// Open reads and parses a safetensors file at path. The whole data segment
// is loaded into memory; checkpoints in this project's size class (tens to
// low hundreds of MB) are small enough that this is simpler and fast enough
// than mmap-ing it.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("weights: open %s: %w", path, err)
	}
	defer f.Close()

	var headerLen uint64
	if err := binary.Read(f, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("weights: read header length: %w", err)
	}
	if headerLen == 0 || headerLen > 256<<20 {
		return nil, fmt.Errorf("weights: implausible header length %d in %s", headerLen, path)
	}

	headerBuf := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBuf); err != nil {
		return nil, fmt.Errorf("weights: read header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBuf, &raw); err != nil {
		return nil, fmt.Errorf("weights: parse header json: %w", err)
	}

	infos := make(map[string]tensorInfo, len(raw))
	order := make([]string, 0, len(raw))
	for key, msg := range raw {
		if key == "__metadata__" {
			continue // free-form string map, not a tensor
		}
		var info tensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, fmt.Errorf("weights: parse tensor %q: %w", key, err)
		}
		infos[key] = info
		order = append(order, key)
	}
	sort.Strings(order)

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("weights: read data segment: %w", err)
	}

	return &Archive{order: order, infos: infos, data: data}, nil
}

// Keys returns the tensor names present in the archive, sorted.
func (a *Archive) Keys() []string {
	return a.order
}

// Shape returns the declared shape of a tensor, or nil if it isn't present.
func (a *Archive) Shape(key string) []int {
	info, ok := a.infos[key]
	if !ok {
		return nil
	}
	return info.Shape
}

// Float32 materializes one tensor as a flat float32 slice, dequantizing
// F16/BF16 storage if needed.
func (a *Archive) Float32(key string) ([]float32, error) {
	info, ok := a.infos[key]
	if !ok {
		return nil, fmt.Errorf("weights: tensor %q not present", key)
	}
	start, end := info.DataOffsets[0], info.DataOffsets[1]
	if start < 0 || end > len(a.data) || start > end {
		return nil, fmt.Errorf("weights: tensor %q has invalid data offsets [%d,%d)", key, start, end)
	}
	seg := a.data[start:end]

	n := 1
	for _, d := range info.Shape {
		n *= d
	}

	switch info.Dtype {
	case F32:
		if len(seg) != n*4 {
			return nil, fmt.Errorf("weights: tensor %q: expected %d bytes for F32, got %d", key, n*4, len(seg))
		}
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(seg[i*4 : i*4+4])
			out[i] = math.Float32frombits(bits)
		}
		return out, nil
	case F16:
		if len(seg) != n*2 {
			return nil, fmt.Errorf("weights: tensor %q: expected %d bytes for F16, got %d", key, n*2, len(seg))
		}
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint16(seg[i*2 : i*2+2])
			out[i] = float16ToFloat32(bits)
		}
		return out, nil
	case BF16:
		if len(seg) != n*2 {
			return nil, fmt.Errorf("weights: tensor %q: expected %d bytes for BF16, got %d", key, n*2, len(seg))
		}
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint16(seg[i*2 : i*2+2])
			out[i] = math.Float32frombits(uint32(bits) << 16)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("weights: tensor %q has unsupported dtype %q", key, info.Dtype)
	}
}

// float16ToFloat32 converts an IEEE 754 binary16 value to float32.
func float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff

	var bits uint32
	switch {
	case exp == 0 && frac == 0:
		bits = sign << 31
	case exp == 0x1f:
		bits = sign<<31 | 0xff<<23 | frac<<13
	case exp == 0:
		// subnormal half -> normalize into float32's range
		e := 0
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x3ff
		exp32 := uint32(int32(e) + 127 - 14)
		bits = sign<<31 | exp32<<23 | frac<<13
	default:
		exp32 := exp - 15 + 127
		bits = sign<<31 | exp32<<23 | frac<<13
	}
	return math.Float32frombits(bits)
}
