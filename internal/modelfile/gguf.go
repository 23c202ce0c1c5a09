// Package modelfile loads April model files: the primary GGUF container
// and, as a supplemental/legacy path, the older APRILMDL container. It
// hands back an engine.Params record plus raw tensor byte blobs; nothing
// here interprets tensor contents as weights, since the tensor-compute
// backend that would consume them is an external collaborator.
package modelfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/aprilasr/april/internal/aprilerr"
	"github.com/aprilasr/april/internal/engine"
)

const ggufMagic = "GGUF"

// valueType tags a GGUF metadata value, per the format's fixed type enum.
type valueType uint32

const (
	typeUint8 valueType = iota
	typeInt8
	typeUint16
	typeInt16
	typeUint32
	typeInt32
	typeFloat32
	typeBool
	typeString
	typeArray
	typeUint64
	typeInt64
	typeFloat64
)

// Tensor is a named tensor's shape and raw bytes, as stored in the file.
// Interpreting Data as weights is the backend's job, not this package's.
type Tensor struct {
	Name string
	Dims []uint64
	Type uint32
	Data []byte
}

// requiredScalarKeys are the u32 ModelParameters fields GGUF must carry.
var requiredScalarKeys = []string{
	"layer_count", "batch_size", "segment_size", "segment_step",
	"mel_features", "sample_rate", "frame_shift_ms", "frame_length_ms",
	"round_pow2", "mel_low", "mel_high", "snip_edges", "token_count", "blank_id",
}

// LoadGGUF reads a GGUF-container April model file and returns its
// Params plus the raw tensor table. It returns a ModelLoadError on magic
// mismatch, an unsupported architecture, or a missing required key.
func LoadGGUF(path string) (*engine.Params, map[string]Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != ggufMagic {
		return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF", fmt.Errorf("bad magic %q", magic))
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF", err)
	}

	var tensorCount, kvCount uint64
	if err := binary.Read(r, binary.LittleEndian, &tensorCount); err != nil {
		return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &kvCount); err != nil {
		return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF", err)
	}

	kv := make(map[string]any, kvCount)
	for i := uint64(0); i < kvCount; i++ {
		key, err := readGGUFString(r)
		if err != nil {
			return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF", err)
		}
		val, err := readGGUFValue(r)
		if err != nil {
			return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF", err)
		}
		kv[key] = val
	}

	arch, _ := kv["general.architecture"].(string)
	if arch != "april" {
		return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF", fmt.Errorf("unsupported architecture %q", arch))
	}

	for _, key := range requiredScalarKeys {
		if _, ok := kv[key]; !ok {
			return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF", fmt.Errorf("missing required key %q", key))
		}
	}

	tokens, _ := kv["tokenizer.ggml.tokens"].([]string)
	tokenCount := asInt(kv["token_count"])
	if len(tokens) != tokenCount {
		return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF",
			fmt.Errorf("token-table mismatch: token_count=%d but %d tokens present", tokenCount, len(tokens)))
	}

	params := &engine.Params{
		LayerCount:    asInt(kv["layer_count"]),
		BatchSize:     asInt(kv["batch_size"]),
		SegmentSize:   asInt(kv["segment_size"]),
		SegmentStep:   asInt(kv["segment_step"]),
		MelFeatures:   asInt(kv["mel_features"]),
		SampleRate:    asInt(kv["sample_rate"]),
		FrameShiftMs:  asFloat(kv["frame_shift_ms"]),
		FrameLengthMs: asFloat(kv["frame_length_ms"]),
		RoundPow2:     asInt(kv["round_pow2"]) != 0,
		MelLow:        asFloat(kv["mel_low"]),
		MelHigh:       asFloat(kv["mel_high"]),
		SnipEdges:     asInt(kv["snip_edges"]) != 0,
		TokenCount:    tokenCount,
		BlankID:       int32(asInt(kv["blank_id"])),
		Vocabulary:    tokens,
		Name:          asString(kv["general.name"]),
		Description:   asString(kv["general.description"]),
	}

	tensors := make(map[string]Tensor, tensorCount)
	type tensorInfo struct {
		name   string
		dims   []uint64
		typ    uint32
		offset uint64
	}
	infos := make([]tensorInfo, 0, tensorCount)
	for i := uint64(0); i < tensorCount; i++ {
		name, err := readGGUFString(r)
		if err != nil {
			return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF", err)
		}
		var nDims uint32
		if err := binary.Read(r, binary.LittleEndian, &nDims); err != nil {
			return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF", err)
		}
		dims := make([]uint64, nDims)
		for d := range dims {
			if err := binary.Read(r, binary.LittleEndian, &dims[d]); err != nil {
				return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF", err)
			}
		}
		var typ, offset uint64
		if err := binary.Read(r, binary.LittleEndian, &typ); err != nil {
			return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
			return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF", err)
		}
		infos = append(infos, tensorInfo{name: name, dims: dims, typ: uint32(typ), offset: offset})
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF", err)
	}
	for i, info := range infos {
		start := info.offset
		end := uint64(len(rest))
		if i+1 < len(infos) {
			end = infos[i+1].offset
		}
		if start > uint64(len(rest)) || end > uint64(len(rest)) || start > end {
			return nil, nil, aprilerr.New(aprilerr.KindModelLoad, "LoadGGUF", fmt.Errorf("tensor %q has an out-of-range offset", info.name))
		}
		tensors[info.name] = Tensor{Name: info.name, Dims: info.dims, Type: info.typ, Data: rest[start:end]}
	}

	return params, tensors, nil
}

func readGGUFString(r io.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readGGUFValue(r io.Reader) (any, error) {
	var typ uint32
	if err := binary.Read(r, binary.LittleEndian, &typ); err != nil {
		return nil, err
	}
	return readGGUFTypedValue(r, valueType(typ))
}

func readGGUFTypedValue(r io.Reader, t valueType) (any, error) {
	switch t {
	case typeUint8:
		var v uint8
		err := binary.Read(r, binary.LittleEndian, &v)
		return uint64(v), err
	case typeInt8:
		var v int8
		err := binary.Read(r, binary.LittleEndian, &v)
		return int64(v), err
	case typeUint16:
		var v uint16
		err := binary.Read(r, binary.LittleEndian, &v)
		return uint64(v), err
	case typeInt16:
		var v int16
		err := binary.Read(r, binary.LittleEndian, &v)
		return int64(v), err
	case typeUint32:
		var v uint32
		err := binary.Read(r, binary.LittleEndian, &v)
		return uint64(v), err
	case typeInt32:
		var v int32
		err := binary.Read(r, binary.LittleEndian, &v)
		return int64(v), err
	case typeFloat32:
		var v float32
		err := binary.Read(r, binary.LittleEndian, &v)
		return float64(v), err
	case typeBool:
		var v uint8
		err := binary.Read(r, binary.LittleEndian, &v)
		return uint64(v), err
	case typeString:
		return readGGUFString(r)
	case typeUint64:
		var v uint64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case typeInt64:
		var v int64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case typeFloat64:
		var v float64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	case typeArray:
		var elemType uint32
		if err := binary.Read(r, binary.LittleEndian, &elemType); err != nil {
			return nil, err
		}
		var n uint64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		if valueType(elemType) == typeString {
			out := make([]string, n)
			for i := range out {
				s, err := readGGUFString(r)
				if err != nil {
					return nil, err
				}
				out[i] = s
			}
			return out, nil
		}
		out := make([]any, n)
		for i := range out {
			v, err := readGGUFTypedValue(r, valueType(elemType))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown gguf value type %d", t)
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case uint64:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case uint64:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
