package modelfile

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type kv struct {
	key string
	typ valueType
	val any
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint64(len(s)))
	buf.WriteString(s)
}

func writeKV(buf *bytes.Buffer, e kv) {
	writeString(buf, e.key)
	binary.Write(buf, binary.LittleEndian, uint32(e.typ))
	switch e.typ {
	case typeUint32:
		binary.Write(buf, binary.LittleEndian, e.val.(uint32))
	case typeFloat32:
		binary.Write(buf, binary.LittleEndian, e.val.(float32))
	case typeString:
		writeString(buf, e.val.(string))
	case typeArray:
		arr := e.val.([]string)
		binary.Write(buf, binary.LittleEndian, uint32(typeString))
		binary.Write(buf, binary.LittleEndian, uint64(len(arr)))
		for _, s := range arr {
			writeString(buf, s)
		}
	}
}

func buildTestGGUF(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString(ggufMagic)
	binary.Write(&buf, binary.LittleEndian, uint32(3))

	tensorData := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	binary.Write(&buf, binary.LittleEndian, uint64(1)) // tensor_count

	entries := []kv{
		{"general.architecture", typeString, "april"},
		{"general.name", typeString, "unit-test-model"},
		{"general.description", typeString, "a tiny test fixture"},
		{"layer_count", typeUint32, uint32(2)},
		{"batch_size", typeUint32, uint32(8)},
		{"segment_size", typeUint32, uint32(9)},
		{"segment_step", typeUint32, uint32(4)},
		{"mel_features", typeUint32, uint32(40)},
		{"sample_rate", typeUint32, uint32(16000)},
		{"frame_shift_ms", typeFloat32, float32(10)},
		{"frame_length_ms", typeFloat32, float32(25)},
		{"round_pow2", typeUint32, uint32(1)},
		{"mel_low", typeFloat32, float32(20)},
		{"mel_high", typeFloat32, float32(0)},
		{"snip_edges", typeUint32, uint32(1)},
		{"token_count", typeUint32, uint32(3)},
		{"blank_id", typeUint32, uint32(0)},
		{"tokenizer.ggml.tokens", typeArray, []string{"<blank>", " hi", "."}},
	}
	binary.Write(&buf, binary.LittleEndian, uint64(len(entries)))
	for _, e := range entries {
		writeKV(&buf, e)
	}

	// one tensor: "encoder_embed_out_w", 1-D, offset 0
	writeString(&buf, "encoder_embed_out_w")
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, uint64(len(tensorData)))
	binary.Write(&buf, binary.LittleEndian, uint64(0)) // type
	binary.Write(&buf, binary.LittleEndian, uint64(0)) // offset

	buf.Write(tensorData)

	path := filepath.Join(t.TempDir(), "test.gguf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestLoadGGUFRoundTrip(t *testing.T) {
	path := buildTestGGUF(t)
	params, tensors, err := LoadGGUF(path)
	require.NoError(t, err)

	assert.Equal(t, "unit-test-model", params.Name)
	assert.Equal(t, 3, params.TokenCount)
	assert.Equal(t, []string{"<blank>", " hi", "."}, params.Vocabulary)
	assert.Equal(t, 16000, params.SampleRate)
	assert.Equal(t, 9, params.SegmentSize)
	assert.Equal(t, 4, params.SegmentStep)
	assert.True(t, params.RoundPow2)

	require.Contains(t, tensors, "encoder_embed_out_w")
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, tensors["encoder_embed_out_w"].Data)
}

func TestLoadGGUFRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.gguf")
	require.NoError(t, os.WriteFile(path, []byte("NOPE"), 0o644))
	_, _, err := LoadGGUF(path)
	assert.Error(t, err)
}

func TestLoadGGUFRejectsWrongArchitecture(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(ggufMagic)
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	binary.Write(&buf, binary.LittleEndian, uint64(0))
	binary.Write(&buf, binary.LittleEndian, uint64(1))
	writeKV(&buf, kv{"general.architecture", typeString, "not-april"})

	path := filepath.Join(t.TempDir(), "wrongarch.gguf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	_, _, err := LoadGGUF(path)
	assert.Error(t, err)
}
