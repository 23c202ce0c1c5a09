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

func buildTestLegacy(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString(legacyMagic)
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	lang := make([]byte, 8)
	copy(lang, "en")
	buf.Write(lang)

	offsets := []uint64{100, 10, 110, 10, 120, 10}
	for _, o := range offsets {
		binary.Write(&buf, binary.LittleEndian, o)
	}
	buf.WriteString("PARAMS\x00\x00")
	buf.WriteString("trailing-params-bytes")

	path := filepath.Join(t.TempDir(), "legacy.aprilmdl")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestLoadLegacyRoundTrip(t *testing.T) {
	path := buildTestLegacy(t)
	hdr, err := LoadLegacy(path)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), hdr.Version)
	assert.Equal(t, "en", hdr.Language)
	assert.Equal(t, uint64(100), hdr.EncoderOff)
	assert.Equal(t, uint64(120), hdr.JoinerOff)
	assert.Equal(t, []byte("trailing-params-bytes"), hdr.ParamsBlock)
}

func TestLoadLegacyRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.aprilmdl")
	require.NoError(t, os.WriteFile(path, []byte("NOTAMDL!"), 0o644))
	_, err := LoadLegacy(path)
	assert.Error(t, err)
}
