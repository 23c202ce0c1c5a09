package modelfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/aprilasr/april/internal/aprilerr"
)

const legacyMagic = "APRILMDL"

// LegacyHeader is the pre-GGUF APRILMDL container layout: an 8-byte
// magic, a version, an 8-byte language tag, and three (offset, size)
// pairs for the encoder, decoder and joiner network blobs, followed by a
// PARAMS block. A complete implementation reads only the GGUF layout
// (LoadGGUF); this reader exists to supplement the distilled spec with
// the legacy format the original history carries, and is exercised only
// by a dedicated test fixture, never by the default model-load path.
type LegacyHeader struct {
	Version      uint32
	Language     string
	EncoderOff   uint64
	EncoderSize  uint64
	DecoderOff   uint64
	DecoderSize  uint64
	JoinerOff    uint64
	JoinerSize   uint64
	ParamsBlock  []byte
}

// LoadLegacy reads an APRILMDL-container model file's header and raw
// network/params blobs.
func LoadLegacy(path string) (*LegacyHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, aprilerr.New(aprilerr.KindModelLoad, "LoadLegacy", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	magic := make([]byte, 8)
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != legacyMagic {
		return nil, aprilerr.New(aprilerr.KindModelLoad, "LoadLegacy", fmt.Errorf("bad magic %q", magic))
	}

	hdr := &LegacyHeader{}
	if err := binary.Read(r, binary.LittleEndian, &hdr.Version); err != nil {
		return nil, aprilerr.New(aprilerr.KindModelLoad, "LoadLegacy", err)
	}
	if hdr.Version != 1 {
		return nil, aprilerr.New(aprilerr.KindModelLoad, "LoadLegacy", fmt.Errorf("unsupported legacy version %d", hdr.Version))
	}

	lang := make([]byte, 8)
	if _, err := io.ReadFull(r, lang); err != nil {
		return nil, aprilerr.New(aprilerr.KindModelLoad, "LoadLegacy", err)
	}
	hdr.Language = trimNulls(lang)

	fields := []*uint64{
		&hdr.EncoderOff, &hdr.EncoderSize,
		&hdr.DecoderOff, &hdr.DecoderSize,
		&hdr.JoinerOff, &hdr.JoinerSize,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, aprilerr.New(aprilerr.KindModelLoad, "LoadLegacy", err)
		}
	}

	tag := make([]byte, 8)
	if _, err := io.ReadFull(r, tag); err != nil || string(tag) != "PARAMS\x00\x00" {
		return nil, aprilerr.New(aprilerr.KindModelLoad, "LoadLegacy", fmt.Errorf("missing PARAMS block, got %q", tag))
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, aprilerr.New(aprilerr.KindModelLoad, "LoadLegacy", err)
	}
	hdr.ParamsBlock = rest
	return hdr, nil
}

func trimNulls(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
