package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"biomelevel.ai/internal/level/world"
)

const (
	Version = 1
	Ext     = ".level.zst"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Header is the first line of a level file. It can be read without
// decoding the container.
type Header struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
	Digest  string `json:"digest"`
	Layers  int    `json:"layers"`
	SavedAt string `json:"saved_at,omitempty"`
}

// Encode writes a zstd stream holding a JSON header line followed by the container JSON.
func Encode(w io.Writer, c *world.Container) (Header, error) {
	digest, err := world.Digest(c)
	if err != nil {
		return Header{}, err
	}
	h := Header{
		Version: Version,
		Name:    c.Metadata.Name,
		Digest:  digest,
		Layers:  len(c.Layers),
		SavedAt: time.Now().UTC().Format(time.RFC3339),
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return Header{}, err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(h)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return Header{}, err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return Header{}, err
	}
	if err := json.NewEncoder(bw).Encode(c); err != nil {
		enc.Close()
		return Header{}, fmt.Errorf("encode container: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return Header{}, err
	}
	return h, enc.Close()
}

// Decode reads a level file. Plain JSON containers (as editors export them)
// are accepted too; their header is derived from the content.
func Decode(r io.Reader) (Header, *world.Container, error) {
	br := bufio.NewReaderSize(r, 256*1024)
	magic, _ := br.Peek(len(zstdMagic))
	if !bytes.Equal(magic, zstdMagic) {
		var c world.Container
		if err := json.NewDecoder(br).Decode(&c); err != nil {
			return Header{}, nil, fmt.Errorf("decode container: %w", err)
		}
		digest, err := world.Digest(&c)
		if err != nil {
			return Header{}, nil, err
		}
		return Header{Name: c.Metadata.Name, Digest: digest, Layers: len(c.Layers)}, &c, nil
	}

	dec, err := zstd.NewReader(br)
	if err != nil {
		return Header{}, nil, err
	}
	defer dec.Close()
	zr := bufio.NewReaderSize(dec, 256*1024)

	h, err := readHeader(zr)
	if err != nil {
		return Header{}, nil, err
	}
	var c world.Container
	if err := json.NewDecoder(zr).Decode(&c); err != nil {
		return h, nil, fmt.Errorf("decode container: %w", err)
	}
	digest, err := world.Digest(&c)
	if err != nil {
		return h, nil, err
	}
	if h.Digest != "" && digest != h.Digest {
		return h, nil, fmt.Errorf("level %q: digest mismatch: header %s, content %s", h.Name, h.Digest, digest)
	}
	return h, &c, nil
}

func readHeader(r *bufio.Reader) (Header, error) {
	var h Header
	line, err := r.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return h, fmt.Errorf("unsupported level file version %d", h.Version)
	}
	return h, nil
}

// WriteLevel writes c to path through a temporary file, so readers never
// observe a partially written level.
func WriteLevel(path string, c *world.Container) (Header, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Header{}, err
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*"+Ext)
	if err != nil {
		return Header{}, err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	h, err := Encode(f, c)
	if err != nil {
		_ = f.Close()
		return Header{}, err
	}
	if err := f.Close(); err != nil {
		return Header{}, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return Header{}, err
	}
	return h, nil
}

func ReadLevel(path string) (Header, *world.Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer f.Close()
	return Decode(f)
}

// ReadHeader reads only the header line of a zstd level file.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return Header{}, err
	}
	defer dec.Close()
	return readHeader(bufio.NewReader(dec))
}
