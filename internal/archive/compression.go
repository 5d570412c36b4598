// internal/archive/compression.go
package archive

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	CompressionNone = "none"
	CompressionZstd = "zstd"

	// Below this size the zstd frame overhead outweighs the savings
	minCompressSize = 512
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Already-compressed formats are stored as-is.
var skipExtensions = []string{
	".zip", ".gz", ".zst", ".xz", ".bz2",
	".png", ".jpg", ".jpeg", ".gif", ".webp",
	".mp3", ".mp4", ".avi", ".mkv",
	".pdf", ".docx", ".xlsx",
}

// codec compresses archive entries at rest with pooled encoders and decoders.
type codec struct {
	enabled  bool
	encoders sync.Pool
	decoders sync.Pool
}

func newCodec(level int) (*codec, error) {
	if level == 0 {
		level = 3
	}
	encLevel := zstd.EncoderLevelFromZstd(level)

	// Validate options once so the pool constructors cannot fail later
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}
	enc.Close()

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	dec.Close()

	return &codec{
		encoders: sync.Pool{
			New: func() any {
				enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel), zstd.WithEncoderConcurrency(1))
				return enc
			},
		},
		decoders: sync.Pool{
			New: func() any {
				dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
				return dec
			},
		},
	}, nil
}

func (c *codec) shouldCompress(path string, size int) bool {
	if !c.enabled || size < minCompressSize {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, skip := range skipExtensions {
		if ext == skip {
			return false
		}
	}
	return true
}

func (c *codec) encode(content []byte) []byte {
	enc := c.encoders.Get().(*zstd.Encoder)
	defer c.encoders.Put(enc)
	return enc.EncodeAll(content, make([]byte, 0, len(content)/2))
}

func (c *codec) decode(content []byte) ([]byte, error) {
	if len(content) < len(zstdMagic) || !bytes.Equal(content[:len(zstdMagic)], zstdMagic) {
		return nil, fmt.Errorf("not a zstd frame")
	}

	dec := c.decoders.Get().(*zstd.Decoder)
	defer c.decoders.Put(dec)

	out, err := dec.DecodeAll(content, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return out, nil
}
