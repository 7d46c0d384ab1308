// Package compress implements the block compressors available to the
// deflate stage. Every algorithm works on whole blocks: a block is
// compressed independently of its neighbours.
package compress

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies a block compression algorithm.
type Tag uint8

const (
	// None stores blocks as read.
	None Tag = iota
	// LZ4 is LZ4 block compression.
	LZ4
	// Zstd is zstd at the default speed level.
	Zstd
	// Snappy is snappy block format.
	Snappy
)

// ErrIncompressible is returned by Compress when the output would not be
// smaller than the input. The caller stores the block uncompressed.
var ErrIncompressible = errors.New("compress: data is incompressible")

func (t Tag) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	case Snappy:
		return "snappy"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseTag parses the name printed by Tag.String.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	case "snappy":
		return Snappy, nil
	default:
		return 0, fmt.Errorf("compress: unknown algorithm %q", name)
	}
}

// Bound returns the scratch size Compress needs for a src of n bytes.
func Bound(n int) int {
	b := lz4.CompressBlockBound(n)
	if s := snappy.MaxEncodedLen(n); s > b {
		b = s
	}
	return b
}

// zstd encoders and decoders are safe for concurrent use through
// EncodeAll and DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress compresses src with tag, reusing dst's storage when it is large
// enough. For None it returns src unchanged.
func Compress(dst, src []byte, tag Tag) ([]byte, error) {
	var out []byte
	switch tag {
	case None:
		return src, nil
	case LZ4:
		if cap(dst) < lz4.CompressBlockBound(len(src)) {
			dst = make([]byte, lz4.CompressBlockBound(len(src)))
		}
		dst = dst[:cap(dst)]
		var c lz4.Compressor
		n, err := c.CompressBlock(src, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// CompressBlock reports incompressible input as 0.
		out = dst[:n]
	case Zstd:
		out = zstdEncoder.EncodeAll(src, dst[:0])
	case Snappy:
		out = snappy.Encode(dst[:cap(dst)], src)
	default:
		return nil, fmt.Errorf("compress: unsupported tag %d", tag)
	}

	if len(out) == 0 || len(out) >= len(src) {
		return nil, ErrIncompressible
	}
	return out, nil
}

// Decompress reverses Compress. size must be the uncompressed length.
func Decompress(src []byte, tag Tag, size int) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch tag {
	case None:
		out = src
	case LZ4:
		out = make([]byte, size)
		var n int
		n, err = lz4.UncompressBlock(src, out)
		out = out[:n]
	case Zstd:
		out, err = zstdDecoder.DecodeAll(src, make([]byte, 0, size))
	case Snappy:
		out, err = snappy.Decode(make([]byte, size), src)
	default:
		return nil, fmt.Errorf("compress: unsupported tag %d", tag)
	}
	if err != nil {
		return nil, fmt.Errorf("%s decompress: %w", tag, err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%s decompress: got %d bytes, expected %d", tag, len(out), size)
	}
	return out, nil
}
