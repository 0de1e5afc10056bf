package compressors

import (
	"bytes"
	"fmt"

	"github.com/INLOpen/nexusnwb/core"
	"github.com/golang/snappy"
)

// SnappyCompressor implements the Compressor interface using Snappy block format.
type SnappyCompressor struct{}

var _ core.Compressor = (*SnappyCompressor)(nil)

func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

func (c *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

// CompressTo compresses src into dst, reusing dst's backing array when it is large enough.
func (c *SnappyCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	dst.Grow(snappy.MaxEncodedLen(len(src)))
	// Encode writes into the spare capacity of dst without allocating.
	encoded := snappy.Encode(dst.AvailableBuffer()[:snappy.MaxEncodedLen(len(src))], src)
	dst.Write(encoded)
	return nil
}

func (c *SnappyCompressor) Decompress(data []byte, rawSize int) ([]byte, error) {
	n, err := snappy.DecodedLen(data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress error: %w", err)
	}
	if n != rawSize {
		return nil, fmt.Errorf("snappy chunk decodes to %d bytes, expected %d", n, rawSize)
	}
	out, err := snappy.Decode(make([]byte, n), data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress error: %w", err)
	}
	return out, nil
}

func (c *SnappyCompressor) Type() core.CompressionType {
	return core.CompressionSnappy
}
