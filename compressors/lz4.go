package compressors

import (
	"bytes"
	"fmt"

	"github.com/INLOpen/nexusnwb/core"
	lz4 "github.com/pierrec/lz4/v4"
)

// LZ4Compressor implements the Compressor interface using LZ4 block format.
// Block format does not record the original size; the chunk header does.
type LZ4Compressor struct{}

var _ core.Compressor = (*LZ4Compressor)(nil)

func NewLz4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress error: %w", err)
	}
	if n == 0 && len(data) > 0 {
		// incompressible input; CompressBlock reports it with n == 0
		return nil, fmt.Errorf("lz4 compression resulted in zero bytes for non-empty input")
	}
	return dst[:n], nil
}

// CompressTo compresses src data into the dst buffer using LZ4.
func (c *LZ4Compressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	bound := lz4.CompressBlockBound(len(src))
	dst.Grow(bound)
	out := dst.AvailableBuffer()[:bound]
	n, err := lz4.CompressBlock(src, out, nil)
	if err != nil {
		return fmt.Errorf("lz4 CompressTo block compress error: %w", err)
	}
	if n == 0 && len(src) > 0 {
		return fmt.Errorf("lz4 compression resulted in zero bytes for non-empty input")
	}
	dst.Write(out[:n])
	return nil
}

func (c *LZ4Compressor) Decompress(data []byte, rawSize int) ([]byte, error) {
	if rawSize == 0 {
		return []byte{}, nil
	}
	dst := make([]byte, rawSize)
	n, err := lz4.UncompressBlock(data, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress error: %w", err)
	}
	if n != rawSize {
		return nil, fmt.Errorf("lz4 chunk decodes to %d bytes, expected %d", n, rawSize)
	}
	return dst, nil
}

func (c *LZ4Compressor) Type() core.CompressionType {
	return core.CompressionLZ4
}
