package compressors

import (
	"bytes"
	"fmt"

	"github.com/INLOpen/nexusnwb/core"
)

// NoCompressionCompressor stores chunks verbatim.
type NoCompressionCompressor struct{}

var _ core.Compressor = (*NoCompressionCompressor)(nil)

func NewNoCompressionCompressor() *NoCompressionCompressor {
	return &NoCompressionCompressor{}
}

func (c *NoCompressionCompressor) Compress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (c *NoCompressionCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	dst.Write(src)
	return nil
}

func (c *NoCompressionCompressor) Decompress(data []byte, rawSize int) ([]byte, error) {
	if len(data) != rawSize {
		return nil, fmt.Errorf("uncompressed chunk has %d bytes, expected %d", len(data), rawSize)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (c *NoCompressionCompressor) Type() core.CompressionType {
	return core.CompressionNone
}
