package compressors

import (
	"bytes"
	"fmt"

	"github.com/INLOpen/nexusnwb/core"
	"github.com/klauspost/compress/zstd"
)

// ZstdCompressor implements the Compressor interface using ZSTD frames.
// EncodeAll and DecodeAll are safe for concurrent use, so one encoder and
// one decoder serve every dataset of a container.
type ZstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

var _ core.Compressor = (*ZstdCompressor)(nil)

// maxChunkDecodeMemory bounds the memory a single chunk may decode into.
const maxChunkDecodeMemory = 256 * 1024 * 1024

func NewZstdCompressor() *ZstdCompressor {
	// Neither constructor fails with these options.
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic(fmt.Sprintf("zstd encoder: %v", err))
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxChunkDecodeMemory), zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic(fmt.Sprintf("zstd decoder: %v", err))
	}
	return &ZstdCompressor{encoder: enc, decoder: dec}
}

func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2+64)), nil
}

// CompressTo compresses src data into the dst buffer using ZSTD.
func (c *ZstdCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	dst.Write(c.encoder.EncodeAll(src, dst.AvailableBuffer()))
	return nil
}

func (c *ZstdCompressor) Decompress(data []byte, rawSize int) ([]byte, error) {
	out, err := c.decoder.DecodeAll(data, make([]byte, 0, rawSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress error: %w", err)
	}
	if len(out) != rawSize {
		return nil, fmt.Errorf("zstd chunk decodes to %d bytes, expected %d", len(out), rawSize)
	}
	return out, nil
}

func (c *ZstdCompressor) Type() core.CompressionType {
	return core.CompressionZSTD
}
