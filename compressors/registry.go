package compressors

import (
	"fmt"
	"sync"

	"github.com/INLOpen/nexusnwb/core"
)

var (
	zstdOnce   sync.Once
	zstdShared *ZstdCompressor
)

// ForType returns the compressor that reads and writes chunks of type t.
// The ZSTD compressor is shared process-wide since it holds encoder state.
func ForType(t core.CompressionType) (core.Compressor, error) {
	switch t {
	case core.CompressionNone:
		return NewNoCompressionCompressor(), nil
	case core.CompressionSnappy:
		return NewSnappyCompressor(), nil
	case core.CompressionLZ4:
		return NewLz4Compressor(), nil
	case core.CompressionZSTD:
		zstdOnce.Do(func() { zstdShared = NewZstdCompressor() })
		return zstdShared, nil
	default:
		return nil, fmt.Errorf("unsupported compression type %d", t)
	}
}

// ForName resolves a configuration name such as "snappy" to a compressor.
func ForName(name string) (core.Compressor, error) {
	t, err := core.ParseCompressionType(name)
	if err != nil {
		return nil, err
	}
	return ForType(t)
}
