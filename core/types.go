package core

import (
	"bytes"
	"fmt"
	"strings"
)

// CompressionType identifies the compression algorithm applied to a chunk.
// It is stored in every chunk record so a reader knows how to decompress it.
type CompressionType byte

const (
	CompressionNone   CompressionType = 0
	CompressionSnappy CompressionType = 1
	CompressionLZ4    CompressionType = 2
	CompressionZSTD   CompressionType = 3
)

// Compressor defines the interface for chunk compression and decompression.
type Compressor interface {
	// Compress compresses the input data into a newly allocated slice.
	Compress(data []byte) ([]byte, error)
	// CompressTo resets dst and writes the compressed form of src into it.
	CompressTo(dst *bytes.Buffer, src []byte) error
	// Decompress restores a chunk. rawSize is the uncompressed length recorded
	// next to the chunk; implementations use it to size the output exactly.
	Decompress(data []byte, rawSize int) ([]byte, error)
	// Type returns the CompressionType identifier for this compressor.
	Type() CompressionType
}

// String returns the string representation of the CompressionType.
func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCompressionType maps a configuration name to a CompressionType.
func ParseCompressionType(name string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q", name)
	}
}

const (
	ChecksumSize = 4 // uint32 for CRC32 checksum
)
