package core

import (
	"encoding/binary"
	"fmt"
	"time"
)

// FileHeader is the fixed header at the start of a container file.
type FileHeader struct {
	Magic          uint32
	Version        uint8
	CreatedAt      int64 // UnixNano timestamp
	CompressorType CompressionType
}

func (h *FileHeader) Size() int {
	return binary.Size(h)
}

// Validate checks the magic number and version against the expected ones.
func (h *FileHeader) Validate(magic uint32) error {
	if h.Magic != magic {
		return fmt.Errorf("invalid magic number: got %x, want %x", h.Magic, magic)
	}
	if h.Version != FormatVersion {
		return fmt.Errorf("unsupported format version: got %d, want %d", h.Version, FormatVersion)
	}
	return nil
}

// NewFileHeader creates a new header with the current time and specified magic number.
func NewFileHeader(magic uint32, compressorType CompressionType) FileHeader {
	return FileHeader{
		Magic:          magic,
		Version:        FormatVersion,
		CreatedAt:      time.Now().UnixNano(),
		CompressorType: compressorType,
	}
}
