// Package container stores a recording in a single chunked file.
//
// Layout:
//
//	[core.FileHeader]
//	[chunk record]...      header + (compressed) payload, see RecordHeaderSize
//	[catalog][crc32 u32]   groups, datasets, attributes and the chunk index
//	[footer]               catalog offset u64, catalog length u32, MagicString
//
// The catalog is only written on Close; a file without a valid footer was not
// closed cleanly.
package container

import (
	"errors"

	"github.com/INLOpen/nexusnwb/core"
)

// MagicString terminates every container file.
const MagicString = core.ContainerMagicString

// MagicStringLen is the length of MagicString.
const MagicStringLen = core.ContainerMagicStringLen

// Size constants of the on-disk structures.
const (
	DatasetIDSize   = 4 // uint32
	RowCountSize    = 4 // uint32
	CompressionSize = 1 // byte
	RawLenSize      = 4 // uint32 uncompressed payload length
	PayloadLenSize  = 4 // uint32 stored payload length

	// RecordHeaderSize is the size of a chunk record header:
	// dataset id, rows, compression, raw length, crc32, payload length.
	RecordHeaderSize = DatasetIDSize + RowCountSize + CompressionSize + RawLenSize + core.ChecksumSize + PayloadLenSize

	CatalogOffsetSize = 8 // uint64
	CatalogLenSize    = 4 // uint32

	FooterFixedSize = CatalogOffsetSize + CatalogLenSize
	FooterSize      = FooterFixedSize + MagicStringLen
)

var (
	// ErrCorrupted is returned when a checksum, length or magic string does not match.
	ErrCorrupted = errors.New("container data is corrupted")
	// ErrClosed is returned by operations on a closed writer or reader.
	ErrClosed = errors.New("container is closed")
)

// BackendName labels container metrics.
const BackendName = "container"
