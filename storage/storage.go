// Package storage defines the backend the recording writer composes its
// container structure from: groups, chunked datasets that grow by appending
// rows, and typed attributes. The writer never touches a file or database
// directly; backends live in the sub-packages.
package storage

import (
	"errors"
	"fmt"

	"github.com/INLOpen/nexusnwb/metadata"
)

var (
	// ErrExists is returned when creating a group or dataset whose path is taken.
	ErrExists = errors.New("path already exists")
	// ErrNotFound is returned for operations on an unknown path.
	ErrNotFound = errors.New("path not found")
	// ErrNoParent is returned when the parent group of a path does not exist.
	ErrNoParent = errors.New("parent group does not exist")
	// ErrDatasetClosed is returned when appending to a closed dataset.
	ErrDatasetClosed = errors.New("dataset is closed")
	// ErrBackendClosed is returned by any operation on a closed backend.
	ErrBackendClosed = errors.New("backend is closed")
)

// Field is one column of a dataset row. Length is the number of elements; a
// CHAR field with Length 0 holds a variable-length string.
type Field struct {
	Name   string
	Type   metadata.Type
	Length int
}

// VarLen reports whether the field holds a variable-length string.
func (f Field) VarLen() bool {
	return f.Type == metadata.CHAR && f.Length == 0
}

// Size is the fixed byte size of the field, 0 for variable-length strings.
func (f Field) Size() int {
	return metadata.TypeSize(f.Type) * f.Length
}

// DatasetSpec describes the row layout and chunking of a dataset.
type DatasetSpec struct {
	Fields      []Field
	ChunkRows   int    // rows per chunk; the backend flushes a chunk when it fills
	Description string // free-form help text stored with the dataset
}

// Attribute is a typed (name, value) pair attached to a group or dataset.
type Attribute struct {
	Name  string
	Value *metadata.Value
}

// Backend creates the structure of one container.
//
// Paths are slash-separated and relative to the container root. Parents must
// exist before children are created.
type Backend interface {
	CreateGroup(path string) error
	CreateDataset(path string, spec DatasetSpec) (Dataset, error)
	SetAttribute(path string, attr Attribute) error
	// Unlink removes a group or dataset and everything below it.
	Unlink(path string) error
	// Location identifies the container, e.g. its file path.
	Location() string
	Close() error
}

// Dataset is an append-only chunked dataset.
type Dataset interface {
	Path() string
	Spec() DatasetSpec
	// AppendRows appends nRows encoded rows. For fixed-size layouts len(data)
	// must equal nRows*RowSize; variable-length strings are encoded as a
	// little-endian uint32 length followed by the bytes.
	AppendRows(data []byte, nRows int) error
	// Rows is the number of rows appended so far.
	Rows() uint64
	// Flush writes any partially filled chunk to the backend.
	Flush() error
	Close() error
}

// Validate checks a dataset spec for structural errors.
func (s DatasetSpec) Validate() error {
	if len(s.Fields) == 0 {
		return errors.New("dataset needs at least one field")
	}
	if s.ChunkRows <= 0 {
		return fmt.Errorf("chunk rows must be positive, got %d", s.ChunkRows)
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for i, f := range s.Fields {
		if !f.Type.Valid() {
			return fmt.Errorf("field %d (%s): invalid type %v", i, f.Name, f.Type)
		}
		if f.Length < 0 || (f.Length == 0 && f.Type != metadata.CHAR) {
			return fmt.Errorf("field %d (%s): invalid length %d", i, f.Name, f.Length)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate field name %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// RowSize returns the fixed size of a row, or 0 when the row contains a
// variable-length field.
func (s DatasetSpec) RowSize() int {
	size := 0
	for _, f := range s.Fields {
		if f.VarLen() {
			return 0
		}
		size += f.Size()
	}
	return size
}

// Simple returns a spec with a single field named "data".
func Simple(t metadata.Type, width, chunkRows int, description string) DatasetSpec {
	return DatasetSpec{
		Fields:      []Field{{Name: "data", Type: t, Length: width}},
		ChunkRows:   chunkRows,
		Description: description,
	}
}
