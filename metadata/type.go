// Package metadata implements typed metadata for channels, electrodes and
// streamed events.
//
// A Descriptor declares a field: element Type, array Length, name and a human
// description. A Value owns exactly TypeSize(Type)*Length raw bytes bound to
// that declaration, and every typed access is checked against the binding.
// Holder attaches (descriptor, value) pairs to a stream, EventSchema declares
// the fields every event of a source carries, and Serialize/Deserialize move
// event values to and from the flat wire format.
//
// Wire format: fields in schema order, each exactly TypeSize*Length bytes,
// multi-byte elements little-endian, no padding.
package metadata

import "fmt"

// Type is the element type of a metadata field.
type Type uint8

const (
	CHAR Type = iota
	INT8
	UINT8
	INT16
	UINT16
	INT32
	UINT32
	INT64
	UINT64
	FLOAT
	DOUBLE
)

var typeNames = [...]string{
	CHAR:   "CHAR",
	INT8:   "INT8",
	UINT8:  "UINT8",
	INT16:  "INT16",
	UINT16: "UINT16",
	INT32:  "INT32",
	UINT32: "UINT32",
	INT64:  "INT64",
	UINT64: "UINT64",
	FLOAT:  "FLOAT",
	DOUBLE: "DOUBLE",
}

// TypeSize returns the size in bytes of one element of t, or 0 for an unknown type.
func TypeSize(t Type) int {
	switch t {
	case CHAR, INT8, UINT8:
		return 1
	case INT16, UINT16:
		return 2
	case INT32, UINT32, FLOAT:
		return 4
	case INT64, UINT64, DOUBLE:
		return 8
	default:
		return 0
	}
}

// Valid reports whether t is one of the defined element types.
func (t Type) Valid() bool {
	return TypeSize(t) > 0
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// ParseType maps a type name (as produced by String) back to a Type.
func ParseType(name string) (Type, error) {
	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("unknown metadata type %q", name)
}

// Element is the set of Go types that map onto a numeric metadata Type.
// CHAR has no Go element type; it is accessed as a string or as raw bytes.
type Element interface {
	int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | float32 | float64
}

// TypeOf returns the metadata Type that stores elements of T.
func TypeOf[T Element]() Type {
	var zero T
	switch any(zero).(type) {
	case int8:
		return INT8
	case uint8:
		return UINT8
	case int16:
		return INT16
	case uint16:
		return UINT16
	case int32:
		return INT32
	case uint32:
		return UINT32
	case int64:
		return INT64
	case uint64:
		return UINT64
	case float32:
		return FLOAT
	default:
		return DOUBLE
	}
}
