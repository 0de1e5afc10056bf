package metadata

import (
	"bytes"
	"encoding/binary"
	"math"
	"strings"

	"github.com/INLOpen/nexusnwb/core"
)

// Value holds the raw bytes of one metadata field, bound at construction to
// a Type and Length. Every typed access is checked against that binding.
type Value struct {
	typ    Type
	length int
	data   []byte
}

// NewValue creates a zero-filled value.
func NewValue(t Type, length int) (*Value, error) {
	if !t.Valid() {
		return nil, core.Violation("NewValue", "invalid type %v", t)
	}
	if length < 1 {
		return nil, core.Violation("NewValue", "length must be at least 1, got %d", length)
	}
	return &Value{typ: t, length: length, data: make([]byte, TypeSize(t)*length)}, nil
}

// NewValueFrom creates a value pre-filled from data, which must hold exactly
// TypeSize(t)*length bytes. The bytes are copied.
func NewValueFrom(t Type, length int, data []byte) (*Value, error) {
	v, err := NewValue(t, length)
	if err != nil {
		return nil, err
	}
	if len(data) != len(v.data) {
		return nil, core.Violation("NewValueFrom", "%s[%d] needs %d bytes, got %d", t, length, len(v.data), len(data))
	}
	copy(v.data, data)
	return v, nil
}

// NewValueFor creates a zero-filled value with the type and length of desc.
func NewValueFor(desc *Descriptor) (*Value, error) {
	if desc == nil {
		return nil, core.Violation("NewValueFor", "descriptor is required")
	}
	return &Value{typ: desc.typ, length: desc.length, data: make([]byte, desc.DataSize())}, nil
}

// NewValueForWithData creates a value with the type and length of desc, pre-filled from data.
func NewValueForWithData(desc *Descriptor, data []byte) (*Value, error) {
	if desc == nil {
		return nil, core.Violation("NewValueForWithData", "descriptor is required")
	}
	return NewValueFrom(desc.typ, desc.length, data)
}

func (v *Value) Type() Type    { return v.typ }
func (v *Value) Length() int   { return v.length }
func (v *Value) DataSize() int { return len(v.data) }

// IsOfType reports whether v has the type and length declared by desc.
func (v *Value) IsOfType(desc *Descriptor) bool {
	return desc != nil && v.typ == desc.typ && v.length == desc.length
}

// Bytes returns a copy of the raw buffer.
func (v *Value) Bytes() []byte {
	out := make([]byte, len(v.data))
	copy(out, v.data)
	return out
}

// SetBytes overwrites the raw buffer. len(data) must equal DataSize.
func (v *Value) SetBytes(data []byte) error {
	if len(data) != len(v.data) {
		return core.Violation("SetBytes", "%s[%d] needs %d bytes, got %d", v.typ, v.length, len(v.data), len(data))
	}
	copy(v.data, data)
	return nil
}

// Clone returns an independent copy of v.
func (v *Value) Clone() *Value {
	return &Value{typ: v.typ, length: v.length, data: v.Bytes()}
}

// CopyFrom overwrites v with the bytes of other. Both must share type and length.
func (v *Value) CopyFrom(other *Value) error {
	if other.typ != v.typ || other.length != v.length {
		return core.Violation("CopyFrom", "cannot assign %s[%d] to %s[%d]", other.typ, other.length, v.typ, v.length)
	}
	copy(v.data, other.data)
	return nil
}

// Equal reports whether both values share type, length and bytes.
func (v *Value) Equal(other *Value) bool {
	return other != nil && v.typ == other.typ && v.length == other.length && bytes.Equal(v.data, other.data)
}

// SetString stores s in a CHAR value. s may hold at most Length-1 bytes; the
// remainder of the buffer is zeroed.
func (v *Value) SetString(s string) error {
	if v.typ != CHAR {
		return core.Violation("SetString", "value is %s, not CHAR", v.typ)
	}
	if len(s) > v.length-1 {
		return core.Violation("SetString", "string of %d bytes does not fit CHAR[%d]", len(s), v.length)
	}
	if i := strings.IndexByte(s, 0); i >= 0 {
		return core.Violation("SetString", "string contains NUL at byte %d", i)
	}
	n := copy(v.data, s)
	clear(v.data[n:])
	return nil
}

// GetString returns the text of a CHAR value up to the first NUL.
func (v *Value) GetString() (string, error) {
	if v.typ != CHAR {
		return "", core.Violation("GetString", "value is %s, not CHAR", v.typ)
	}
	if i := bytes.IndexByte(v.data, 0); i >= 0 {
		return string(v.data[:i]), nil
	}
	return string(v.data), nil
}

// SetScalar stores x in a single-element value whose type matches T.
func SetScalar[T Element](v *Value, x T) error {
	if err := v.check("SetScalar", TypeOf[T](), 1); err != nil {
		return err
	}
	putElement(v.data, x)
	return nil
}

// Scalar reads a single-element value whose type matches T.
func Scalar[T Element](v *Value) (T, error) {
	var zero T
	if err := v.check("Scalar", TypeOf[T](), 1); err != nil {
		return zero, err
	}
	return getElement[T](v.data), nil
}

// SetArray stores xs. len(xs) must equal the value's Length.
func SetArray[T Element](v *Value, xs []T) error {
	if err := v.check("SetArray", TypeOf[T](), len(xs)); err != nil {
		return err
	}
	size := TypeSize(v.typ)
	for i, x := range xs {
		putElement(v.data[i*size:], x)
	}
	return nil
}

// Array reads all elements of a value whose type matches T.
func Array[T Element](v *Value) ([]T, error) {
	if err := v.check("Array", TypeOf[T](), v.length); err != nil {
		return nil, err
	}
	size := TypeSize(v.typ)
	out := make([]T, v.length)
	for i := range out {
		out[i] = getElement[T](v.data[i*size:])
	}
	return out, nil
}

// ArrayInto reads all elements into dst, which must have exactly Length slots.
func ArrayInto[T Element](v *Value, dst []T) error {
	if err := v.check("ArrayInto", TypeOf[T](), len(dst)); err != nil {
		return err
	}
	size := TypeSize(v.typ)
	for i := range dst {
		dst[i] = getElement[T](v.data[i*size:])
	}
	return nil
}

// ScalarValue is a convenience constructor for a single-element value.
func ScalarValue[T Element](x T) *Value {
	t := TypeOf[T]()
	v := &Value{typ: t, length: 1, data: make([]byte, TypeSize(t))}
	putElement(v.data, x)
	return v
}

// ArrayValue is a convenience constructor for an array value. xs must not be empty.
func ArrayValue[T Element](xs []T) (*Value, error) {
	v, err := NewValue(TypeOf[T](), len(xs))
	if err != nil {
		return nil, err
	}
	return v, SetArray(v, xs)
}

// StringValue creates a CHAR value of the given capacity holding s.
func StringValue(s string, capacity int) (*Value, error) {
	v, err := NewValue(CHAR, capacity)
	if err != nil {
		return nil, err
	}
	return v, v.SetString(s)
}

func (v *Value) check(op string, t Type, length int) error {
	if v.typ != t {
		return core.Violation(op, "value is %s, accessed as %s", v.typ, t)
	}
	if v.length != length {
		return core.Violation(op, "value has length %d, accessed with length %d", v.length, length)
	}
	return nil
}

func putElement[T Element](b []byte, x T) {
	switch e := any(x).(type) {
	case int8:
		b[0] = byte(e)
	case uint8:
		b[0] = e
	case int16:
		binary.LittleEndian.PutUint16(b, uint16(e))
	case uint16:
		binary.LittleEndian.PutUint16(b, e)
	case int32:
		binary.LittleEndian.PutUint32(b, uint32(e))
	case uint32:
		binary.LittleEndian.PutUint32(b, e)
	case int64:
		binary.LittleEndian.PutUint64(b, uint64(e))
	case uint64:
		binary.LittleEndian.PutUint64(b, e)
	case float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(e))
	case float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(e))
	}
}

func getElement[T Element](b []byte) T {
	var out T
	switch p := any(&out).(type) {
	case *int8:
		*p = int8(b[0])
	case *uint8:
		*p = b[0]
	case *int16:
		*p = int16(binary.LittleEndian.Uint16(b))
	case *uint16:
		*p = binary.LittleEndian.Uint16(b)
	case *int32:
		*p = int32(binary.LittleEndian.Uint32(b))
	case *uint32:
		*p = binary.LittleEndian.Uint32(b)
	case *int64:
		*p = int64(binary.LittleEndian.Uint64(b))
	case *uint64:
		*p = binary.LittleEndian.Uint64(b)
	case *float32:
		*p = math.Float32frombits(binary.LittleEndian.Uint32(b))
	case *float64:
		*p = math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return out
}
