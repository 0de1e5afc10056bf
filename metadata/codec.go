package metadata

import (
	"github.com/INLOpen/nexusnwb/core"
)

// Serialize writes the raw bytes of values contiguously into dst, in order,
// and returns the number of bytes written. dst must be large enough for the
// sum of the values' sizes.
func Serialize(dst []byte, values []*Value) (int, error) {
	total := 0
	for _, v := range values {
		total += v.DataSize()
	}
	if len(dst) < total {
		return 0, &core.SizeMismatchError{Expected: total, Got: len(dst)}
	}
	off := 0
	for _, v := range values {
		off += copy(dst[off:], v.data)
	}
	return off, nil
}

// Encode checks values against the schema, field by field, and returns the
// serialized buffer of exactly schema.TotalSize() bytes.
func Encode(schema *EventSchema, values []*Value) ([]byte, error) {
	descs := schema.Descriptors()
	if len(values) != len(descs) {
		return nil, core.Violation("Encode", "schema has %d fields, got %d values", len(descs), len(values))
	}
	for i, d := range descs {
		if values[i] == nil || !values[i].IsOfType(d) {
			return nil, core.Violation("Encode", "value %d does not match field %s", i, d)
		}
	}
	buf := make([]byte, schema.TotalSize())
	if _, err := Serialize(buf, values); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeInto is Encode without the allocation; dst must hold exactly
// schema.TotalSize() bytes.
func EncodeInto(dst []byte, schema *EventSchema, values []*Value) error {
	descs := schema.Descriptors()
	if len(values) != len(descs) {
		return core.Violation("EncodeInto", "schema has %d fields, got %d values", len(descs), len(values))
	}
	size := 0
	for i, d := range descs {
		if values[i] == nil || !values[i].IsOfType(d) {
			return core.Violation("EncodeInto", "value %d does not match field %s", i, d)
		}
		size += d.DataSize()
	}
	if len(dst) != size {
		return &core.SizeMismatchError{Expected: size, Got: len(dst)}
	}
	_, err := Serialize(dst, values)
	return err
}

// Deserialize slices src into one value per schema field. It fails without
// constructing any value when len(src) differs from schema.TotalSize().
func Deserialize(schema *EventSchema, src []byte) ([]*Value, error) {
	schema.mu.RLock()
	descs := schema.descriptors
	total := schema.totalSize
	schema.mu.RUnlock()

	if len(src) != total {
		return nil, &core.SizeMismatchError{Expected: total, Got: len(src)}
	}
	values := make([]*Value, len(descs))
	off := 0
	for i, d := range descs {
		size := d.DataSize()
		v := &Value{typ: d.typ, length: d.length, data: make([]byte, size)}
		copy(v.data, src[off:off+size])
		values[i] = v
		off += size
	}
	return values, nil
}
