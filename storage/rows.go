package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// VarLenPrefixSize is the size of the length prefix of a variable-length string.
const VarLenPrefixSize = 4

// CheckRows validates that data holds exactly nRows rows of spec. For layouts
// with a variable-length field it returns the end offset of every row, which
// backends use to cut chunks on row boundaries; for fixed layouts it returns nil.
func CheckRows(spec DatasetSpec, data []byte, nRows int) ([]int, error) {
	if nRows < 0 {
		return nil, fmt.Errorf("negative row count %d", nRows)
	}
	if size := spec.RowSize(); size > 0 {
		if len(data) != nRows*size {
			return nil, fmt.Errorf("expected %d rows of %d bytes (%d), got %d bytes", nRows, size, nRows*size, len(data))
		}
		return nil, nil
	}

	ends := make([]int, 0, nRows)
	off := 0
	for r := 0; r < nRows; r++ {
		for _, f := range spec.Fields {
			if !f.VarLen() {
				off += f.Size()
				continue
			}
			if off+VarLenPrefixSize > len(data) {
				return nil, fmt.Errorf("row %d: truncated length prefix of field %s", r, f.Name)
			}
			n := int(binary.LittleEndian.Uint32(data[off:]))
			off += VarLenPrefixSize + n
		}
		if off > len(data) {
			return nil, fmt.Errorf("row %d overruns data (%d > %d bytes)", r, off, len(data))
		}
		ends = append(ends, off)
	}
	if off != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after %d rows", len(data)-off, nRows)
	}
	return ends, nil
}

// RowWriter encodes rows in the little-endian layout backends expect.
// The zero value is ready to use.
type RowWriter struct {
	buf []byte
}

func (w *RowWriter) Reset()        { w.buf = w.buf[:0] }
func (w *RowWriter) Bytes() []byte { return w.buf }
func (w *RowWriter) Len() int      { return len(w.buf) }

func (w *RowWriter) Uint8(v uint8) { w.buf = append(w.buf, v) }

func (w *RowWriter) Int32(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

func (w *RowWriter) Uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *RowWriter) Uint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *RowWriter) Float64(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *RowWriter) Int16s(vs []int16) {
	for _, v := range vs {
		w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(v))
	}
}

func (w *RowWriter) Float64s(vs []float64) {
	for _, v := range vs {
		w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
	}
}

// Raw appends pre-encoded bytes, e.g. a serialized metadata field.
func (w *RowWriter) Raw(b []byte) { w.buf = append(w.buf, b...) }

// String appends a variable-length string.
func (w *RowWriter) String(s string) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// RowReader decodes rows written by RowWriter. Reads past the end set Err.
type RowReader struct {
	data []byte
	off  int
	Err  error
}

func NewRowReader(data []byte) *RowReader {
	return &RowReader{data: data}
}

// Remaining returns the number of unread bytes.
func (r *RowReader) Remaining() int { return len(r.data) - r.off }

func (r *RowReader) take(n int) []byte {
	if r.Err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.Err = fmt.Errorf("row data truncated: need %d bytes at offset %d of %d", n, r.off, len(r.data))
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *RowReader) Uint8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *RowReader) Int16() int16 {
	if b := r.take(2); b != nil {
		return int16(binary.LittleEndian.Uint16(b))
	}
	return 0
}

func (r *RowReader) Int32() int32 {
	if b := r.take(4); b != nil {
		return int32(binary.LittleEndian.Uint32(b))
	}
	return 0
}

func (r *RowReader) Uint32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *RowReader) Uint64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *RowReader) Float64() float64 {
	return math.Float64frombits(r.Uint64())
}

func (r *RowReader) Raw(n int) []byte {
	return r.take(n)
}

func (r *RowReader) String() string {
	b := r.take(VarLenPrefixSize)
	if b == nil {
		return ""
	}
	return string(r.take(int(binary.LittleEndian.Uint32(b))))
}

// DecodeInt16s decodes a little-endian int16 array.
func DecodeInt16s(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return out
}

// DecodeFloat64s decodes a little-endian float64 array.
func DecodeFloat64s(data []byte) []float64 {
	out := make([]float64, len(data)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
	}
	return out
}
