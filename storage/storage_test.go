package storage

import (
	"testing"

	"github.com/INLOpen/nexusnwb/core"
	"github.com/INLOpen/nexusnwb/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetSpec_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		spec    DatasetSpec
		wantErr bool
	}{
		{"simple", Simple(metadata.INT16, 4, 16, ""), false},
		{"var-len string", DatasetSpec{Fields: []Field{{Name: "text", Type: metadata.CHAR}}, ChunkRows: 1}, false},
		{"no fields", DatasetSpec{ChunkRows: 1}, true},
		{"zero chunk", Simple(metadata.INT16, 4, 0, ""), true},
		{"zero length numeric", Simple(metadata.INT32, 0, 8, ""), true},
		{"bad type", Simple(metadata.Type(50), 1, 8, ""), true},
		{"duplicate field", DatasetSpec{Fields: []Field{
			{Name: "a", Type: metadata.UINT8, Length: 1},
			{Name: "a", Type: metadata.UINT8, Length: 1},
		}, ChunkRows: 1}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckRows_Fixed(t *testing.T) {
	spec := DatasetSpec{Fields: []Field{
		{Name: "data", Type: metadata.INT16, Length: 3},
		{Name: "ts", Type: metadata.DOUBLE, Length: 1},
	}, ChunkRows: 4}
	require.Equal(t, 14, spec.RowSize())

	ends, err := CheckRows(spec, make([]byte, 28), 2)
	require.NoError(t, err)
	assert.Nil(t, ends)

	_, err = CheckRows(spec, make([]byte, 27), 2)
	assert.Error(t, err)
	_, err = CheckRows(spec, nil, -1)
	assert.Error(t, err)
}

func TestCheckRows_VarLen(t *testing.T) {
	spec := DatasetSpec{Fields: []Field{
		{Name: "ts", Type: metadata.DOUBLE, Length: 1},
		{Name: "text", Type: metadata.CHAR},
	}, ChunkRows: 4}
	require.Equal(t, 0, spec.RowSize())

	var w RowWriter
	w.Float64(1.5)
	w.String("hello")
	w.Float64(2.5)
	w.String("")
	ends, err := CheckRows(spec, w.Bytes(), 2)
	require.NoError(t, err)
	assert.Equal(t, []int{17, 29}, ends)

	_, err = CheckRows(spec, w.Bytes(), 1)
	assert.Error(t, err, "trailing bytes")
	_, err = CheckRows(spec, w.Bytes()[:20], 2)
	assert.Error(t, err, "truncated")

	r := NewRowReader(w.Bytes())
	assert.Equal(t, 1.5, r.Float64())
	assert.Equal(t, "hello", r.String())
	assert.Equal(t, 2.5, r.Float64())
	assert.Equal(t, "", r.String())
	require.NoError(t, r.Err)
	assert.Equal(t, 0, r.Remaining())

	r.Uint8()
	assert.Error(t, r.Err)
}

func TestRowHelpers(t *testing.T) {
	var w RowWriter
	w.Int16s([]int16{-1, 2, 32767})
	assert.Equal(t, []int16{-1, 2, 32767}, DecodeInt16s(w.Bytes()))

	w.Reset()
	w.Float64s([]float64{0.25, -3})
	assert.Equal(t, []float64{0.25, -3}, DecodeFloat64s(w.Bytes()))

	w.Reset()
	w.Uint8(7)
	w.Int32(-9)
	w.Uint64(1 << 40)
	w.Raw([]byte{0xAA, 0xBB})
	r := NewRowReader(w.Bytes())
	assert.Equal(t, uint8(7), r.Uint8())
	assert.Equal(t, int32(-9), r.Int32())
	assert.Equal(t, uint64(1<<40), r.Uint64())
	assert.Equal(t, []byte{0xAA, 0xBB}, r.Raw(2))
	require.NoError(t, r.Err)
}

func TestTree(t *testing.T) {
	tree := NewTree()
	require.NoError(t, tree.Add("acquisition", KindGroup))
	require.NoError(t, tree.Add("/acquisition/timeseries/", KindGroup))
	require.NoError(t, tree.Add("acquisition/timeseries/data", KindDataset))

	assert.ErrorIs(t, tree.Add("acquisition", KindGroup), ErrExists)
	assert.ErrorIs(t, tree.Add("", KindGroup), ErrExists)
	assert.ErrorIs(t, tree.Add("missing/child", KindGroup), ErrNoParent)
	assert.ErrorIs(t, tree.Add("acquisition/timeseries/data/x", KindGroup), ErrNoParent, "datasets have no children")
	err := tree.Add("acquisition/bad name", KindGroup)
	assert.True(t, core.IsValidationError(err), "got %v", err)
	assert.Error(t, tree.Add("acquisition/.hidden", KindDataset))

	kind, ok := tree.Kind("")
	assert.True(t, ok)
	assert.Equal(t, KindGroup, kind)
	kind, ok = tree.Kind("acquisition/timeseries/data")
	assert.True(t, ok)
	assert.Equal(t, KindDataset, kind)

	assert.Equal(t, []string{"acquisition", "acquisition/timeseries", "acquisition/timeseries/data"}, tree.Paths())

	removed, err := tree.Remove("acquisition/timeseries")
	require.NoError(t, err)
	assert.Equal(t, []string{"acquisition/timeseries/data", "acquisition/timeseries"}, removed)
	assert.Equal(t, 1, tree.Len())

	_, err = tree.Remove("acquisition/timeseries")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tree.Remove("")
	assert.Error(t, err)
}

func TestChunker(t *testing.T) {
	type chunk struct {
		data []int16
		rows int
	}
	var chunks []chunk
	spec := Simple(metadata.INT16, 1, 4, "")
	c := NewChunker(spec, func(data []byte, rows int) error {
		chunks = append(chunks, chunk{DecodeInt16s(data), rows})
		return nil
	})

	var w RowWriter
	for _, batch := range [][]int16{{1, 2, 3}, {4, 5}, {6, 7, 8, 9, 10}} {
		w.Reset()
		w.Int16s(batch)
		require.NoError(t, c.Append(w.Bytes(), len(batch)))
	}
	require.Len(t, chunks, 2)
	assert.Equal(t, chunk{[]int16{1, 2, 3, 4}, 4}, chunks[0])
	assert.Equal(t, chunk{[]int16{5, 6, 7, 8}, 4}, chunks[1])
	assert.Equal(t, 2, c.Pending())

	require.NoError(t, c.Flush())
	require.Len(t, chunks, 3)
	assert.Equal(t, chunk{[]int16{9, 10}, 2}, chunks[2])
	assert.Equal(t, 0, c.Pending())
	require.NoError(t, c.Flush())
	assert.Len(t, chunks, 3)

	assert.Error(t, c.Append([]byte{1}, 1))
}

func TestChunker_VarLen(t *testing.T) {
	spec := DatasetSpec{Fields: []Field{{Name: "text", Type: metadata.CHAR}}, ChunkRows: 2}
	var got []string
	c := NewChunker(spec, func(data []byte, rows int) error {
		r := NewRowReader(data)
		for i := 0; i < rows; i++ {
			got = append(got, r.String())
		}
		return r.Err
	})
	var w RowWriter
	w.String("a")
	w.String("bb")
	w.String("ccc")
	require.NoError(t, c.Append(w.Bytes(), 3))
	assert.Equal(t, []string{"a", "bb"}, got)
	require.NoError(t, c.Flush())
	assert.Equal(t, []string{"a", "bb", "ccc"}, got)
}
