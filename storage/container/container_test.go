package container

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/INLOpen/nexusnwb/compressors"
	"github.com/INLOpen/nexusnwb/core"
	"github.com/INLOpen/nexusnwb/metadata"
	"github.com/INLOpen/nexusnwb/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSample(t *testing.T, path string, c core.Compressor) {
	t.Helper()
	w, err := Create(Options{Path: path, Compressor: c, Preallocate: 1 << 16})
	require.NoError(t, err)

	require.NoError(t, w.CreateGroup("acquisition"))
	require.NoError(t, w.CreateGroup("acquisition/continuous"))
	require.NoError(t, w.SetAttribute("", storage.Attribute{Name: "format_version", Value: metadata.ScalarValue(uint16(1))}))

	data, err := w.CreateDataset("acquisition/continuous/data", storage.Simple(metadata.INT16, 2, 4, "samples"))
	require.NoError(t, err)
	var rw storage.RowWriter
	for i := 0; i < 10; i++ {
		rw.Reset()
		rw.Int16s([]int16{int16(i), int16(-i)})
		require.NoError(t, data.AppendRows(rw.Bytes(), 1))
	}
	require.NoError(t, w.SetAttribute("acquisition/continuous/data", storage.Attribute{Name: "bit_volts", Value: metadata.ScalarValue(float32(0.195))}))

	msgs, err := w.CreateDataset("acquisition/messages", storage.DatasetSpec{
		Fields: []storage.Field{
			{Name: "timestamp", Type: metadata.DOUBLE, Length: 1},
			{Name: "text", Type: metadata.CHAR},
		},
		ChunkRows: 2,
	})
	require.NoError(t, err)
	for i, text := range []string{"start", "odor on", "stop"} {
		rw.Reset()
		rw.Float64(float64(i) * 0.5)
		rw.String(text)
		require.NoError(t, msgs.AppendRows(rw.Bytes(), 1))
	}
	require.NoError(t, w.Close())
}

func TestContainer_RoundTrip(t *testing.T) {
	for _, name := range []string{"none", "snappy", "lz4", "zstd"} {
		t.Run(name, func(t *testing.T) {
			c, err := compressors.ForName(name)
			require.NoError(t, err)
			path := filepath.Join(t.TempDir(), "session"+core.ContainerFileSuffix)
			writeSample(t, path, c)

			r, err := Open(path, ReaderOptions{})
			require.NoError(t, err)
			defer r.Close()
			assert.Equal(t, c.Type(), r.Header().CompressorType)

			paths := make([]string, 0, len(r.Nodes()))
			for _, n := range r.Nodes() {
				paths = append(paths, n.Path)
			}
			assert.Equal(t, []string{"", "acquisition", "acquisition/continuous", "acquisition/continuous/data", "acquisition/messages"}, paths)

			raw, rows, err := r.ReadAll("acquisition/continuous/data")
			require.NoError(t, err)
			assert.Equal(t, uint64(10), rows)
			samples := storage.DecodeInt16s(raw)
			require.Len(t, samples, 20)
			assert.Equal(t, []int16{9, -9}, samples[18:])

			node, ok := r.Node("acquisition/continuous/data")
			require.True(t, ok)
			assert.Len(t, node.Chunks, 3, "10 rows in chunks of 4")
			assert.Equal(t, "samples", node.Spec.Description)

			v, ok := r.Attribute("acquisition/continuous/data", "bit_volts")
			require.True(t, ok)
			gain, err := metadata.Scalar[float32](v)
			require.NoError(t, err)
			assert.Equal(t, float32(0.195), gain)
			_, ok = r.Attribute("", "format_version")
			assert.True(t, ok)

			raw, rows, err = r.ReadAll("acquisition/messages")
			require.NoError(t, err)
			require.Equal(t, uint64(3), rows)
			rr := storage.NewRowReader(raw)
			var texts []string
			for i := 0; i < 3; i++ {
				rr.Float64()
				texts = append(texts, rr.String())
			}
			require.NoError(t, rr.Err)
			assert.Equal(t, []string{"start", "odor on", "stop"}, texts)

			report, err := r.Verify(context.Background())
			require.NoError(t, err)
			assert.Equal(t, VerifyReport{Datasets: 2, Chunks: 5, Rows: 13}, report)
		})
	}
}

func TestContainer_Unlink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unlink.nwb")
	w, err := Create(Options{Path: path})
	require.NoError(t, err)
	require.NoError(t, w.CreateGroup("rec"))
	ds, err := w.CreateDataset("rec/data", storage.Simple(metadata.UINT8, 1, 1, ""))
	require.NoError(t, err)
	require.NoError(t, ds.AppendRows([]byte{1, 2}, 2))
	require.NoError(t, w.Unlink("rec"))
	assert.ErrorIs(t, ds.AppendRows([]byte{3}, 1), storage.ErrDatasetClosed)
	require.NoError(t, w.CreateGroup("rec"), "unlinked path can be reused")
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.CreateGroup("late"), ErrClosed)
	require.NoError(t, w.Close())

	r, err := Open(path, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()
	_, ok := r.Node("rec/data")
	assert.False(t, ok)
	n, ok := r.Node("rec")
	require.True(t, ok)
	assert.Equal(t, storage.KindGroup, n.Kind)
}

func TestContainer_CreateExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exists.nwb")
	writeSample(t, path, nil)

	_, err := Create(Options{Path: path})
	assert.Error(t, err)

	w, err := Create(Options{Path: path, Overwrite: true})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	r, err := Open(path, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()
	assert.Len(t, r.Nodes(), 1)
}

func TestContainer_Corruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.nwb")
	writeSample(t, path, compressors.NewNoCompressionCompressor())

	r, err := Open(path, ReaderOptions{})
	require.NoError(t, err)
	node, _ := r.Node("acquisition/continuous/data")
	payloadAt := node.Chunks[1].Offset + RecordHeaderSize
	require.NoError(t, r.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	t.Run("flipped payload byte", func(t *testing.T) {
		bad := append([]byte(nil), content...)
		bad[payloadAt] ^= 0xFF
		badPath := filepath.Join(t.TempDir(), "flipped.nwb")
		require.NoError(t, os.WriteFile(badPath, bad, 0o644))

		r, err := Open(badPath, ReaderOptions{})
		require.NoError(t, err, "catalog is intact")
		defer r.Close()
		_, err = r.Verify(context.Background())
		assert.True(t, errors.Is(err, ErrCorrupted))
		_, _, err = r.ReadAll("acquisition/continuous/data")
		assert.True(t, errors.Is(err, ErrCorrupted))
		_, _, err = r.ReadAll("acquisition/messages")
		assert.NoError(t, err)
	})

	t.Run("truncated footer", func(t *testing.T) {
		badPath := filepath.Join(t.TempDir(), "truncated.nwb")
		require.NoError(t, os.WriteFile(badPath, content[:len(content)-3], 0o644))
		_, err := Open(badPath, ReaderOptions{})
		assert.True(t, errors.Is(err, ErrCorrupted))
	})

	t.Run("footer repeated past the catalog", func(t *testing.T) {
		footer := content[len(content)-FooterSize:]
		bad := append(append([]byte(nil), content...), footer...)
		badPath := filepath.Join(t.TempDir(), "repeated.nwb")
		require.NoError(t, os.WriteFile(badPath, bad, 0o644))
		_, err := Open(badPath, ReaderOptions{})
		assert.True(t, errors.Is(err, ErrCorrupted), "got %v", err)
	})

	t.Run("wrong magic number", func(t *testing.T) {
		bad := append([]byte(nil), content...)
		bad[0] ^= 0xFF
		badPath := filepath.Join(t.TempDir(), "magic.nwb")
		require.NoError(t, os.WriteFile(badPath, bad, 0o644))
		_, err := Open(badPath, ReaderOptions{})
		assert.Error(t, err)
	})
}

func TestOpen_FooterLayout(t *testing.T) {
	assert.Equal(t, CatalogOffsetSize+CatalogLenSize+len(MagicString), FooterSize)

	path := filepath.Join(t.TempDir(), "footer.nwb")
	writeSample(t, path, compressors.NewSnappyCompressor())
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, MagicString, string(content[len(content)-MagicStringLen:]))

	r, err := Open(path, ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, int64(len(content)), r.Size())
}

func TestCatalog_Checksum(t *testing.T) {
	c := &Catalog{Nodes: []*Node{{Path: "", Kind: storage.KindGroup}}}
	data, sum := c.Encode()
	decoded, err := DecodeCatalog(data, sum)
	require.NoError(t, err)
	require.Len(t, decoded.Nodes, 1)

	_, err = DecodeCatalog(data, sum+1)
	assert.True(t, errors.Is(err, ErrCorrupted))
}

func TestCreate_InsufficientSpace(t *testing.T) {
	_, err := Create(Options{Path: filepath.Join(t.TempDir(), "full.nwb"), MinFreeBytes: ^uint64(0)})
	require.Error(t, err)
}
