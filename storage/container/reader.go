package container

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/INLOpen/nexusnwb/compressors"
	"github.com/INLOpen/nexusnwb/core"
	"github.com/INLOpen/nexusnwb/metadata"
	"github.com/INLOpen/nexusnwb/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ReaderOptions configures Open.
type ReaderOptions struct {
	Logger *slog.Logger
	Tracer trace.Tracer
}

// Reader gives read access to a closed container file. ReadChunk, ReadAll and
// Verify are safe for concurrent use.
type Reader struct {
	path    string
	file    *os.File
	size    int64
	header  core.FileHeader
	catalog *Catalog
	logger  *slog.Logger
	tracer  trace.Tracer
	closed  atomic.Bool
}

// Open loads the header, footer and catalog of a container file.
func Open(path string, opts ReaderOptions) (r *Reader, err error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	var span trace.Span
	if opts.Tracer != nil {
		_, span = opts.Tracer.Start(context.Background(), "ContainerReader.Open")
		span.SetAttributes(attribute.String("container.path", path))
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}()
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open container %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			file.Close()
		}
	}()

	var header core.FileHeader
	headerBytes := make([]byte, header.Size())
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read container header from %s: %w", path, err)
	}
	if err := binary.Read(bytes.NewReader(headerBytes), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to parse container header: %w", err)
	}
	if err := header.Validate(core.ContainerMagicNumber); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat container %s: %w", path, err)
	}
	size := stat.Size()
	minSize := int64(header.Size() + core.ChecksumSize + FooterSize)
	if size < minSize {
		return nil, fmt.Errorf("container %s is too small to be valid (size: %d, min: %d): %w", path, size, minSize, ErrCorrupted)
	}

	footer := make([]byte, FooterSize)
	if _, err := file.ReadAt(footer, size-int64(FooterSize)); err != nil {
		return nil, fmt.Errorf("failed to read footer of %s: %w", path, err)
	}
	if magic := string(footer[FooterFixedSize:]); magic != MagicString {
		return nil, fmt.Errorf("invalid magic string in %s: got %q, want %q: %w", path, magic, MagicString, ErrCorrupted)
	}
	catalogOffset := int64(binary.LittleEndian.Uint64(footer))
	catalogLen := int64(binary.LittleEndian.Uint32(footer[CatalogOffsetSize:]))
	if catalogOffset < int64(header.Size()) || catalogOffset+catalogLen+core.ChecksumSize != size-int64(FooterSize) {
		return nil, fmt.Errorf("catalog bounds %d+%d do not match file size %d: %w", catalogOffset, catalogLen, size, ErrCorrupted)
	}

	catalogBytes := make([]byte, catalogLen+core.ChecksumSize)
	if _, err := file.ReadAt(catalogBytes, catalogOffset); err != nil {
		return nil, fmt.Errorf("failed to read catalog of %s: %w", path, err)
	}
	checksum := binary.LittleEndian.Uint32(catalogBytes[catalogLen:])
	catalog, err := DecodeCatalog(catalogBytes[:catalogLen], checksum)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Reader{
		path:    path,
		file:    file,
		size:    size,
		header:  header,
		catalog: catalog,
		logger:  opts.Logger.With("component", "ContainerReader", "path", path),
		tracer:  opts.Tracer,
	}, nil
}

func (r *Reader) Location() string        { return r.path }
func (r *Reader) Size() int64             { return r.size }
func (r *Reader) Header() core.FileHeader { return r.header }

// Nodes returns every catalog node, root first, in path order.
func (r *Reader) Nodes() []*Node { return r.catalog.Nodes }

// Node returns the catalog node at path.
func (r *Reader) Node(path string) (*Node, bool) { return r.catalog.Find(path) }

// Attribute returns the named attribute of path.
func (r *Reader) Attribute(path, name string) (*metadata.Value, bool) {
	n, ok := r.catalog.Find(path)
	if !ok {
		return nil, false
	}
	for _, a := range n.Attributes {
		if a.Name == name {
			return a.Value.Clone(), true
		}
	}
	return nil, false
}

// ReadChunk reads, verifies and decompresses one chunk of node.
func (r *Reader) ReadChunk(n *Node, ref ChunkRef) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	hdr := make([]byte, RecordHeaderSize)
	if _, err := r.file.ReadAt(hdr, ref.Offset); err != nil {
		return nil, fmt.Errorf("failed to read chunk header at %d: %w", ref.Offset, err)
	}
	id := binary.LittleEndian.Uint32(hdr[0:])
	rows := binary.LittleEndian.Uint32(hdr[4:])
	compression := core.CompressionType(hdr[8])
	rawLen := int(binary.LittleEndian.Uint32(hdr[9:]))
	checksum := binary.LittleEndian.Uint32(hdr[13:])
	storedLen := int64(binary.LittleEndian.Uint32(hdr[17:]))

	if id != n.ID || rows != ref.Rows {
		return nil, fmt.Errorf("chunk at %d belongs to dataset %d (%d rows), catalog says %d (%d rows): %w", ref.Offset, id, rows, n.ID, ref.Rows, ErrCorrupted)
	}
	if ref.Offset+RecordHeaderSize+storedLen > r.size {
		return nil, fmt.Errorf("chunk at %d overruns file: %w", ref.Offset, ErrCorrupted)
	}
	payload := make([]byte, storedLen)
	if _, err := r.file.ReadAt(payload, ref.Offset+RecordHeaderSize); err != nil {
		return nil, fmt.Errorf("failed to read chunk payload at %d: %w", ref.Offset, err)
	}
	if got := crc32.ChecksumIEEE(payload); got != checksum {
		return nil, fmt.Errorf("chunk at %d of %s: checksum mismatch (stored %08x, computed %08x): %w", ref.Offset, n.Path, checksum, got, ErrCorrupted)
	}
	c, err := compressors.ForType(compression)
	if err != nil {
		return nil, fmt.Errorf("chunk at %d: %w", ref.Offset, err)
	}
	raw, err := c.Decompress(payload, rawLen)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress chunk at %d: %v: %w", ref.Offset, err, ErrCorrupted)
	}
	if _, err := storage.CheckRows(n.Spec, raw, int(rows)); err != nil {
		return nil, fmt.Errorf("chunk at %d: %v: %w", ref.Offset, err, ErrCorrupted)
	}
	return raw, nil
}

// ReadAll returns every row of the dataset at path and the row count.
func (r *Reader) ReadAll(path string) ([]byte, uint64, error) {
	n, ok := r.catalog.Find(path)
	if !ok || n.Kind != storage.KindDataset {
		return nil, 0, fmt.Errorf("%w: dataset %s", storage.ErrNotFound, path)
	}
	var out []byte
	for _, ref := range n.Chunks {
		raw, err := r.ReadChunk(n, ref)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, raw...)
	}
	return out, n.Rows, nil
}

// VerifyReport summarizes a Verify run.
type VerifyReport struct {
	Datasets int
	Chunks   int
	Rows     uint64
}

// Verify reads and checks every chunk of every dataset concurrently. It stops
// at the first corrupted chunk.
func (r *Reader) Verify(ctx context.Context) (report VerifyReport, err error) {
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "ContainerReader.Verify")
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, n := range r.catalog.Nodes {
		if n.Kind != storage.KindDataset {
			continue
		}
		report.Datasets++
		var rows uint64
		for _, ref := range n.Chunks {
			rows += uint64(ref.Rows)
			report.Chunks++
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				_, err := r.ReadChunk(n, ref)
				return err
			})
		}
		if rows != n.Rows {
			g.Go(func() error {
				return fmt.Errorf("dataset %s: chunks hold %d rows, catalog says %d: %w", n.Path, rows, n.Rows, ErrCorrupted)
			})
		}
		report.Rows += n.Rows
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	r.logger.Debug("Container verified", "datasets", report.Datasets, "chunks", report.Chunks)
	return report, nil
}

func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.file.Close()
}
