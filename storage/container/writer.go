package container

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/INLOpen/nexusnwb/compressors"
	"github.com/INLOpen/nexusnwb/core"
	"github.com/INLOpen/nexusnwb/metrics"
	"github.com/INLOpen/nexusnwb/storage"
	"github.com/INLOpen/nexusnwb/sys"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Options configures a container writer.
type Options struct {
	Path string
	// Compressor for chunk payloads; nil stores them uncompressed.
	Compressor core.Compressor
	// Overwrite replaces an existing file instead of failing.
	Overwrite bool
	// Preallocate reserves this many bytes when the file is created.
	Preallocate int64
	// MinFreeBytes refuses to create the file when less space is free.
	MinFreeBytes uint64
	Logger       *slog.Logger
	Tracer       trace.Tracer
	Metrics      *metrics.Recorder
}

// Writer builds a container file. It implements storage.Backend; all
// datasets share the writer's file handle under its mutex.
type Writer struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	offset   int64
	closed   bool
	tree     *storage.Tree
	attrs    map[string][]storage.Attribute
	datasets map[string]*dataset
	nextID   uint32

	compressor core.Compressor
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *metrics.Recorder
}

var _ storage.Backend = (*Writer)(nil)

// Create creates the container file and writes its header.
func Create(opts Options) (*Writer, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Compressor == nil {
		opts.Compressor = compressors.NewNoCompressionCompressor()
	}
	logger := opts.Logger.With("component", "ContainerWriter", "path", opts.Path)

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", opts.Path, err)
	}
	if err := sys.EnsureFreeSpace(opts.Path, opts.MinFreeBytes); err != nil {
		return nil, err
	}

	flags := os.O_RDWR | os.O_CREATE
	if opts.Overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(opts.Path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create container file %s: %w", opts.Path, err)
	}

	if opts.Preallocate > 0 {
		if err := sys.Preallocate(file, opts.Preallocate); err != nil {
			if errors.Is(err, sys.ErrPreallocNotSupported) {
				logger.Debug("Preallocation not supported", "bytes", opts.Preallocate)
			} else {
				logger.Warn("Preallocation failed", "bytes", opts.Preallocate, "error", err)
			}
		}
	}

	header := core.NewFileHeader(core.ContainerMagicNumber, opts.Compressor.Type())
	if err := binary.Write(file, binary.LittleEndian, &header); err != nil {
		file.Close()
		os.Remove(opts.Path)
		return nil, fmt.Errorf("failed to write container header: %w", err)
	}

	logger.Info("Container created", "compression", opts.Compressor.Type())
	return &Writer{
		path:       opts.Path,
		file:       file,
		offset:     int64(header.Size()),
		tree:       storage.NewTree(),
		attrs:      make(map[string][]storage.Attribute),
		datasets:   make(map[string]*dataset),
		compressor: opts.Compressor,
		logger:     logger,
		tracer:     opts.Tracer,
		metrics:    opts.Metrics,
	}, nil
}

func (w *Writer) Location() string { return w.path }

func (w *Writer) CreateGroup(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.tree.Add(path, storage.KindGroup)
}

func (w *Writer) CreateDataset(path string, spec storage.DatasetSpec) (storage.Dataset, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}
	path = storage.Clean(path)
	if err := w.tree.Add(path, storage.KindDataset); err != nil {
		return nil, err
	}
	spec.Fields = append([]storage.Field(nil), spec.Fields...)
	ds := &dataset{w: w, id: w.nextID, path: path, spec: spec}
	ds.chunker = storage.NewChunker(spec, ds.writeChunk)
	w.nextID++
	w.datasets[path] = ds
	w.logger.Debug("Dataset created", "dataset", path, "id", ds.id, "chunk_rows", spec.ChunkRows)
	return ds, nil
}

func (w *Writer) SetAttribute(path string, attr storage.Attribute) error {
	if attr.Value == nil {
		return fmt.Errorf("attribute %s on %s has no value", attr.Name, path)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	path = storage.Clean(path)
	if _, ok := w.tree.Kind(path); !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	}
	attr.Value = attr.Value.Clone()
	list := w.attrs[path]
	for i := range list {
		if list[i].Name == attr.Name {
			list[i] = attr
			return nil
		}
	}
	w.attrs[path] = append(list, attr)
	return nil
}

// Unlink drops nodes from the catalog. Chunks they already wrote stay in the
// file but are no longer referenced.
func (w *Writer) Unlink(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	removed, err := w.tree.Remove(path)
	if err != nil {
		return err
	}
	for _, p := range removed {
		delete(w.attrs, p)
		if ds, ok := w.datasets[p]; ok {
			ds.closed = true
			delete(w.datasets, p)
		}
	}
	w.logger.Debug("Unlinked", "path", storage.Clean(path), "nodes", len(removed))
	return nil
}

// Close flushes every dataset, writes the catalog and footer, and closes the
// file.
func (w *Writer) Close() (err error) {
	var span trace.Span
	if w.tracer != nil {
		_, span = w.tracer.Start(context.Background(), "ContainerWriter.Close")
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		}()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	defer func() {
		if cerr := w.file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close container file: %w", cerr)
		}
	}()

	for _, ds := range w.datasets {
		if ds.closed {
			continue
		}
		if err := ds.chunker.Flush(); err != nil {
			return fmt.Errorf("failed to flush dataset %s: %w", ds.path, err)
		}
		ds.closed = true
	}

	catalog := w.buildCatalog()
	data, checksum := catalog.Encode()
	catalogOffset := w.offset

	buf := core.BufferPool.Get()
	defer core.BufferPool.Put(buf)
	buf.Write(data)
	binary.Write(buf, binary.LittleEndian, checksum)
	binary.Write(buf, binary.LittleEndian, uint64(catalogOffset))
	binary.Write(buf, binary.LittleEndian, uint32(len(data)))
	buf.WriteString(MagicString)

	if _, err := w.file.WriteAt(buf.Bytes(), catalogOffset); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	w.offset += int64(buf.Len())
	// Preallocated space beyond the footer is released.
	if err := w.file.Truncate(w.offset); err != nil {
		return fmt.Errorf("failed to truncate container: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync container: %w", err)
	}
	if span != nil {
		span.SetAttributes(
			attribute.Int("container.nodes", len(catalog.Nodes)),
			attribute.Int64("container.size_bytes", w.offset),
		)
	}
	w.logger.Info("Container closed", "nodes", len(catalog.Nodes), "size_bytes", w.offset)
	return nil
}

// buildCatalog is called with w.mu held.
func (w *Writer) buildCatalog() *Catalog {
	c := &Catalog{}
	c.Nodes = append(c.Nodes, &Node{Path: "", Kind: storage.KindGroup, Attributes: w.attrs[""]})
	for _, p := range w.tree.Paths() {
		kind, _ := w.tree.Kind(p)
		n := &Node{Path: p, Kind: kind, Attributes: w.attrs[p]}
		if ds, ok := w.datasets[p]; ok {
			n.ID = ds.id
			n.Spec = ds.spec
			n.Rows = ds.flushedRows
			n.Chunks = ds.chunks
		}
		c.Nodes = append(c.Nodes, n)
	}
	return c
}

// dataset state is guarded by w.mu.
type dataset struct {
	w       *Writer
	id      uint32
	path    string
	spec    storage.DatasetSpec
	chunker *storage.Chunker

	rows        uint64
	flushedRows uint64
	chunks      []ChunkRef
	closed      bool
}

var _ storage.Dataset = (*dataset)(nil)

func (d *dataset) Path() string              { return d.path }
func (d *dataset) Spec() storage.DatasetSpec { return d.spec }

func (d *dataset) AppendRows(data []byte, nRows int) error {
	d.w.mu.Lock()
	defer d.w.mu.Unlock()
	if d.closed || d.w.closed {
		return fmt.Errorf("%w: %s", storage.ErrDatasetClosed, d.path)
	}
	if err := d.chunker.Append(data, nRows); err != nil {
		return fmt.Errorf("append to %s: %w", d.path, err)
	}
	d.rows += uint64(nRows)
	return nil
}

func (d *dataset) Rows() uint64 {
	d.w.mu.Lock()
	defer d.w.mu.Unlock()
	return d.rows
}

func (d *dataset) Flush() error {
	d.w.mu.Lock()
	defer d.w.mu.Unlock()
	if d.closed {
		return nil
	}
	return d.chunker.Flush()
}

func (d *dataset) Close() error {
	d.w.mu.Lock()
	defer d.w.mu.Unlock()
	if d.closed {
		return nil
	}
	if err := d.chunker.Flush(); err != nil {
		return err
	}
	d.closed = true
	return nil
}

// writeChunk appends one chunk record to the file. Called with w.mu held.
func (d *dataset) writeChunk(raw []byte, rows int) error {
	w := d.w
	var span trace.Span
	if w.tracer != nil {
		_, span = w.tracer.Start(context.Background(), "ContainerWriter.writeChunk")
		defer span.End()
	}

	compressed := core.BufferPool.Get()
	defer core.BufferPool.Put(compressed)
	if err := w.compressor.CompressTo(compressed, raw); err != nil {
		return fmt.Errorf("failed to compress chunk of %s: %w", d.path, err)
	}
	payload := compressed.Bytes()
	checksum := crc32.ChecksumIEEE(payload)

	record := core.BufferPool.Get()
	defer core.BufferPool.Put(record)
	binary.Write(record, binary.LittleEndian, d.id)
	binary.Write(record, binary.LittleEndian, uint32(rows))
	record.WriteByte(byte(w.compressor.Type()))
	binary.Write(record, binary.LittleEndian, uint32(len(raw)))
	binary.Write(record, binary.LittleEndian, checksum)
	binary.Write(record, binary.LittleEndian, uint32(len(payload)))
	record.Write(payload)

	offset := w.offset
	if _, err := w.file.WriteAt(record.Bytes(), offset); err != nil {
		w.logger.Error("Failed to write chunk", "dataset", d.path, "offset", offset, "error", err)
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return fmt.Errorf("failed to write chunk of %s at offset %d: %w", d.path, offset, err)
	}
	w.offset += int64(record.Len())
	d.chunks = append(d.chunks, ChunkRef{Offset: offset, Rows: uint32(rows)})
	d.flushedRows += uint64(rows)
	w.metrics.ChunkFlushed(BackendName, len(payload))

	if span != nil {
		span.SetAttributes(
			attribute.String("container.dataset", d.path),
			attribute.Int64("container.chunk.offset", offset),
			attribute.Int("container.chunk.rows", rows),
			attribute.Int("container.chunk.raw_len_bytes", len(raw)),
			attribute.Int("container.chunk.stored_len_bytes", len(payload)),
		)
	}
	return nil
}
