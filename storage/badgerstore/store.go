// Package badgerstore keeps a recording in a badger key-value database. Each
// chunk is one key, so recordings can be read back while another session is
// appended and survive a crash up to the last flushed chunk.
package badgerstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/INLOpen/nexusnwb/compressors"
	"github.com/INLOpen/nexusnwb/core"
	"github.com/INLOpen/nexusnwb/metadata"
	"github.com/INLOpen/nexusnwb/metrics"
	"github.com/INLOpen/nexusnwb/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BackendName labels badger metrics.
const BackendName = "badger"

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("badger store is closed")

// Options configures Open.
type Options struct {
	Dir string
	// InMemory keeps the database in memory; Dir is ignored.
	InMemory bool
	// Compressor for chunk payloads; nil stores them uncompressed.
	Compressor core.Compressor
	// BadgerOptions overrides the database options derived from Dir.
	BadgerOptions *badger.Options
	Logger        *slog.Logger
	Tracer        trace.Tracer
	Metrics       *metrics.Recorder
}

// Store implements storage.Backend on badger.
type Store struct {
	mu       sync.Mutex
	db       *badger.DB
	location string
	closed   bool
	tree     *storage.Tree
	nodes    map[string]*nodeRecord
	datasets map[string]*dataset
	nextID   uint32

	compressor core.Compressor
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *metrics.Recorder
}

var _ storage.Backend = (*Store)(nil)

// Open opens or creates a store. Existing groups and datasets are loaded and
// can be read; new datasets are appended next to them.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Compressor == nil {
		opts.Compressor = compressors.NewNoCompressionCompressor()
	}

	var bopts badger.Options
	if opts.BadgerOptions != nil {
		bopts = *opts.BadgerOptions
	} else {
		if opts.InMemory {
			bopts = badger.DefaultOptions("").WithInMemory(true)
		} else {
			bopts = badger.DefaultOptions(opts.Dir)
		}
		// Chunks are compressed by our own compressor.
		bopts = bopts.WithLoggingLevel(badger.WARNING).WithCompression(options.None)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", opts.Dir, err)
	}

	location := opts.Dir
	if opts.InMemory {
		location = "badger:memory"
	}
	s := &Store{
		db:         db,
		location:   location,
		tree:       storage.NewTree(),
		nodes:      make(map[string]*nodeRecord),
		datasets:   make(map[string]*dataset),
		compressor: opts.Compressor,
		logger:     opts.Logger.With("component", "BadgerStore", "location", location),
		tracer:     opts.Tracer,
		metrics:    opts.Metrics,
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("Badger store opened", "nodes", s.tree.Len())
	return s, nil
}

// load verifies the layout marker and rebuilds the tree from node keys.
func (s *Store) load() error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyMeta))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			meta := binary.LittleEndian.AppendUint32(nil, core.BadgerLayoutMagicNumber)
			meta = append(meta, core.FormatVersion)
			return txn.Set([]byte(keyMeta), meta)
		case err != nil:
			return err
		}
		meta, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(meta) != 5 || binary.LittleEndian.Uint32(meta) != core.BadgerLayoutMagicNumber {
			return fmt.Errorf("database at %s is not a recording store", s.location)
		}
		if meta[4] != core.FormatVersion {
			return fmt.Errorf("unsupported store version %d, want %d", meta[4], core.FormatVersion)
		}

		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefixNode), PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		type loaded struct {
			path string
			rec  *nodeRecord
		}
		var all []loaded
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			path := strings.TrimPrefix(string(item.Key()), prefixNode)
			var rec *nodeRecord
			if err := item.Value(func(val []byte) error {
				var derr error
				rec, derr = decodeNode(val)
				return derr
			}); err != nil {
				return fmt.Errorf("node %s: %w", path, err)
			}
			all = append(all, loaded{path, rec})
		}
		// Parents before children.
		sort.Slice(all, func(i, j int) bool {
			return strings.Count(all[i].path, core.PathSeparator) < strings.Count(all[j].path, core.PathSeparator)
		})
		for _, l := range all {
			if err := s.tree.Add(l.path, l.rec.kind); err != nil {
				return err
			}
			s.nodes[l.path] = l.rec
			if l.rec.kind == storage.KindDataset && l.rec.id >= s.nextID {
				s.nextID = l.rec.id + 1
			}
		}
		return nil
	})
}

func (s *Store) Location() string { return s.location }

func (s *Store) CreateGroup(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.addNode(storage.Clean(path), &nodeRecord{kind: storage.KindGroup})
}

// addNode is called with s.mu held.
func (s *Store) addNode(path string, rec *nodeRecord) error {
	if err := s.tree.Add(path, rec.kind); err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyNode(path), rec.encode())
	}); err != nil {
		s.tree.Remove(path)
		return fmt.Errorf("failed to store node %s: %w", path, err)
	}
	s.nodes[path] = rec
	return nil
}

func (s *Store) CreateDataset(path string, spec storage.DatasetSpec) (storage.Dataset, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	path = storage.Clean(path)
	spec.Fields = append([]storage.Field(nil), spec.Fields...)
	rec := &nodeRecord{kind: storage.KindDataset, id: s.nextID, spec: spec}
	if err := s.addNode(path, rec); err != nil {
		return nil, err
	}
	s.nextID++
	ds := &dataset{s: s, path: path, rec: rec}
	ds.chunker = storage.NewChunker(spec, ds.writeChunk)
	s.datasets[path] = ds
	return ds, nil
}

func (s *Store) SetAttribute(path string, attr storage.Attribute) error {
	if attr.Value == nil {
		return fmt.Errorf("attribute %s on %s has no value", attr.Name, path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	path = storage.Clean(path)
	if _, ok := s.tree.Kind(path); !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyAttr(path, attr.Name), encodeAttr(attr.Value))
	})
}

func (s *Store) Unlink(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	removed, err := s.tree.Remove(path)
	if err != nil {
		return err
	}
	var chunkPrefixes [][]byte
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, p := range removed {
			if err := txn.Delete(keyNode(p)); err != nil {
				return err
			}
			if err := deletePrefix(txn, keyAttrPrefix(p)); err != nil {
				return err
			}
			if rec := s.nodes[p]; rec != nil && rec.kind == storage.KindDataset {
				chunkPrefixes = append(chunkPrefixes, keyChunkPrefix(rec.id))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to unlink %s: %w", path, err)
	}
	for _, p := range removed {
		delete(s.nodes, p)
		if ds, ok := s.datasets[p]; ok {
			ds.closed = true
			delete(s.datasets, p)
		}
	}
	if len(chunkPrefixes) > 0 {
		if err := s.db.DropPrefix(chunkPrefixes...); err != nil {
			return fmt.Errorf("failed to drop chunks under %s: %w", path, err)
		}
	}
	return nil
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()
	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes every open dataset and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var flushErr error
	for _, ds := range s.datasets {
		if ds.closed {
			continue
		}
		if err := ds.chunker.Flush(); err != nil && flushErr == nil {
			flushErr = fmt.Errorf("failed to flush dataset %s: %w", ds.path, err)
		}
		ds.closed = true
	}
	if err := s.db.Close(); err != nil && flushErr == nil {
		flushErr = fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	s.logger.Info("Badger store closed")
	return flushErr
}

// Paths lists every group and dataset.
func (s *Store) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Paths()
}

// Kind returns the node kind at path.
func (s *Store) Kind(path string) (storage.NodeKind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Kind(path)
}

// Attribute reads the named attribute of path.
func (s *Store) Attribute(path, name string) (*metadata.Value, error) {
	var v *metadata.Value
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyAttr(storage.Clean(path), name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: attribute %s of %s", storage.ErrNotFound, name, path)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var derr error
			v, derr = decodeAttr(val)
			return derr
		})
	})
	return v, err
}

// Attributes reads every attribute of path in name order.
func (s *Store) Attributes(path string) ([]storage.Attribute, error) {
	prefix := keyAttrPrefix(storage.Clean(path))
	var out []storage.Attribute
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 16})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			name := string(item.Key()[len(prefix):])
			if err := item.Value(func(val []byte) error {
				v, err := decodeAttr(val)
				if err != nil {
					return fmt.Errorf("attribute %s: %w", name, err)
				}
				out = append(out, storage.Attribute{Name: name, Value: v})
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// DatasetInfo returns the spec and flushed row count of the dataset at path.
func (s *Store) DatasetInfo(path string) (storage.DatasetSpec, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.nodes[storage.Clean(path)]
	if !ok || rec.kind != storage.KindDataset {
		return storage.DatasetSpec{}, 0, fmt.Errorf("%w: dataset %s", storage.ErrNotFound, path)
	}
	return rec.spec, rec.rows, nil
}

// ReadAll returns every flushed row of the dataset at path.
func (s *Store) ReadAll(path string) ([]byte, uint64, error) {
	spec, rows, err := s.DatasetInfo(path)
	if err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	id := s.nodes[storage.Clean(path)].id
	s.mu.Unlock()

	var out []byte
	var seen uint64
	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: keyChunkPrefix(id), PrefetchValues: true, PrefetchSize: 16})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				raw, n, err := decodeChunk(val)
				if err != nil {
					return err
				}
				if _, err := storage.CheckRows(spec, raw, int(n)); err != nil {
					return err
				}
				out = append(out, raw...)
				seen += uint64(n)
				return nil
			}); err != nil {
				return fmt.Errorf("chunk of %s: %w", path, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if seen != rows {
		return nil, 0, fmt.Errorf("dataset %s: chunks hold %d rows, node says %d", path, seen, rows)
	}
	return out, rows, nil
}

func decodeChunk(val []byte) ([]byte, uint32, error) {
	r := storage.NewRowReader(val)
	rows := r.Uint32()
	ct := core.CompressionType(r.Uint8())
	rawLen := int(r.Uint32())
	if r.Err != nil {
		return nil, 0, r.Err
	}
	c, err := compressors.ForType(ct)
	if err != nil {
		return nil, 0, err
	}
	raw, err := c.Decompress(r.Raw(r.Remaining()), rawLen)
	return raw, rows, err
}

// dataset state is guarded by s.mu.
type dataset struct {
	s       *Store
	path    string
	rec     *nodeRecord
	chunker *storage.Chunker
	rows    uint64
	closed  bool
}

var _ storage.Dataset = (*dataset)(nil)

func (d *dataset) Path() string              { return d.path }
func (d *dataset) Spec() storage.DatasetSpec { return d.rec.spec }

func (d *dataset) AppendRows(data []byte, nRows int) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if d.closed || d.s.closed {
		return fmt.Errorf("%w: %s", storage.ErrDatasetClosed, d.path)
	}
	if err := d.chunker.Append(data, nRows); err != nil {
		return fmt.Errorf("append to %s: %w", d.path, err)
	}
	d.rows += uint64(nRows)
	return nil
}

func (d *dataset) Rows() uint64 {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	return d.rows
}

func (d *dataset) Flush() error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if d.closed {
		return nil
	}
	return d.chunker.Flush()
}

func (d *dataset) Close() error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	if d.closed {
		return nil
	}
	if err := d.chunker.Flush(); err != nil {
		return err
	}
	d.closed = true
	return nil
}

// writeChunk stores one chunk and the updated node record in a single
// transaction. Called with s.mu held.
func (d *dataset) writeChunk(raw []byte, rows int) error {
	s := d.s
	var span trace.Span
	if s.tracer != nil {
		_, span = s.tracer.Start(context.Background(), "BadgerStore.writeChunk")
		defer span.End()
	}

	compressed := core.BufferPool.Get()
	defer core.BufferPool.Put(compressed)
	if err := s.compressor.CompressTo(compressed, raw); err != nil {
		return fmt.Errorf("failed to compress chunk of %s: %w", d.path, err)
	}
	var w storage.RowWriter
	w.Uint32(uint32(rows))
	w.Uint8(uint8(s.compressor.Type()))
	w.Uint32(uint32(len(raw)))
	w.Raw(compressed.Bytes())

	next := *d.rec
	next.rows += uint64(rows)
	next.chunks++
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(keyChunk(d.rec.id, d.rec.chunks), w.Bytes()); err != nil {
			return err
		}
		return txn.Set(keyNode(d.path), next.encode())
	})
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return fmt.Errorf("failed to store chunk of %s: %w", d.path, err)
	}
	*d.rec = next
	s.metrics.ChunkFlushed(BackendName, compressed.Len())
	if span != nil {
		span.SetAttributes(
			attribute.String("badger.dataset", d.path),
			attribute.Int("badger.chunk.rows", rows),
			attribute.Int("badger.chunk.stored_len_bytes", compressed.Len()),
		)
	}
	return nil
}
