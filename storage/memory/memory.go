// Package memory is an in-process storage backend. It keeps every chunk in
// memory and is used by tests and dry runs.
package memory

import (
	"fmt"
	"sync"

	"github.com/INLOpen/nexusnwb/metadata"
	"github.com/INLOpen/nexusnwb/storage"
)

// Hooks let tests inject failures. A non-nil error from a hook aborts the
// operation before it changes any state.
type Hooks struct {
	BeforeCreate func(path string) error
	BeforeAppend func(path string) error
}

// Backend implements storage.Backend in memory.
type Backend struct {
	mu       sync.Mutex
	name     string
	closed   bool
	tree     *storage.Tree
	attrs    map[string][]storage.Attribute
	datasets map[string]*Dataset
	hooks    Hooks
}

var _ storage.Backend = (*Backend)(nil)

// New creates an empty in-memory container identified by name.
func New(name string) *Backend {
	return &Backend{
		name:     name,
		tree:     storage.NewTree(),
		attrs:    make(map[string][]storage.Attribute),
		datasets: make(map[string]*Dataset),
	}
}

// SetHooks installs failure injection hooks.
func (b *Backend) SetHooks(h Hooks) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = h
}

func (b *Backend) Location() string { return b.name }

func (b *Backend) CreateGroup(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return storage.ErrBackendClosed
	}
	if b.hooks.BeforeCreate != nil {
		if err := b.hooks.BeforeCreate(storage.Clean(path)); err != nil {
			return err
		}
	}
	return b.tree.Add(path, storage.KindGroup)
}

func (b *Backend) CreateDataset(path string, spec storage.DatasetSpec) (storage.Dataset, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, storage.ErrBackendClosed
	}
	path = storage.Clean(path)
	if b.hooks.BeforeCreate != nil {
		if err := b.hooks.BeforeCreate(path); err != nil {
			return nil, err
		}
	}
	if err := b.tree.Add(path, storage.KindDataset); err != nil {
		return nil, err
	}
	ds := &Dataset{backend: b, path: path, spec: spec}
	ds.chunker = storage.NewChunker(spec, ds.storeChunk)
	b.datasets[path] = ds
	return ds, nil
}

func (b *Backend) SetAttribute(path string, attr storage.Attribute) error {
	if attr.Value == nil {
		return fmt.Errorf("attribute %s on %s has no value", attr.Name, path)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return storage.ErrBackendClosed
	}
	path = storage.Clean(path)
	if _, ok := b.tree.Kind(path); !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	}
	attr.Value = attr.Value.Clone()
	list := b.attrs[path]
	for i := range list {
		if list[i].Name == attr.Name {
			list[i] = attr
			return nil
		}
	}
	b.attrs[path] = append(list, attr)
	return nil
}

func (b *Backend) Unlink(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return storage.ErrBackendClosed
	}
	removed, err := b.tree.Remove(path)
	if err != nil {
		return err
	}
	for _, p := range removed {
		delete(b.attrs, p)
		if ds, ok := b.datasets[p]; ok {
			ds.markClosed()
			delete(b.datasets, p)
		}
	}
	return nil
}

// Close flushes every open dataset. Data stays readable after Close.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	open := make([]*Dataset, 0, len(b.datasets))
	for _, ds := range b.datasets {
		open = append(open, ds)
	}
	b.mu.Unlock()

	for _, ds := range open {
		if err := ds.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether a group or dataset exists at path.
func (b *Backend) Exists(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.tree.Kind(path)
	return ok
}

// Kind returns the node kind at path.
func (b *Backend) Kind(path string) (storage.NodeKind, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tree.Kind(path)
}

// Paths lists every group and dataset.
func (b *Backend) Paths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tree.Paths()
}

// Attribute returns a copy of the named attribute of path.
func (b *Backend) Attribute(path, name string) (*metadata.Value, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.attrs[storage.Clean(path)] {
		if a.Name == name {
			return a.Value.Clone(), true
		}
	}
	return nil, false
}

// Attributes returns the attributes of path in insertion order.
func (b *Backend) Attributes(path string) []storage.Attribute {
	b.mu.Lock()
	defer b.mu.Unlock()
	src := b.attrs[storage.Clean(path)]
	out := make([]storage.Attribute, len(src))
	for i, a := range src {
		out[i] = storage.Attribute{Name: a.Name, Value: a.Value.Clone()}
	}
	return out
}

// Dataset returns the dataset at path.
func (b *Backend) Dataset(path string) (*Dataset, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ds, ok := b.datasets[storage.Clean(path)]
	return ds, ok
}

// Dataset is an in-memory chunked dataset.
type Dataset struct {
	backend *Backend
	path    string
	spec    storage.DatasetSpec

	mu      sync.Mutex
	chunker *storage.Chunker
	data    []byte
	rows    uint64
	flushed uint64
	chunks  int
	closed  bool
}

var _ storage.Dataset = (*Dataset)(nil)

func (d *Dataset) Path() string              { return d.path }
func (d *Dataset) Spec() storage.DatasetSpec { return d.spec }

func (d *Dataset) AppendRows(data []byte, nRows int) error {
	d.backend.mu.Lock()
	hook := d.backend.hooks.BeforeAppend
	d.backend.mu.Unlock()
	if hook != nil {
		if err := hook(d.path); err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("%w: %s", storage.ErrDatasetClosed, d.path)
	}
	if err := d.chunker.Append(data, nRows); err != nil {
		return fmt.Errorf("append to %s: %w", d.path, err)
	}
	d.rows += uint64(nRows)
	return nil
}

// storeChunk is called with d.mu held.
func (d *Dataset) storeChunk(data []byte, rows int) error {
	d.data = append(d.data, data...)
	d.flushed += uint64(rows)
	d.chunks++
	return nil
}

func (d *Dataset) Rows() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rows
}

func (d *Dataset) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	return d.chunker.Flush()
}

func (d *Dataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	if err := d.chunker.Flush(); err != nil {
		return err
	}
	d.closed = true
	return nil
}

func (d *Dataset) markClosed() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// Data returns a copy of the flushed rows and their count. Rows still
// buffered in a partial chunk are not included until Flush.
func (d *Dataset) Data() ([]byte, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.data...), d.flushed
}

// Chunks is the number of chunks written so far.
func (d *Dataset) Chunks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chunks
}

// Closed reports whether the dataset was closed or unlinked.
func (d *Dataset) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
