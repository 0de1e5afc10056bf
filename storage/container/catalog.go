package container

import (
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/INLOpen/nexusnwb/metadata"
	"github.com/INLOpen/nexusnwb/storage"
)

// ChunkRef locates one chunk record in the file.
type ChunkRef struct {
	Offset int64  // offset of the record header
	Rows   uint32 // rows stored in the chunk
}

// Node is a catalog entry for a group or dataset. The root group has path "".
type Node struct {
	Path       string
	Kind       storage.NodeKind
	Attributes []storage.Attribute

	// Dataset fields.
	ID     uint32
	Spec   storage.DatasetSpec
	Rows   uint64
	Chunks []ChunkRef
}

// Catalog is the index written at the end of a container.
type Catalog struct {
	Nodes []*Node
}

// Find returns the node at path.
func (c *Catalog) Find(path string) (*Node, bool) {
	path = storage.Clean(path)
	i := sort.Search(len(c.Nodes), func(i int) bool { return c.Nodes[i].Path >= path })
	if i < len(c.Nodes) && c.Nodes[i].Path == path {
		return c.Nodes[i], true
	}
	return nil, false
}

func (c *Catalog) sortNodes() {
	sort.Slice(c.Nodes, func(i, j int) bool { return c.Nodes[i].Path < c.Nodes[j].Path })
}

// Encode serializes the catalog and returns it with its checksum.
func (c *Catalog) Encode() ([]byte, uint32) {
	c.sortNodes()
	var w storage.RowWriter
	w.Uint32(uint32(len(c.Nodes)))
	for _, n := range c.Nodes {
		w.Uint8(uint8(n.Kind))
		w.String(n.Path)
		if n.Kind == storage.KindDataset {
			w.Uint32(n.ID)
			w.String(n.Spec.Description)
			w.Uint32(uint32(n.Spec.ChunkRows))
			w.Uint32(uint32(len(n.Spec.Fields)))
			for _, f := range n.Spec.Fields {
				w.String(f.Name)
				w.Uint8(uint8(f.Type))
				w.Uint32(uint32(f.Length))
			}
			w.Uint64(n.Rows)
			w.Uint32(uint32(len(n.Chunks)))
			for _, ch := range n.Chunks {
				w.Uint64(uint64(ch.Offset))
				w.Uint32(ch.Rows)
			}
		}
		w.Uint32(uint32(len(n.Attributes)))
		for _, a := range n.Attributes {
			w.String(a.Name)
			w.Uint8(uint8(a.Value.Type()))
			w.Uint32(uint32(a.Value.Length()))
			w.Raw(a.Value.Bytes())
		}
	}
	data := w.Bytes()
	return data, crc32.ChecksumIEEE(data)
}

// DecodeCatalog parses catalog data after verifying its checksum.
func DecodeCatalog(data []byte, checksum uint32) (*Catalog, error) {
	if got := crc32.ChecksumIEEE(data); got != checksum {
		return nil, fmt.Errorf("catalog checksum mismatch (stored %08x, computed %08x): %w", checksum, got, ErrCorrupted)
	}
	r := storage.NewRowReader(data)
	count := r.Uint32()
	c := &Catalog{Nodes: make([]*Node, 0, min(int(count), len(data)))}
	for i := uint32(0); i < count && r.Err == nil; i++ {
		n := &Node{Kind: storage.NodeKind(r.Uint8()), Path: r.String()}
		switch n.Kind {
		case storage.KindGroup:
		case storage.KindDataset:
			n.ID = r.Uint32()
			n.Spec.Description = r.String()
			n.Spec.ChunkRows = int(r.Uint32())
			nFields := r.Uint32()
			for f := uint32(0); f < nFields && r.Err == nil; f++ {
				n.Spec.Fields = append(n.Spec.Fields, storage.Field{
					Name:   r.String(),
					Type:   metadata.Type(r.Uint8()),
					Length: int(r.Uint32()),
				})
			}
			n.Rows = r.Uint64()
			nChunks := r.Uint32()
			for ch := uint32(0); ch < nChunks && r.Err == nil; ch++ {
				n.Chunks = append(n.Chunks, ChunkRef{Offset: int64(r.Uint64()), Rows: r.Uint32()})
			}
		default:
			return nil, fmt.Errorf("node %d has unknown kind %d: %w", i, n.Kind, ErrCorrupted)
		}
		nAttrs := r.Uint32()
		for a := uint32(0); a < nAttrs && r.Err == nil; a++ {
			name := r.String()
			typ := metadata.Type(r.Uint8())
			length := int(r.Uint32())
			size := metadata.TypeSize(typ) * length
			raw := r.Raw(size)
			if r.Err != nil {
				break
			}
			v, err := metadata.NewValueFrom(typ, length, raw)
			if err != nil {
				return nil, fmt.Errorf("attribute %s of %q: %v: %w", name, n.Path, err, ErrCorrupted)
			}
			n.Attributes = append(n.Attributes, storage.Attribute{Name: name, Value: v})
		}
		c.Nodes = append(c.Nodes, n)
	}
	if r.Err != nil {
		return nil, fmt.Errorf("catalog truncated: %v: %w", r.Err, ErrCorrupted)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after catalog: %w", r.Remaining(), ErrCorrupted)
	}
	c.sortNodes()
	return c, nil
}
