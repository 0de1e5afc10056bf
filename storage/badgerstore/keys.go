package badgerstore

import (
	"encoding/binary"
	"fmt"

	"github.com/INLOpen/nexusnwb/metadata"
	"github.com/INLOpen/nexusnwb/storage"
)

// Key layout:
//
//	meta                      layout magic + format version
//	n:<path>                  node record (kind, dataset id, rows, chunks, spec)
//	a:<path>\x00<name>        attribute (type, length, raw bytes)
//	c:<id BE u32><seq BE u32> chunk (rows, compression, raw length, payload)
//
// Big-endian ids and sequence numbers keep chunks of a dataset contiguous and
// ordered under badger's lexical key order.
const (
	prefixNode  = "n:"
	prefixAttr  = "a:"
	prefixChunk = "c:"
	keyMeta     = "meta"
)

func keyNode(path string) []byte {
	return []byte(prefixNode + path)
}

func keyAttrPrefix(path string) []byte {
	return []byte(prefixAttr + path + "\x00")
}

func keyAttr(path, name string) []byte {
	return append(keyAttrPrefix(path), name...)
}

func keyChunkPrefix(id uint32) []byte {
	k := make([]byte, 0, len(prefixChunk)+4)
	k = append(k, prefixChunk...)
	return binary.BigEndian.AppendUint32(k, id)
}

func keyChunk(id, seq uint32) []byte {
	return binary.BigEndian.AppendUint32(keyChunkPrefix(id), seq)
}

// nodeRecord is the value stored under n:<path>.
type nodeRecord struct {
	kind   storage.NodeKind
	id     uint32
	rows   uint64
	chunks uint32
	spec   storage.DatasetSpec
}

func (n *nodeRecord) encode() []byte {
	var w storage.RowWriter
	w.Uint8(uint8(n.kind))
	if n.kind != storage.KindDataset {
		return w.Bytes()
	}
	w.Uint32(n.id)
	w.Uint64(n.rows)
	w.Uint32(n.chunks)
	w.String(n.spec.Description)
	w.Uint32(uint32(n.spec.ChunkRows))
	w.Uint32(uint32(len(n.spec.Fields)))
	for _, f := range n.spec.Fields {
		w.String(f.Name)
		w.Uint8(uint8(f.Type))
		w.Uint32(uint32(f.Length))
	}
	return w.Bytes()
}

func decodeNode(data []byte) (*nodeRecord, error) {
	r := storage.NewRowReader(data)
	n := &nodeRecord{kind: storage.NodeKind(r.Uint8())}
	switch n.kind {
	case storage.KindGroup:
	case storage.KindDataset:
		n.id = r.Uint32()
		n.rows = r.Uint64()
		n.chunks = r.Uint32()
		n.spec.Description = r.String()
		n.spec.ChunkRows = int(r.Uint32())
		count := r.Uint32()
		for i := uint32(0); i < count && r.Err == nil; i++ {
			n.spec.Fields = append(n.spec.Fields, storage.Field{
				Name:   r.String(),
				Type:   metadata.Type(r.Uint8()),
				Length: int(r.Uint32()),
			})
		}
	default:
		return nil, fmt.Errorf("unknown node kind %d", n.kind)
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return n, nil
}

func encodeAttr(v *metadata.Value) []byte {
	var w storage.RowWriter
	w.Uint8(uint8(v.Type()))
	w.Uint32(uint32(v.Length()))
	w.Raw(v.Bytes())
	return w.Bytes()
}

func decodeAttr(data []byte) (*metadata.Value, error) {
	r := storage.NewRowReader(data)
	typ := metadata.Type(r.Uint8())
	length := int(r.Uint32())
	if r.Err != nil {
		return nil, r.Err
	}
	return metadata.NewValueFrom(typ, length, r.Raw(r.Remaining()))
}
