package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/INLOpen/nexusnwb/core"
)

// NodeKind distinguishes groups from datasets.
type NodeKind uint8

const (
	KindGroup NodeKind = iota + 1
	KindDataset
)

func (k NodeKind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindDataset:
		return "dataset"
	default:
		return "unknown"
	}
}

// Tree tracks the hierarchy of a container. The root "" always exists.
// It is not safe for concurrent use; backends guard it with their own lock.
type Tree struct {
	nodes map[string]NodeKind
}

var segments = core.NewValidator()

func NewTree() *Tree {
	return &Tree{nodes: make(map[string]NodeKind)}
}

// Clean normalizes a container path.
func Clean(path string) string {
	return strings.Trim(path, core.PathSeparator)
}

// Add registers a node. The parent must be an existing group.
func (t *Tree) Add(path string, kind NodeKind) error {
	path = Clean(path)
	if path == "" {
		return fmt.Errorf("%w: root", ErrExists)
	}
	if _, ok := t.nodes[path]; ok {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err := segments.ValidatePath(kind.String(), path); err != nil {
		return err
	}
	if parent := core.ParentPath(path); parent != "" {
		pk, ok := t.nodes[parent]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoParent, parent)
		}
		if pk != KindGroup {
			return fmt.Errorf("%w: %s is a %s", ErrNoParent, parent, pk)
		}
	}
	t.nodes[path] = kind
	return nil
}

// Kind returns the kind of a node. The root reports KindGroup.
func (t *Tree) Kind(path string) (NodeKind, bool) {
	path = Clean(path)
	if path == "" {
		return KindGroup, true
	}
	k, ok := t.nodes[path]
	return k, ok
}

// Remove deletes a node and its descendants and returns the removed paths,
// deepest first.
func (t *Tree) Remove(path string) ([]string, error) {
	path = Clean(path)
	if path == "" {
		return nil, fmt.Errorf("cannot unlink the root group")
	}
	if _, ok := t.nodes[path]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	prefix := path + core.PathSeparator
	removed := []string{path}
	for p := range t.nodes {
		if strings.HasPrefix(p, prefix) {
			removed = append(removed, p)
		}
	}
	sort.Slice(removed, func(i, j int) bool {
		return strings.Count(removed[i], core.PathSeparator) > strings.Count(removed[j], core.PathSeparator)
	})
	for _, p := range removed {
		delete(t.nodes, p)
	}
	return removed, nil
}

// Paths returns all node paths in lexical order.
func (t *Tree) Paths() []string {
	out := make([]string, 0, len(t.nodes))
	for p := range t.nodes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len is the number of nodes excluding the root.
func (t *Tree) Len() int { return len(t.nodes) }
