package metadata

import (
	"sync"

	"github.com/INLOpen/nexusnwb/core"
)

// Holder is an ordered list of (descriptor, value) pairs attached to a
// channel, electrode or stream. Pairs are kept in insertion order and
// duplicate names are retained; avoiding them is up to the producer.
//
// Descriptors and values are shared by pointer. The mutex only guards the
// list structure; entries must not be mutated once added.
type Holder struct {
	mu          sync.RWMutex
	descriptors []*Descriptor
	values      []*Value
}

// NewHolder returns an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Add appends a pair. The value must have the descriptor's type and length.
func (h *Holder) Add(desc *Descriptor, value *Value) error {
	if h == nil {
		return core.Violation("Holder.Add", "holder is nil")
	}
	if desc == nil || value == nil {
		return core.Violation("Holder.Add", "descriptor and value are required")
	}
	if !value.IsOfType(desc) {
		return core.Violation("Holder.Add", "value %s[%d] does not match descriptor %s", value.Type(), value.Length(), desc)
	}
	h.mu.Lock()
	h.descriptors = append(h.descriptors, desc)
	h.values = append(h.values, value)
	h.mu.Unlock()
	return nil
}

// Count returns the number of pairs.
func (h *Holder) Count() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.descriptors)
}

// Descriptor returns the descriptor at index i, or nil when out of range.
func (h *Holder) Descriptor(i int) *Descriptor {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i < 0 || i >= len(h.descriptors) {
		return nil
	}
	return h.descriptors[i]
}

// Value returns the value at index i, or nil when out of range.
func (h *Holder) Value(i int) *Value {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if i < 0 || i >= len(h.values) {
		return nil
	}
	return h.values[i]
}

// Find returns the first pair whose descriptor has the given name.
func (h *Holder) Find(name string) (*Descriptor, *Value, bool) {
	if h == nil {
		return nil, nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i, d := range h.descriptors {
		if d.name == name {
			return d, h.values[i], true
		}
	}
	return nil, nil, false
}

// Each calls fn for every pair in insertion order on a snapshot of the list.
func (h *Holder) Each(fn func(desc *Descriptor, value *Value) error) error {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	descs := append([]*Descriptor(nil), h.descriptors...)
	values := append([]*Value(nil), h.values...)
	h.mu.RUnlock()
	for i := range descs {
		if err := fn(descs[i], values[i]); err != nil {
			return err
		}
	}
	return nil
}
