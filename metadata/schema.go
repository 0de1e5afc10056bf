package metadata

import (
	"sync"
	"sync/atomic"

	"github.com/INLOpen/nexusnwb/core"
)

// Owner is the capability token issued with a new EventSchema. Only the
// holder of the token may append descriptors to that schema.
type Owner struct {
	_ byte // non-zero size so every token has a distinct address
}

// EventSchema declares the metadata fields every event of a source carries.
//
// Once the schema has been propagated downstream it is locked for good:
// events already built against it assume its binary layout.
type EventSchema struct {
	mu          sync.RWMutex
	descriptors []*Descriptor
	totalSize   int
	owner       *Owner
	locked      atomic.Bool
}

// NewEventSchema creates an empty, unlocked schema and its owner token.
func NewEventSchema() (*EventSchema, *Owner) {
	owner := &Owner{}
	return &EventSchema{owner: owner}, owner
}

// Add appends a descriptor. It fails with a lock violation once the schema
// has been propagated, and with a contract violation for a foreign token.
func (s *EventSchema) Add(owner *Owner, desc *Descriptor) error {
	if owner == nil || owner != s.owner {
		return core.Violation("EventSchema.Add", "caller does not own this schema")
	}
	if desc == nil {
		return core.Violation("EventSchema.Add", "descriptor is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked.Load() {
		return &core.ContractViolationError{
			Op:      "EventSchema.Add",
			Message: "schema was already propagated downstream",
			Err:     core.ErrLockViolation,
		}
	}
	s.descriptors = append(s.descriptors, desc)
	s.totalSize += desc.DataSize()
	return nil
}

// Descriptor returns the descriptor at index i, or nil when out of range.
func (s *EventSchema) Descriptor(i int) *Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.descriptors) {
		return nil
	}
	return s.descriptors[i]
}

// Descriptors returns a snapshot of the descriptor list.
func (s *EventSchema) Descriptors() []*Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Descriptor(nil), s.descriptors...)
}

func (s *EventSchema) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.descriptors)
}

// TotalSize is the serialized size of one event's metadata.
func (s *EventSchema) TotalSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalSize
}

func (s *EventSchema) Locked() bool {
	return s.locked.Load()
}

// Propagate hands the schema to a downstream consumer. It locks s and
// returns a locked copy that shares s's descriptors. The copy has no owner,
// so nothing can extend it either.
func (s *EventSchema) Propagate() *EventSchema {
	s.mu.Lock()
	s.locked.Store(true)
	cp := &EventSchema{
		descriptors: append([]*Descriptor(nil), s.descriptors...),
		totalSize:   s.totalSize,
	}
	s.mu.Unlock()
	cp.locked.Store(true)
	return cp
}
