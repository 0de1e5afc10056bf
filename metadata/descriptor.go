package metadata

import (
	"fmt"

	"github.com/INLOpen/nexusnwb/core"
)

// Descriptor is the immutable declaration of one metadata field. A single
// *Descriptor may be shared by any number of holders and schemas.
//
// For strings use CHAR with Length equal to the maximum string length plus
// one for the terminator.
type Descriptor struct {
	typ         Type
	length      int
	name        string
	description string
}

// NewDescriptor validates and creates a descriptor.
func NewDescriptor(t Type, length int, name, description string) (*Descriptor, error) {
	if !t.Valid() {
		return nil, core.Violation("NewDescriptor", "invalid type %v", t)
	}
	if length < 1 {
		return nil, core.Violation("NewDescriptor", "length must be at least 1, got %d", length)
	}
	return &Descriptor{typ: t, length: length, name: name, description: description}, nil
}

// MustDescriptor is like NewDescriptor but panics on invalid input. It is
// meant for package-level field declarations.
func MustDescriptor(t Type, length int, name, description string) *Descriptor {
	d, err := NewDescriptor(t, length, name, description)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Descriptor) Type() Type          { return d.typ }
func (d *Descriptor) Length() int         { return d.length }
func (d *Descriptor) Name() string        { return d.name }
func (d *Descriptor) Description() string { return d.description }

// DataSize is the byte size of one value of this descriptor.
func (d *Descriptor) DataSize() int {
	return TypeSize(d.typ) * d.length
}

// Equal reports whether both descriptors match on type, length, name and description.
func (d *Descriptor) Equal(other *Descriptor) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.typ == other.typ &&
		d.length == other.length &&
		d.name == other.name &&
		d.description == other.description
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s[%d] %q", d.typ, d.length, d.name)
}
