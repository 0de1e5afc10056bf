package core

import (
	"errors"
	"fmt"
)

var (
	// ErrStructureCreation is returned when a group or dataset could not be
	// created while starting a recording session.
	ErrStructureCreation = errors.New("structure creation failed")
	// ErrSizeMismatch is returned when a serialized metadata buffer does not
	// match the size declared by its schema.
	ErrSizeMismatch = errors.New("size mismatch")
	// ErrContractViolation marks caller errors: type/length mismatches, unknown
	// stream identifiers, oversized waveforms.
	ErrContractViolation = errors.New("contract violation")
	// ErrLockViolation is returned when an event schema is extended after it
	// has been propagated downstream.
	ErrLockViolation = errors.New("event metadata schema is locked")
	// ErrNotRecording is returned by write calls made outside a session.
	ErrNotRecording = errors.New("no active recording session")
	// ErrClosed is returned by operations on a closed file or backend.
	ErrClosed = errors.New("closed")
)

// ContractViolationError describes a caller error detected at runtime.
type ContractViolationError struct {
	Op      string // e.g., "WriteSpike", "Scalar"
	Message string
	Err     error // optional, more specific sentinel such as ErrLockViolation
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("contract violation in %s: %s", e.Op, e.Message)
}

// Is lets errors.Is match both ErrContractViolation and the wrapped sentinel.
func (e *ContractViolationError) Is(target error) bool {
	return target == ErrContractViolation
}

func (e *ContractViolationError) Unwrap() error {
	return e.Err
}

// Violation builds a ContractViolationError with a formatted message.
func Violation(op, format string, args ...any) error {
	return &ContractViolationError{Op: op, Message: fmt.Sprintf(format, args...)}
}

// SizeMismatchError is returned when a buffer size differs from the expected size.
type SizeMismatchError struct {
	Expected int
	Got      int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch: expected %d bytes, got %d", e.Expected, e.Got)
}

func (e *SizeMismatchError) Unwrap() error {
	return ErrSizeMismatch
}

// StructureError reports which container path failed to be created.
type StructureError struct {
	Path string
	Err  error
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("failed to create %s: %v", e.Path, e.Err)
}

func (e *StructureError) Is(target error) bool {
	return target == ErrStructureCreation
}

func (e *StructureError) Unwrap() error {
	return e.Err
}

// IsContractViolation checks if an error is (or wraps) a contract violation.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrContractViolation)
}

// IsSizeMismatch checks if an error is (or wraps) a SizeMismatchError.
func IsSizeMismatch(err error) bool {
	var sizeErr *SizeMismatchError
	return errors.As(err, &sizeErr)
}

func IsStructureCreation(err error) bool {
	return errors.Is(err, ErrStructureCreation)
}
