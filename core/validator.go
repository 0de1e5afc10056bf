package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Group and dataset names: letters, digits, underscore, dash and dot.
// Must not start with a dot.
var pathSegmentPattern = regexp.MustCompile(`^[\p{L}\p{N}_\-][\p{L}\p{N}_\-\.]*$`)

var invalidSegmentChars = regexp.MustCompile(`[^\p{L}\p{N}_\-\.]+`)

// ValidationError is a custom error type for validation failures.
type ValidationError struct {
	Message string
	Field   string // e.g., "group", "dataset", "attribute"
	Value   string // The invalid value
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s '%s': %s", e.Field, e.Value, e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}

// Validator provides cached validation for container path segments.
type Validator struct {
	mu    sync.RWMutex
	cache map[string]error // Cache validation results to avoid repeated regex matching.
}

// NewValidator creates a new validator with an initialized cache.
func NewValidator() *Validator {
	return &Validator{
		cache: make(map[string]error),
	}
}

// ValidatePath checks every segment of a container path, using a cache.
func (v *Validator) ValidatePath(field, path string) error {
	if strings.Trim(path, PathSeparator) == "" {
		return &ValidationError{Message: "cannot be empty", Field: field, Value: path}
	}
	for _, seg := range strings.Split(strings.Trim(path, PathSeparator), PathSeparator) {
		if err := v.ValidateSegment(field, seg); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSegment checks a single group or dataset name.
func (v *Validator) ValidateSegment(field, segment string) error {
	v.mu.RLock()
	err, found := v.cache[segment]
	v.mu.RUnlock()
	if found {
		if err != nil {
			return &ValidationError{Message: err.Error(), Field: field, Value: segment}
		}
		return nil
	}

	var validationErr error
	if segment == "" {
		validationErr = errors.New("cannot be empty")
	} else if !pathSegmentPattern.MatchString(segment) {
		validationErr = fmt.Errorf("does not match pattern '%s'", pathSegmentPattern.String())
	}

	v.mu.Lock()
	v.cache[segment] = validationErr
	v.mu.Unlock()

	if validationErr != nil {
		return &ValidationError{Message: validationErr.Error(), Field: field, Value: segment}
	}
	return nil
}

// SanitizeSegment turns a free-form name (electrode or source names typed by
// users) into a valid path segment.
func SanitizeSegment(name string) string {
	s := invalidSegmentChars.ReplaceAllString(strings.TrimSpace(name), "_")
	s = strings.TrimLeft(s, ".")
	if s == "" {
		return "_"
	}
	return s
}
