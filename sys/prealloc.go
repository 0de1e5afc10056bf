// Package sys holds the few platform-specific helpers the container writer
// needs: block preallocation and free-space checks.
package sys

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrPreallocNotSupported is returned when the file or filesystem does not
// support preallocation. Callers treat it as informational.
var ErrPreallocNotSupported = errors.New("preallocation not supported")

// Fder is implemented by *os.File.
type Fder interface {
	Fd() uintptr
	Name() string
}

// preallocCache remembers per device id whether preallocation works there.
var preallocCache sync.Map

var (
	preallocCacheHits   atomic.Uint64
	preallocCacheMisses atomic.Uint64
	preallocSuccesses   atomic.Uint64
	preallocUnsupported atomic.Uint64
)

func preallocCacheLoad(dev uint64) (allowed bool, found bool) {
	if v, ok := preallocCache.Load(dev); ok {
		if b, ok2 := v.(bool); ok2 {
			return b, true
		}
	}
	return false, false
}

func preallocCacheStore(dev uint64, allowed bool) {
	preallocCache.Store(dev, allowed)
}

// PreallocStats returns cache hits, cache misses, successful and unsupported
// preallocation attempts since process start.
func PreallocStats() (hits, misses, successes, unsupported uint64) {
	return preallocCacheHits.Load(), preallocCacheMisses.Load(), preallocSuccesses.Load(), preallocUnsupported.Load()
}

func recordPrealloc(err error) error {
	switch {
	case err == nil:
		preallocSuccesses.Add(1)
	case errors.Is(err, ErrPreallocNotSupported):
		preallocUnsupported.Add(1)
	}
	return err
}
