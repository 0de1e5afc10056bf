//go:build !linux

package sys

// Preallocate is not implemented outside Linux.
func Preallocate(f Fder, size int64) error {
	if size <= 0 {
		return nil
	}
	return recordPrealloc(ErrPreallocNotSupported)
}
