//go:build linux

package sys

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Preallocate reserves size bytes for f without changing its visible size,
// using fallocate with KEEP_SIZE. Unsupported filesystems yield
// ErrPreallocNotSupported and the decision is cached per device.
func Preallocate(f Fder, size int64) error {
	if size <= 0 {
		return nil
	}
	// WSL mounts of Windows drives do not implement fallocate usefully.
	if strings.HasPrefix(f.Name(), "/mnt/") {
		return recordPrealloc(ErrPreallocNotSupported)
	}
	fd := int(f.Fd())

	var stat unix.Stat_t
	var dev uint64
	if err := unix.Fstat(fd, &stat); err == nil {
		dev = uint64(stat.Dev)
		if allow, ok := preallocCacheLoad(dev); ok {
			preallocCacheHits.Add(1)
			if !allow {
				return recordPrealloc(ErrPreallocNotSupported)
			}
			return recordPrealloc(fallocate(fd, size, dev))
		}
		preallocCacheMisses.Add(1)
	}

	var st unix.Statfs_t
	if err := unix.Fstatfs(fd, &st); err != nil {
		return recordPrealloc(ErrPreallocNotSupported)
	}
	switch st.Type {
	case 0xEF53, // EXT2/3/4
		0x58465342, // XFS
		0x9123683E, // BTRFS
		0x01021994, // TMPFS
		0x794C7630, // OVERLAYFS
		0xF2F52010, // F2FS
		0x2FC12FC1: // ZFS
	default:
		if dev != 0 {
			preallocCacheStore(dev, false)
		}
		return recordPrealloc(ErrPreallocNotSupported)
	}
	return recordPrealloc(fallocate(fd, size, dev))
}

func fallocate(fd int, size int64, dev uint64) error {
	err := unix.Fallocate(fd, unix.FALLOC_FL_KEEP_SIZE, 0, size)
	if err == nil {
		if dev != 0 {
			preallocCacheStore(dev, true)
		}
		return nil
	}
	if unsupported(err) {
		if dev != 0 {
			preallocCacheStore(dev, false)
		}
		return ErrPreallocNotSupported
	}
	return fmt.Errorf("preallocation failed for fd=%d: %w", fd, err)
}

func unsupported(err error) bool {
	return errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EINVAL) ||
		errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOTTY)
}
