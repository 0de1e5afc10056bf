package sys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"
)

// ErrInsufficientSpace is returned by EnsureFreeSpace when the filesystem
// holding a path has less than the required free bytes.
var ErrInsufficientSpace = errors.New("insufficient free disk space")

// FreeBytes reports the free bytes on the filesystem holding path. If path does
// not exist yet its closest existing ancestor is used.
func FreeBytes(path string) (uint64, error) {
	dir := existingAncestor(path)
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, fmt.Errorf("disk usage of %s: %w", dir, err)
	}
	return usage.Free, nil
}

// EnsureFreeSpace fails with ErrInsufficientSpace when fewer than min bytes are
// free where path lives. A zero min disables the check.
func EnsureFreeSpace(path string, min uint64) error {
	if min == 0 {
		return nil
	}
	free, err := FreeBytes(path)
	if err != nil {
		return err
	}
	if free < min {
		return fmt.Errorf("%w: %d bytes free at %s, need %d", ErrInsufficientSpace, free, path, min)
	}
	return nil
}

func existingAncestor(path string) string {
	p, err := filepath.Abs(path)
	if err != nil {
		p = path
	}
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
