package core

import (
	"fmt"
	"strconv"
	"strings"
)

// This file centralizes constants related to file formats, magic numbers,
// and container path conventions shared by the writer and the backends.

// --- Magic Numbers ---
const (
	// ContainerMagicNumber identifies a chunked recording container file.
	ContainerMagicNumber uint32 = 0x4E574243 // "NWBC"
	// BadgerLayoutMagicNumber is stored under the badger backend's root key.
	BadgerLayoutMagicNumber uint32 = 0x4E574244 // "NWBD"
)

// --- Magic Strings ---
const (
	// ContainerMagicString terminates every container file. A file that does
	// not end with it was not closed cleanly.
	ContainerMagicString    = "NWB-CHUNKED-V1"
	ContainerMagicStringLen = len(ContainerMagicString)
)

// --- Protocol & Format Versions ---
const (
	// FormatVersion is the current version for all persistent file formats.
	FormatVersion uint8 = 1
	// NWBVersion is written as the root "nwb_version" attribute.
	NWBVersion = "NWB-1.0.6"
)

// --- Container layout ---
const (
	// PathSeparator separates groups in container paths.
	PathSeparator = "/"
	// ContainerFileSuffix is the suffix for container files.
	ContainerFileSuffix = ".nwb"
	// RecordingGroupPrefix is the prefix for per-session groups, e.g. recording1.
	RecordingGroupPrefix = "recording"
)

// JoinPath joins container path segments, skipping empty ones.
func JoinPath(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, PathSeparator)
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, PathSeparator)
}

// ParentPath returns the parent group of a container path ("" for top level).
func ParentPath(path string) string {
	path = strings.Trim(path, PathSeparator)
	idx := strings.LastIndex(path, PathSeparator)
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// FormatRecordingGroup returns the group name of a recording session.
func FormatRecordingGroup(recordingNumber int) string {
	return fmt.Sprintf("%s%d", RecordingGroupPrefix, recordingNumber)
}

// ParseRecordingGroup extracts the session number from a group name.
func ParseRecordingGroup(name string) (int, error) {
	if !strings.HasPrefix(name, RecordingGroupPrefix) {
		return 0, fmt.Errorf("group %s is not a recording group", name)
	}
	return strconv.Atoi(strings.TrimPrefix(name, RecordingGroupPrefix))
}
