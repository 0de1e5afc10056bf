package recording

import (
	"fmt"
	"strings"

	"github.com/INLOpen/nexusnwb/core"
	"github.com/INLOpen/nexusnwb/metadata"
)

// RecordingInfo describes one continuous source or one spike electrode.
// The writer keeps its own copy once a stream is created.
type RecordingInfo struct {
	SourceName      string
	BitVolts        float32
	ProcessorID     int
	SourceID        int
	NumChannels     int
	SamplesPerSpike int // spike electrodes only
	SampleRate      float32
	ElectrodeName   string // spike electrodes only

	// Metadata holds static typed metadata written as attributes of the
	// stream's data dataset. It may be shared between streams.
	Metadata *metadata.Holder
	// Channels optionally labels each channel.
	Channels []string
}

// StreamKind distinguishes the two stream arenas.
type StreamKind uint8

const (
	Continuous StreamKind = iota
	Spike
)

func (k StreamKind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case Spike:
		return "spike"
	default:
		return fmt.Sprintf("StreamKind(%d)", k)
	}
}

func (info *RecordingInfo) clone() RecordingInfo {
	c := *info
	c.Channels = append([]string(nil), info.Channels...)
	return c
}

// spikeWidth is the number of int16 elements of one spike row.
func (info *RecordingInfo) spikeWidth() int {
	return info.SamplesPerSpike * info.NumChannels
}

func (info *RecordingInfo) validate(kind StreamKind) error {
	if info.NumChannels <= 0 {
		return fmt.Errorf("%s %q: channel count must be positive, got %d", kind, info.SourceName, info.NumChannels)
	}
	if len(info.Channels) != 0 && len(info.Channels) != info.NumChannels {
		return fmt.Errorf("%s %q: %d channel labels for %d channels", kind, info.SourceName, len(info.Channels), info.NumChannels)
	}
	if kind == Spike && info.SamplesPerSpike <= 0 {
		return fmt.Errorf("electrode %q: samples per spike must be positive, got %d", info.ElectrodeName, info.SamplesPerSpike)
	}
	if strings.ContainsRune(info.SourceName, 0) || strings.ContainsRune(info.ElectrodeName, 0) {
		return fmt.Errorf("%s %q: names must not contain NUL", kind, info.SourceName)
	}
	for i, label := range info.Channels {
		// labels are stored newline-separated in one text attribute
		if strings.ContainsAny(label, "\x00\n") {
			return fmt.Errorf("%s %q: channel label %d contains NUL or newline", kind, info.SourceName, i)
		}
	}
	return nil
}

// streamName is the group name of the stream below its kind group.
func (info *RecordingInfo) streamName(kind StreamKind, index int) string {
	if kind == Spike {
		if info.ElectrodeName == "" {
			return fmt.Sprintf("electrode%d", index)
		}
		return core.SanitizeSegment(info.ElectrodeName)
	}
	return fmt.Sprintf("%d_%d", info.ProcessorID, info.SourceID)
}
