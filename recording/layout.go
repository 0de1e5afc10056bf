package recording

import (
	"github.com/INLOpen/nexusnwb/core"
	"github.com/INLOpen/nexusnwb/metadata"
	"github.com/INLOpen/nexusnwb/storage"
)

// Container layout. Every session lives below its own recording group:
//
//	acquisition/timeseries/recording<N>/continuous/<processor>_<source>/{data,timestamps}
//	acquisition/timeseries/recording<N>/spikes/<electrode>/{data,timestamps}
//	acquisition/timeseries/recording<N>/events/ttl/{data,control}
//	acquisition/timeseries/recording<N>/events/messages/data
const (
	GroupAcquisition = "acquisition"
	GroupTimeseries  = "acquisition/timeseries"

	groupContinuous = "continuous"
	groupSpikes     = "spikes"
	groupEvents     = "events"
	groupTTL        = "events/ttl"
	groupMessages   = "events/messages"

	datasetData       = "data"
	datasetTimestamps = "timestamps"
	datasetControl    = "control"
)

// Top-level groups created with the file.
var fileGroups = []string{GroupAcquisition, GroupTimeseries, "analysis", "general", "processing", "stimulus"}

// Default chunk sizes in rows and the staging bound in frames.
const (
	DefaultChunkSize      = 2048
	DefaultSpikeChunkSize = 16
	DefaultEventChunkSize = 16

	DefaultMaxStagedFrames = 1 << 16
)

// SessionPath returns the group of recording session n.
func SessionPath(n int) string {
	return core.JoinPath(GroupTimeseries, core.FormatRecordingGroup(n))
}

// ContinuousPath returns the group of a continuous stream.
func ContinuousPath(session int, info RecordingInfo) string {
	return core.JoinPath(SessionPath(session), groupContinuous, info.streamName(Continuous, 0))
}

// SpikePath returns the group of the index-th spike electrode.
func SpikePath(session, index int, info RecordingInfo) string {
	return core.JoinPath(SessionPath(session), groupSpikes, info.streamName(Spike, index))
}

// DataPath and TimestampsPath name the datasets of a stream group.
func DataPath(streamPath string) string       { return core.JoinPath(streamPath, datasetData) }
func TimestampsPath(streamPath string) string { return core.JoinPath(streamPath, datasetTimestamps) }

// TTLPath, TTLControlPath and MessagesPath name the event datasets of a session.
func TTLPath(session int) string {
	return core.JoinPath(SessionPath(session), groupTTL, datasetData)
}

func TTLControlPath(session int) string {
	return core.JoinPath(SessionPath(session), groupTTL, datasetControl)
}

func MessagesPath(session int) string {
	return core.JoinPath(SessionPath(session), groupMessages, datasetData)
}

func samplesSpec(width, chunkRows int, help string) storage.DatasetSpec {
	return storage.Simple(metadata.INT16, width, chunkRows, help)
}

func timestampsSpec(chunkRows int) storage.DatasetSpec {
	return storage.Simple(metadata.DOUBLE, 1, chunkRows, "timestamps in seconds")
}

// ttlSpec is the TTL row layout. metaSize is the event metadata size of the
// session's schema; 0 omits the field.
func ttlSpec(chunkRows, metaSize int) storage.DatasetSpec {
	spec := storage.DatasetSpec{
		Fields: []storage.Field{
			{Name: "timestamp", Type: metadata.DOUBLE, Length: 1},
			{Name: "channel", Type: metadata.INT32, Length: 1},
			{Name: "id", Type: metadata.INT32, Length: 1},
			{Name: "source", Type: metadata.UINT8, Length: 1},
		},
		ChunkRows:   chunkRows,
		Description: "TTL events: timestamp, channel, event id, source processor",
	}
	if metaSize > 0 {
		spec.Fields = append(spec.Fields, storage.Field{Name: "metadata", Type: metadata.UINT8, Length: metaSize})
	}
	return spec
}

func controlSpec(chunkRows int) storage.DatasetSpec {
	return storage.Simple(metadata.UINT8, 1, chunkRows, "TTL control: 1 on a rising edge, 0 otherwise")
}

func messagesSpec(chunkRows int) storage.DatasetSpec {
	return storage.DatasetSpec{
		Fields: []storage.Field{
			{Name: "timestamp", Type: metadata.DOUBLE, Length: 1},
			{Name: "text", Type: metadata.CHAR},
		},
		ChunkRows:   chunkRows,
		Description: "free-text messages",
	}
}
