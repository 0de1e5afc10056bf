package recording

import (
	"fmt"

	"github.com/INLOpen/nexusnwb/core"
	"github.com/INLOpen/nexusnwb/metadata"
	"github.com/INLOpen/nexusnwb/storage"
)

// stream is one entry of a stream arena. Its index in the arena is the id
// callers use for writes.
type stream struct {
	kind       StreamKind
	basePath   string
	info       RecordingInfo
	data       storage.Dataset
	timestamps storage.Dataset
	width      int    // int16 elements per data row
	count      uint64 // data rows committed
	tsCount    uint64 // timestamp rows written

	// staged holds per-channel continuous samples that do not yet form a
	// complete frame.
	staged [][]int16
	frame  []int16
	stats  *spikeStats
}

// createRecordingStructures creates the stream group below basePath with its
// data and timestamp datasets. On failure the datasets it opened are closed;
// unlinking is left to the caller.
func (f *File) createRecordingStructures(kind StreamKind, basePath string, info *RecordingInfo, help string, chunkRows int) (*stream, error) {
	width := info.NumChannels
	if kind == Spike {
		width = info.spikeWidth()
	}
	if err := f.backend.CreateGroup(basePath); err != nil {
		return nil, &core.StructureError{Path: basePath, Err: err}
	}

	s := &stream{
		kind:     kind,
		basePath: basePath,
		info:     info.clone(),
		width:    width,
	}
	dataPath := DataPath(basePath)
	data, err := f.backend.CreateDataset(dataPath, samplesSpec(width, chunkRows, help))
	if err != nil {
		return nil, &core.StructureError{Path: dataPath, Err: err}
	}
	s.data = data
	tsPath := TimestampsPath(basePath)
	ts, err := f.backend.CreateDataset(tsPath, timestampsSpec(chunkRows))
	if err != nil {
		data.Close()
		return nil, &core.StructureError{Path: tsPath, Err: err}
	}
	s.timestamps = ts

	if err := streamAttributes(kind, &s.info).apply(f.backend, dataPath); err != nil {
		s.close()
		return nil, &core.StructureError{Path: dataPath, Err: err}
	}

	switch kind {
	case Continuous:
		s.staged = make([][]int16, info.NumChannels)
		s.frame = make([]int16, info.NumChannels)
	case Spike:
		stats, err := newSpikeStats()
		if err != nil {
			s.close()
			return nil, err
		}
		s.stats = stats
	}
	return s, nil
}

// pending returns the number of complete frames staged across all channels.
func (s *stream) pending() int {
	n := -1
	for _, ch := range s.staged {
		if n < 0 || len(ch) < n {
			n = len(ch)
		}
	}
	if n < 0 {
		return 0
	}
	return n
}

// backlogAfter returns how many samples channel would hold beyond the last
// complete frame if add more samples were staged on it.
func (s *stream) backlogAfter(channel, add int) int {
	total := len(s.staged[channel]) + add
	committable := total
	for c, ch := range s.staged {
		if c != channel && len(ch) < committable {
			committable = len(ch)
		}
	}
	return total - committable
}

// frames interleaves n staged frames into w, channel-major within a row.
func (s *stream) frames(w *storage.RowWriter, n int) {
	w.Reset()
	for i := 0; i < n; i++ {
		for c, ch := range s.staged {
			s.frame[c] = ch[i]
		}
		w.Int16s(s.frame)
	}
}

// consume drops the first n samples of every channel.
func (s *stream) consume(n int) {
	for c, ch := range s.staged {
		rest := copy(ch, ch[n:])
		s.staged[c] = ch[:rest]
	}
}

// summarize writes the per-stream summary attributes.
func (s *stream) summarize(backend storage.Backend) error {
	a := &attrSet{}
	a.add("num_samples", metadata.ScalarValue(s.count))
	a.add("num_timestamps", metadata.ScalarValue(s.tsCount))
	if s.kind == Continuous {
		// samples of incomplete frames are dropped at stop
		a.add("num_dropped_samples", metadata.ScalarValue(uint64(s.stagedSamples())))
	}
	if s.stats != nil {
		if q := s.stats.quantiles(); q != nil {
			v, err := metadata.ArrayValue(q)
			a.array("amplitude_quantiles", v, err)
			v, err = metadata.ArrayValue(AmplitudeQuantiles)
			a.array("amplitude_quantile_levels", v, err)
		}
	}
	return a.apply(backend, DataPath(s.basePath))
}

func (s *stream) stagedSamples() int {
	total := 0
	for _, ch := range s.staged {
		total += len(ch)
	}
	return total
}

// close flushes and closes both datasets and returns the first error.
func (s *stream) close() error {
	var first error
	for _, ds := range []storage.Dataset{s.data, s.timestamps} {
		if ds == nil {
			continue
		}
		if err := ds.Close(); err != nil && first == nil {
			first = fmt.Errorf("close %s: %w", ds.Path(), err)
		}
	}
	return first
}
