package recording

import (
	"fmt"

	"github.com/INLOpen/nexusnwb/core"
	"github.com/INLOpen/nexusnwb/metadata"
)

// spikeOffset is the offset-binary zero of spike waveforms.
const spikeOffset = 0x8000

// writable checks the session state shared by every write.
func (f *File) writable(op string) error {
	if f.closed {
		return core.ErrClosed
	}
	if !f.recording {
		return &core.ContractViolationError{Op: op, Message: "no session", Err: core.ErrNotRecording}
	}
	return f.err
}

// fail records a backend failure. The session stays unusable for writes
// until it is stopped.
func (f *File) fail(op string, err error) error {
	f.err = fmt.Errorf("%s: %w", op, err)
	f.metrics.WriteError(op)
	f.logger.Error("Write failed, session is no longer writable", "op", op, "recording", f.session, "error", err)
	return f.err
}

// WriteData appends samples of one channel to a continuous stream. A row is
// a frame holding one sample per channel; frames are committed once every
// channel has supplied its sample.
func (f *File) WriteData(streamID, channel int, samples []int16) error {
	const op = "WriteData"
	if err := f.writable(op); err != nil {
		return err
	}
	s, err := f.stream(op, f.continuous, streamID)
	if err != nil {
		return err
	}
	if channel < 0 || channel >= s.info.NumChannels {
		return core.Violation(op, "stream %d has %d channels, got channel %d", streamID, s.info.NumChannels, channel)
	}
	if len(samples) == 0 {
		return nil
	}
	if backlog := s.backlogAfter(channel, len(samples)); backlog > f.opts.MaxStagedFrames {
		return core.Violation(op, "channel %d of stream %d would run %d frames ahead of the slowest channel (max %d)",
			channel, streamID, backlog, f.opts.MaxStagedFrames)
	}
	s.staged[channel] = append(s.staged[channel], samples...)
	n := s.pending()
	if n == 0 {
		return nil
	}
	s.frames(&f.rows, n)
	if err := s.data.AppendRows(f.rows.Bytes(), n); err != nil {
		return f.fail(op, err)
	}
	s.consume(n)
	s.count += uint64(n)
	f.metrics.FramesWritten(n)
	return nil
}

// WriteTimestamps appends timestamps, in seconds, to a continuous stream.
func (f *File) WriteTimestamps(streamID int, timestamps []float64) error {
	const op = "WriteTimestamps"
	if err := f.writable(op); err != nil {
		return err
	}
	s, err := f.stream(op, f.continuous, streamID)
	if err != nil {
		return err
	}
	if len(timestamps) == 0 {
		return nil
	}
	f.rows.Reset()
	f.rows.Float64s(timestamps)
	if err := s.timestamps.AppendRows(f.rows.Bytes(), len(timestamps)); err != nil {
		return f.fail(op, err)
	}
	s.tsCount += uint64(len(timestamps))
	return nil
}

// WriteSpike appends one offset-binary waveform and its timestamp to an
// electrode. The waveform must hold exactly SamplesPerSpike*NumChannels
// samples.
func (f *File) WriteSpike(electrodeID int, waveform []uint16, timestamp float64) error {
	const op = "WriteSpike"
	if err := f.writable(op); err != nil {
		return err
	}
	s, err := f.stream(op, f.spikes, electrodeID)
	if err != nil {
		return err
	}
	if len(waveform) != s.width {
		return core.Violation(op, "electrode %d expects %d samples, got %d", electrodeID, s.width, len(waveform))
	}

	scratch := f.scratch[:s.width]
	for i, v := range waveform {
		scratch[i] = int16(int32(v) - spikeOffset)
	}
	f.rows.Reset()
	f.rows.Int16s(scratch)
	if err := s.data.AppendRows(f.rows.Bytes(), 1); err != nil {
		return f.fail(op, err)
	}
	f.rows.Reset()
	f.rows.Float64(timestamp)
	if err := s.timestamps.AppendRows(f.rows.Bytes(), 1); err != nil {
		return f.fail(op, err)
	}
	s.count++
	s.tsCount++
	if err := s.stats.observe(scratch, s.info.BitVolts); err != nil {
		f.logger.Warn("Dropping spike amplitude sample", "electrode", electrodeID, "error", err)
	}
	f.metrics.SpikeWritten()
	return nil
}

// WriteTTLEvent appends a TTL event and its control row. An id above zero
// marks a rising edge. When the file has an event schema, meta must match
// it field by field and is stored with the event.
func (f *File) WriteTTLEvent(channel, id int, source uint8, timestamp float64, meta ...*metadata.Value) error {
	const op = "WriteTTLEvent"
	if err := f.writable(op); err != nil {
		return err
	}
	if channel < 0 || channel > maxInt32 {
		return core.Violation(op, "invalid channel %d", channel)
	}
	if id < minInt32 || id > maxInt32 {
		return core.Violation(op, "event id %d out of range", id)
	}
	if f.schema != nil {
		if err := metadata.EncodeInto(f.metaBuf, f.schema, meta); err != nil {
			return err
		}
	} else if len(meta) > 0 {
		return core.Violation(op, "file has no event schema, got %d metadata values", len(meta))
	}

	f.rows.Reset()
	f.rows.Float64(timestamp)
	f.rows.Int32(int32(channel))
	f.rows.Int32(int32(id))
	f.rows.Uint8(source)
	f.rows.Raw(f.metaBuf)
	if err := f.ttl.AppendRows(f.rows.Bytes(), 1); err != nil {
		return f.fail(op, err)
	}
	var edge uint8
	if id > 0 {
		edge = 1
	}
	if err := f.control.AppendRows([]byte{edge}, 1); err != nil {
		return f.fail(op, err)
	}
	f.eventCount++
	f.ttlStats.observe(channel)
	f.metrics.EventWritten()
	return nil
}

// WriteMessage appends a free-text message.
func (f *File) WriteMessage(text string, timestamp float64) error {
	const op = "WriteMessage"
	if err := f.writable(op); err != nil {
		return err
	}
	f.rows.Reset()
	f.rows.Float64(timestamp)
	f.rows.String(text)
	if err := f.messages.AppendRows(f.rows.Bytes(), 1); err != nil {
		return f.fail(op, err)
	}
	f.messageCount++
	f.metrics.MessageWritten()
	return nil
}

const (
	minInt32 = -1 << 31
	maxInt32 = 1<<31 - 1
)
