// Package recording writes neurophysiology sessions into a chunked container.
//
// A File owns one storage backend. Each call to StartNewRecording creates a
// session group holding one stream per continuous source and per spike
// electrode, plus the TTL and message event datasets. Streams are addressed
// by their index in the slices handed to StartNewRecording; ids are valid
// until StopRecording.
//
// A File is single-writer: callers serialize their calls.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/INLOpen/nexusnwb/core"
	"github.com/INLOpen/nexusnwb/metadata"
	"github.com/INLOpen/nexusnwb/metrics"
	"github.com/INLOpen/nexusnwb/storage"
)

// Options configures a File.
type Options struct {
	ChunkSize      int // rows per continuous chunk
	SpikeChunkSize int
	EventChunkSize int

	// MaxStagedFrames bounds how far one channel of a continuous stream may
	// run ahead of the slowest channel.
	MaxStagedFrames int

	// Version is the acquisition software version stored in the file.
	Version string
	// Identifier uniquely names the file. A random UUID is used when empty.
	Identifier         string
	SessionDescription string

	// EventSchema declares the metadata carried by every TTL event. It is
	// propagated, and thereby locked, by the first StartNewRecording.
	EventSchema *metadata.EventSchema

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *metrics.Recorder
}

func (o *Options) applyDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.SpikeChunkSize <= 0 {
		o.SpikeChunkSize = DefaultSpikeChunkSize
	}
	if o.EventChunkSize <= 0 {
		o.EventChunkSize = DefaultEventChunkSize
	}
	if o.MaxStagedFrames <= 0 {
		o.MaxStagedFrames = DefaultMaxStagedFrames
	}
	if o.Identifier == "" {
		o.Identifier = uuid.NewString()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// File is an open recording container.
type File struct {
	backend storage.Backend
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics.Recorder

	closed    bool
	recording bool
	session   int
	started   time.Time

	continuous []*stream
	spikes     []*stream

	ttl, control, messages storage.Dataset
	eventCount             uint64
	messageCount           uint64
	ttlStats               *ttlStats

	// schema is the propagated event schema of the session, nil when TTL
	// events carry no metadata.
	schema  *metadata.EventSchema
	metaBuf []byte
	scratch []int16
	rows    storage.RowWriter

	// err is the first backend failure of the session. Every later write
	// returns it.
	err error
}

// NewFile creates the top-level structure of a new container on backend.
func NewFile(backend storage.Backend, opts Options) (*File, error) {
	if backend == nil {
		return nil, errors.New("recording: backend is required")
	}
	for _, field := range [][2]string{
		{"Identifier", opts.Identifier},
		{"SessionDescription", opts.SessionDescription},
		{"Version", opts.Version},
	} {
		if strings.ContainsRune(field[1], 0) {
			return nil, core.Violation("NewFile", "%s contains NUL", field[0])
		}
	}
	opts.applyDefaults()
	f := &File{
		backend: backend,
		opts:    opts,
		logger:  opts.Logger.With("component", "RecordingFile"),
		tracer:  opts.Tracer,
		metrics: opts.Metrics,
	}
	if err := f.createFileStructure(); err != nil {
		return nil, err
	}
	f.logger.Info("Recording file created", "location", backend.Location(), "identifier", opts.Identifier)
	return f, nil
}

func (f *File) createFileStructure() error {
	for _, g := range fileGroups {
		if err := f.backend.CreateGroup(g); err != nil {
			return &core.StructureError{Path: g, Err: err}
		}
	}
	root := &attrSet{}
	root.text("nwb_version", core.NWBVersion)
	root.text("identifier", f.opts.Identifier)
	root.text("file_create_date", time.Now().UTC().Format(time.RFC3339Nano))
	if f.opts.SessionDescription != "" {
		root.text("session_description", f.opts.SessionDescription)
	}
	if err := root.apply(f.backend, ""); err != nil {
		return &core.StructureError{Path: "/", Err: err}
	}
	if f.opts.Version != "" {
		general := &attrSet{}
		general.text("software_version", f.opts.Version)
		if err := general.apply(f.backend, "general"); err != nil {
			return &core.StructureError{Path: "general", Err: err}
		}
	}
	return nil
}

// FileName returns the location of the underlying container.
func (f *File) FileName() string {
	return f.backend.Location()
}

// IsRecording reports whether a session is active.
func (f *File) IsRecording() bool {
	return f.recording
}

// StartNewRecording creates the structure of session recordingNumber: one
// stream per continuous source and per spike electrode, and the event
// datasets. It is all-or-nothing: on failure nothing of the session remains
// and the returned error matches core.ErrStructureCreation.
func (f *File) StartNewRecording(ctx context.Context, recordingNumber int, continuous, electrodes []RecordingInfo) (err error) {
	if f.closed {
		return core.ErrClosed
	}
	if f.recording {
		return core.Violation("StartNewRecording", "recording %d is still active", f.session)
	}
	if recordingNumber < 0 {
		return core.Violation("StartNewRecording", "invalid recording number %d", recordingNumber)
	}
	for i := range continuous {
		if err := continuous[i].validate(Continuous); err != nil {
			return core.Violation("StartNewRecording", "continuous %d: %v", i, err)
		}
	}
	for i := range electrodes {
		if err := electrodes[i].validate(Spike); err != nil {
			return core.Violation("StartNewRecording", "electrode %d: %v", i, err)
		}
	}

	var span trace.Span
	if f.tracer != nil {
		_, span = f.tracer.Start(ctx, "RecordingFile.StartNewRecording")
		span.SetAttributes(
			attribute.Int("recording.number", recordingNumber),
			attribute.Int("recording.continuous", len(continuous)),
			attribute.Int("recording.electrodes", len(electrodes)),
		)
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "session structure creation failed")
			}
			span.End()
		}()
	}

	start := time.Now()
	sessionPath := SessionPath(recordingNumber)
	if err := f.backend.CreateGroup(sessionPath); err != nil {
		// an existing session group is left untouched
		f.logger.Error("Failed to start recording", "recording", recordingNumber, "error", err)
		return &core.StructureError{Path: sessionPath, Err: err}
	}
	if err := f.createSession(recordingNumber, sessionPath, continuous, electrodes); err != nil {
		f.rollback(sessionPath)
		f.logger.Error("Failed to start recording", "recording", recordingNumber, "error", err)
		return err
	}

	f.recording = true
	f.session = recordingNumber
	f.started = start
	f.err = nil
	f.metrics.SessionStarted(len(f.continuous), len(f.spikes), time.Since(start))
	f.logger.Info("Recording started",
		"recording", recordingNumber,
		"continuous", len(f.continuous),
		"electrodes", len(f.spikes),
		"path", sessionPath)
	return nil
}

func (f *File) createSession(n int, sessionPath string, continuous, electrodes []RecordingInfo) error {
	for _, g := range []string{groupContinuous, groupSpikes, groupEvents, groupTTL, groupMessages} {
		p := core.JoinPath(sessionPath, g)
		if err := f.backend.CreateGroup(p); err != nil {
			return &core.StructureError{Path: p, Err: err}
		}
	}
	session := &attrSet{}
	session.add("recording_number", metadata.ScalarValue(int32(n)))
	session.text("session_start_time", time.Now().UTC().Format(time.RFC3339Nano))
	if err := session.apply(f.backend, sessionPath); err != nil {
		return &core.StructureError{Path: sessionPath, Err: err}
	}

	f.continuous = make([]*stream, 0, len(continuous))
	for i := range continuous {
		info := &continuous[i]
		help := fmt.Sprintf("continuous samples of %s, %d channels", info.SourceName, info.NumChannels)
		s, err := f.createRecordingStructures(Continuous, ContinuousPath(n, *info), info, help, f.opts.ChunkSize)
		if err != nil {
			return err
		}
		f.continuous = append(f.continuous, s)
	}

	maxWidth := 0
	f.spikes = make([]*stream, 0, len(electrodes))
	for i := range electrodes {
		info := &electrodes[i]
		help := fmt.Sprintf("spike waveforms of %s, %d samples x %d channels", info.ElectrodeName, info.SamplesPerSpike, info.NumChannels)
		s, err := f.createRecordingStructures(Spike, SpikePath(n, i, *info), info, help, f.opts.SpikeChunkSize)
		if err != nil {
			return err
		}
		f.spikes = append(f.spikes, s)
		maxWidth = max(maxWidth, s.width)
	}
	if cap(f.scratch) < maxWidth {
		f.scratch = make([]int16, maxWidth)
	}

	return f.createEventStructures(n)
}

func (f *File) createEventStructures(n int) error {
	f.schema = nil
	f.metaBuf = nil
	metaSize := 0
	if f.opts.EventSchema != nil {
		f.schema = f.opts.EventSchema.Propagate()
		metaSize = f.schema.TotalSize()
		if metaSize > 0 {
			f.metaBuf = make([]byte, metaSize)
		}
	}

	var err error
	ttlPath := TTLPath(n)
	if f.ttl, err = f.backend.CreateDataset(ttlPath, ttlSpec(f.opts.EventChunkSize, metaSize)); err != nil {
		return &core.StructureError{Path: ttlPath, Err: err}
	}
	if f.schema != nil && f.schema.Count() > 0 {
		if err := schemaAttributes(f.schema).apply(f.backend, ttlPath); err != nil {
			return &core.StructureError{Path: ttlPath, Err: err}
		}
	}
	controlPath := TTLControlPath(n)
	if f.control, err = f.backend.CreateDataset(controlPath, controlSpec(f.opts.EventChunkSize)); err != nil {
		return &core.StructureError{Path: controlPath, Err: err}
	}
	messagesPath := MessagesPath(n)
	if f.messages, err = f.backend.CreateDataset(messagesPath, messagesSpec(f.opts.EventChunkSize)); err != nil {
		return &core.StructureError{Path: messagesPath, Err: err}
	}
	f.eventCount = 0
	f.messageCount = 0
	f.ttlStats = newTTLStats()
	return nil
}

// rollback closes everything the failed session opened and unlinks its group.
func (f *File) rollback(sessionPath string) {
	for _, s := range f.allStreams() {
		s.close()
	}
	for _, ds := range []storage.Dataset{f.ttl, f.control, f.messages} {
		if ds != nil {
			ds.Close()
		}
	}
	if err := f.backend.Unlink(sessionPath); err != nil && !errors.Is(err, storage.ErrNotFound) {
		f.logger.Warn("Failed to unlink partial session", "path", sessionPath, "error", err)
	}
	f.resetSession()
}

func (f *File) resetSession() {
	f.continuous = nil
	f.spikes = nil
	f.ttl, f.control, f.messages = nil, nil, nil
	f.ttlStats = nil
	f.recording = false
}

func (f *File) allStreams() []*stream {
	all := make([]*stream, 0, len(f.continuous)+len(f.spikes))
	all = append(all, f.continuous...)
	return append(all, f.spikes...)
}

// StopRecording writes the session summaries and closes every dataset of the
// session. Stream ids are invalid afterwards. Stopping without an active
// session is a no-op.
func (f *File) StopRecording(ctx context.Context) (err error) {
	if !f.recording {
		return nil
	}
	var span trace.Span
	if f.tracer != nil {
		_, span = f.tracer.Start(ctx, "RecordingFile.StopRecording")
		span.SetAttributes(
			attribute.Int("recording.number", f.session),
			attribute.Int64("recording.events", int64(f.eventCount)),
		)
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "stop recording failed")
			}
			span.End()
		}()
	}

	for id, s := range f.continuous {
		if n := s.stagedSamples(); n > 0 {
			f.logger.Warn("Dropping samples of incomplete frames", "recording", f.session, "stream", id, "samples", n)
		}
	}
	var errs []error
	if f.err == nil {
		errs = append(errs, f.summarize())
	}
	for _, s := range f.allStreams() {
		errs = append(errs, s.close())
	}
	for _, ds := range []storage.Dataset{f.ttl, f.control, f.messages} {
		if cerr := ds.Close(); cerr != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", ds.Path(), cerr))
		}
	}
	if f.err != nil {
		errs = append(errs, f.err)
	}

	f.logger.Info("Recording stopped",
		"recording", f.session,
		"events", f.eventCount,
		"messages", f.messageCount,
		"duration", time.Since(f.started))
	f.metrics.SessionStopped()
	f.resetSession()
	return errors.Join(errs...)
}

func (f *File) summarize() error {
	for _, s := range f.allStreams() {
		if err := s.summarize(f.backend); err != nil {
			return err
		}
	}
	a := &attrSet{}
	a.add("num_events", metadata.ScalarValue(f.eventCount))
	list, bitmap, err := f.ttlStats.attributes()
	if err != nil {
		return err
	}
	if list != nil {
		a.add("channels", list)
		a.add("channel_bitmap", bitmap)
	}
	if err := a.apply(f.backend, TTLPath(f.session)); err != nil {
		return err
	}
	m := &attrSet{}
	m.add("num_messages", metadata.ScalarValue(f.messageCount))
	return m.apply(f.backend, MessagesPath(f.session))
}

// Close stops an active session and closes the backend.
func (f *File) Close(ctx context.Context) error {
	if f.closed {
		return nil
	}
	stopErr := f.StopRecording(ctx)
	f.closed = true
	if err := f.backend.Close(); err != nil {
		return errors.Join(stopErr, fmt.Errorf("close backend %s: %w", f.backend.Location(), err))
	}
	f.logger.Info("Recording file closed", "location", f.backend.Location())
	return stopErr
}

// ContinuousSampleCount returns the number of frames committed to a
// continuous stream.
func (f *File) ContinuousSampleCount(id int) (uint64, error) {
	s, err := f.stream("ContinuousSampleCount", f.continuous, id)
	if err != nil {
		return 0, err
	}
	return s.count, nil
}

// TimestampCount returns the number of timestamps written to a continuous
// stream.
func (f *File) TimestampCount(id int) (uint64, error) {
	s, err := f.stream("TimestampCount", f.continuous, id)
	if err != nil {
		return 0, err
	}
	return s.tsCount, nil
}

// SpikeCount returns the number of spikes written to an electrode.
func (f *File) SpikeCount(id int) (uint64, error) {
	s, err := f.stream("SpikeCount", f.spikes, id)
	if err != nil {
		return 0, err
	}
	return s.count, nil
}

func (f *File) EventCount() uint64   { return f.eventCount }
func (f *File) MessageCount() uint64 { return f.messageCount }

// stream looks up id in arena.
func (f *File) stream(op string, arena []*stream, id int) (*stream, error) {
	if !f.recording {
		return nil, &core.ContractViolationError{Op: op, Message: "no session", Err: core.ErrNotRecording}
	}
	if id < 0 || id >= len(arena) {
		return nil, core.Violation(op, "unknown stream id %d (have %d)", id, len(arena))
	}
	return arena[id], nil
}

// schemaAttributes records the layout of the TTL metadata field.
func schemaAttributes(schema *metadata.EventSchema) *attrSet {
	a := &attrSet{}
	for i, d := range schema.Descriptors() {
		a.text(fmt.Sprintf("metadata.%d", i), d.String())
	}
	a.add("metadata_size", metadata.ScalarValue(int32(schema.TotalSize())))
	return a
}
