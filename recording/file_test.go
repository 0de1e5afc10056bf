package recording

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/INLOpen/nexusnwb/compressors"
	"github.com/INLOpen/nexusnwb/core"
	"github.com/INLOpen/nexusnwb/metadata"
	"github.com/INLOpen/nexusnwb/metrics"
	"github.com/INLOpen/nexusnwb/storage"
	"github.com/INLOpen/nexusnwb/storage/container"
	"github.com/INLOpen/nexusnwb/storage/memory"
)

func newTestFile(t *testing.T, opts Options) (*File, *memory.Backend) {
	t.Helper()
	backend := memory.New("test.nwb")
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("test")
	}
	f, err := NewFile(backend, opts)
	require.NoError(t, err)
	return f, backend
}

func source(proc, src, channels int) RecordingInfo {
	return RecordingInfo{
		SourceName:  "Rhythm FPGA",
		BitVolts:    0.195,
		ProcessorID: proc,
		SourceID:    src,
		NumChannels: channels,
		SampleRate:  30000,
	}
}

func electrode(name string, channels, samples int) RecordingInfo {
	return RecordingInfo{
		SourceName:      "Spike Detector",
		BitVolts:        0.195,
		ProcessorID:     102,
		NumChannels:     channels,
		SamplesPerSpike: samples,
		SampleRate:      30000,
		ElectrodeName:   name,
	}
}

func flushedRows(t *testing.T, b *memory.Backend, path string) ([]byte, uint64) {
	t.Helper()
	ds, ok := b.Dataset(path)
	require.True(t, ok, "dataset %s", path)
	return ds.Data()
}

func textAttr(t *testing.T, b *memory.Backend, path, name string) string {
	t.Helper()
	v, ok := b.Attribute(path, name)
	require.True(t, ok, "attribute %s on %s", name, path)
	s, err := v.GetString()
	require.NoError(t, err)
	return s
}

func TestNewFile_Structure(t *testing.T) {
	f, b := newTestFile(t, Options{Version: "0.6.7", Identifier: "file-1"})
	assert.Equal(t, "test.nwb", f.FileName())
	assert.False(t, f.IsRecording())

	for _, g := range fileGroups {
		kind, ok := b.Kind(g)
		require.True(t, ok, g)
		assert.Equal(t, storage.KindGroup, kind)
	}
	assert.Equal(t, core.NWBVersion, textAttr(t, b, "", "nwb_version"))
	assert.Equal(t, "file-1", textAttr(t, b, "", "identifier"))
	assert.Equal(t, "0.6.7", textAttr(t, b, "general", "software_version"))

	// a generated identifier is used when none is given
	_, b2 := newTestFile(t, Options{})
	assert.Len(t, textAttr(t, b2, "", "identifier"), 36)
}

func TestStartNewRecording_Layout(t *testing.T) {
	h := metadata.NewHolder()
	desc := metadata.MustDescriptor(metadata.FLOAT, 1, "impedance", "electrode impedance in kOhm")
	v, err := metadata.NewValueFor(desc)
	require.NoError(t, err)
	require.NoError(t, metadata.SetScalar(v, float32(250)))
	require.NoError(t, h.Add(desc, v))

	cont := source(100, 0, 2)
	cont.Metadata = h
	cont.Channels = []string{"CH1", "CH2"}
	f, b := newTestFile(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.StartNewRecording(ctx, 1, []RecordingInfo{cont}, []RecordingInfo{electrode("Stereotrode 1", 2, 4)}))
	assert.True(t, f.IsRecording())

	base := "acquisition/timeseries/recording1"
	for _, p := range []string{
		base + "/continuous/100_0/data",
		base + "/continuous/100_0/timestamps",
		base + "/spikes/Stereotrode_1/data",
		base + "/spikes/Stereotrode_1/timestamps",
		base + "/events/ttl/data",
		base + "/events/ttl/control",
		base + "/events/messages/data",
	} {
		kind, ok := b.Kind(p)
		require.True(t, ok, p)
		assert.Equal(t, storage.KindDataset, kind, p)
	}

	dataPath := base + "/continuous/100_0/data"
	bv, ok := b.Attribute(dataPath, "bit_volts")
	require.True(t, ok)
	got, err := metadata.Scalar[float32](bv)
	require.NoError(t, err)
	assert.Equal(t, float32(0.195), got)
	assert.Equal(t, "CH1\nCH2", textAttr(t, b, dataPath, "channel_labels"))

	imp, ok := b.Attribute(dataPath, "meta.impedance")
	require.True(t, ok)
	assert.True(t, imp.Equal(v))
	assert.Equal(t, "electrode impedance in kOhm", textAttr(t, b, dataPath, "meta_description.impedance"))
	assert.Equal(t, "Stereotrode 1", textAttr(t, b, base+"/spikes/Stereotrode_1/data", "electrode_name"))

	// a second start while active is rejected
	err = f.StartNewRecording(ctx, 2, nil, nil)
	assert.True(t, core.IsContractViolation(err))
	require.NoError(t, f.StopRecording(ctx))
	assert.False(t, f.IsRecording())
}

func TestWriteData_CounterSumsBatches(t *testing.T) {
	f, b := newTestFile(t, Options{ChunkSize: 4})
	ctx := context.Background()
	require.NoError(t, f.StartNewRecording(ctx, 0, []RecordingInfo{source(100, 0, 1)}, nil))

	next := int16(0)
	for _, n := range []int{5, 3, 10} {
		batch := make([]int16, n)
		ts := make([]float64, n)
		for i := range batch {
			batch[i] = next
			ts[i] = float64(next) / 30000
			next++
		}
		require.NoError(t, f.WriteData(0, 0, batch))
		require.NoError(t, f.WriteTimestamps(0, ts))
	}
	count, err := f.ContinuousSampleCount(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(18), count)
	tsCount, err := f.TimestampCount(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(18), tsCount)

	require.NoError(t, f.StopRecording(ctx))
	base := ContinuousPath(0, source(100, 0, 1))
	raw, rows := flushedRows(t, b, DataPath(base))
	assert.Equal(t, uint64(18), rows)
	samples := storage.DecodeInt16s(raw)
	for i, s := range samples {
		assert.Equal(t, int16(i), s)
	}
	_, tsRows := flushedRows(t, b, TimestampsPath(base))
	assert.Equal(t, uint64(18), tsRows)

	n, ok := b.Attribute(DataPath(base), "num_samples")
	require.True(t, ok)
	got, err := metadata.Scalar[uint64](n)
	require.NoError(t, err)
	assert.Equal(t, uint64(18), got)

	// ids are invalid after stop
	_, err = f.ContinuousSampleCount(0)
	assert.ErrorIs(t, err, core.ErrNotRecording)
}

func TestWriteData_Frames(t *testing.T) {
	f, b := newTestFile(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.StartNewRecording(ctx, 0, []RecordingInfo{source(100, 0, 2)}, nil))

	require.NoError(t, f.WriteData(0, 0, []int16{1, 2, 3}))
	count, _ := f.ContinuousSampleCount(0)
	assert.Equal(t, uint64(0), count, "no frame is complete yet")

	require.NoError(t, f.WriteData(0, 1, []int16{-1, -2}))
	count, _ = f.ContinuousSampleCount(0)
	assert.Equal(t, uint64(2), count)

	err := f.WriteData(0, 2, []int16{9})
	assert.True(t, core.IsContractViolation(err))
	err = f.WriteData(1, 0, []int16{9})
	assert.True(t, core.IsContractViolation(err))

	require.NoError(t, f.StopRecording(ctx))
	path := DataPath(ContinuousPath(0, source(100, 0, 2)))
	raw, rows := flushedRows(t, b, path)
	assert.Equal(t, uint64(2), rows)
	assert.Equal(t, []int16{1, -1, 2, -2}, storage.DecodeInt16s(raw))

	dropped, ok := b.Attribute(path, "num_dropped_samples")
	require.True(t, ok)
	n, err := metadata.Scalar[uint64](dropped)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestWriteData_StagingBound(t *testing.T) {
	f, b := newTestFile(t, Options{MaxStagedFrames: 4})
	ctx := context.Background()
	require.NoError(t, f.StartNewRecording(ctx, 0, []RecordingInfo{source(100, 0, 2)}, nil))

	require.NoError(t, f.WriteData(0, 0, []int16{1, 2, 3, 4, 5}))
	require.NoError(t, f.WriteData(0, 1, []int16{-1, -2, -3}))
	require.NoError(t, f.WriteTimestamps(0, []float64{0, 1, 2, 3, 4}))
	count, _ := f.ContinuousSampleCount(0)
	assert.Equal(t, uint64(3), count)
	ts, _ := f.TimestampCount(0)
	assert.Equal(t, uint64(5), ts)

	// channel 0 holds 2 pending samples; 3 more would put it 5 frames ahead
	err := f.WriteData(0, 0, []int16{6, 7, 8})
	assert.True(t, core.IsContractViolation(err))
	require.NoError(t, f.WriteData(0, 0, []int16{6, 7}))
	// catching up is always allowed
	require.NoError(t, f.WriteData(0, 1, []int16{-4, -5, -6, -7, -8, -9}))
	count, _ = f.ContinuousSampleCount(0)
	assert.Equal(t, uint64(7), count)

	require.NoError(t, f.StopRecording(ctx))
	path := DataPath(ContinuousPath(0, source(100, 0, 2)))
	dropped, ok := b.Attribute(path, "num_dropped_samples")
	require.True(t, ok)
	n, err := metadata.Scalar[uint64](dropped)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestWriteSpike(t *testing.T) {
	f, b := newTestFile(t, Options{SpikeChunkSize: 2})
	ctx := context.Background()
	electrodes := []RecordingInfo{electrode("tt0", 1, 4), electrode("", 2, 4)}
	require.NoError(t, f.StartNewRecording(ctx, 3, nil, electrodes))
	assert.Len(t, f.scratch, 8)

	err := f.WriteSpike(1, make([]uint16, 7), 0.1)
	require.Error(t, err)
	assert.True(t, core.IsContractViolation(err))
	err = f.WriteSpike(0, make([]uint16, 8), 0.1)
	assert.True(t, core.IsContractViolation(err), "oversized waveform")
	count, _ := f.SpikeCount(0)
	assert.Equal(t, uint64(0), count)

	require.NoError(t, f.WriteSpike(0, []uint16{0x8000, 0x8001, 0x7fff, 0xffff}, 0.25))
	for i := 0; i < 3; i++ {
		require.NoError(t, f.WriteSpike(1, []uint16{0, 0x8000, 0x8000, 0x8000, 0x8000, 0x8000, 0x8000, 0x8000}, float64(i)))
	}
	count, _ = f.SpikeCount(0)
	assert.Equal(t, uint64(1), count)
	count, _ = f.SpikeCount(1)
	assert.Equal(t, uint64(3), count)
	_, err = f.SpikeCount(2)
	assert.True(t, core.IsContractViolation(err))

	require.NoError(t, f.StopRecording(ctx))
	base0 := SpikePath(3, 0, electrodes[0])
	raw, rows := flushedRows(t, b, DataPath(base0))
	assert.Equal(t, uint64(1), rows)
	assert.Equal(t, []int16{0, 1, -1, 0x7fff}, storage.DecodeInt16s(raw))
	raw, _ = flushedRows(t, b, TimestampsPath(base0))
	assert.Equal(t, []float64{0.25}, storage.DecodeFloat64s(raw))

	base1 := SpikePath(3, 1, electrodes[1])
	assert.True(t, strings.HasSuffix(base1, "/electrode1"))
	_, rows = flushedRows(t, b, DataPath(base1))
	assert.Equal(t, uint64(3), rows)

	q, ok := b.Attribute(DataPath(base1), "amplitude_quantiles")
	require.True(t, ok)
	quantiles, err := metadata.Array[float64](q)
	require.NoError(t, err)
	require.Len(t, quantiles, len(AmplitudeQuantiles))
	assert.InDelta(t, 32768*0.195, quantiles[0], 1e-3)
}

func TestWriteTTLEvent_Metadata(t *testing.T) {
	schema, owner := metadata.NewEventSchema()
	require.NoError(t, schema.Add(owner, metadata.MustDescriptor(metadata.UINT16, 1, "sensor", "")))
	require.NoError(t, schema.Add(owner, metadata.MustDescriptor(metadata.CHAR, 8, "label", "")))

	f, b := newTestFile(t, Options{EventSchema: schema})
	ctx := context.Background()
	require.NoError(t, f.StartNewRecording(ctx, 0, nil, nil))
	assert.True(t, schema.Locked())

	sensor := metadata.ScalarValue(uint16(7))
	label, err := metadata.StringValue("lick", 8)
	require.NoError(t, err)

	require.NoError(t, f.WriteTTLEvent(3, 1, 104, 1.5, sensor, label))
	require.NoError(t, f.WriteTTLEvent(1, -1, 104, 1.75, sensor, label))

	err = f.WriteTTLEvent(1, 1, 104, 2.0, label, sensor)
	assert.True(t, core.IsContractViolation(err))
	err = f.WriteTTLEvent(1, 1, 104, 2.0, sensor)
	assert.True(t, core.IsContractViolation(err))
	err = f.WriteTTLEvent(-1, 1, 104, 2.0, sensor, label)
	assert.True(t, core.IsContractViolation(err))
	assert.Equal(t, uint64(2), f.EventCount())

	require.NoError(t, f.StopRecording(ctx))

	raw, rows := flushedRows(t, b, TTLPath(0))
	require.Equal(t, uint64(2), rows)
	r := storage.NewRowReader(raw)
	assert.Equal(t, 1.5, r.Float64())
	assert.Equal(t, int32(3), r.Int32())
	assert.Equal(t, int32(1), r.Int32())
	assert.Equal(t, uint8(104), r.Uint8())
	values, err := metadata.Deserialize(schema, r.Raw(schema.TotalSize()))
	require.NoError(t, err)
	s, err := metadata.Scalar[uint16](values[0])
	require.NoError(t, err)
	assert.Equal(t, uint16(7), s)
	text, err := values[1].GetString()
	require.NoError(t, err)
	assert.Equal(t, "lick", text)
	require.NoError(t, r.Err)

	control, _ := flushedRows(t, b, TTLControlPath(0))
	assert.Equal(t, []byte{1, 0}, control)

	bm, ok := b.Attribute(TTLPath(0), "channel_bitmap")
	require.True(t, ok)
	channels, err := DecodeChannelBitmap(bm)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 3}, channels.ToArray())

	// the locked schema can no longer be extended
	err = schema.Add(owner, metadata.MustDescriptor(metadata.INT8, 1, "late", ""))
	assert.ErrorIs(t, err, core.ErrLockViolation)
}

func TestWriteTTLEvent_NoSchema(t *testing.T) {
	f, b := newTestFile(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.StartNewRecording(ctx, 0, nil, nil))

	err := f.WriteTTLEvent(0, 1, 1, 0.5, metadata.ScalarValue(int8(1)))
	assert.True(t, core.IsContractViolation(err))
	require.NoError(t, f.WriteTTLEvent(0, 1, 1, 0.5))
	require.NoError(t, f.WriteMessage("trial 1 start", 0.5))
	require.NoError(t, f.WriteMessage("", 0.75))
	assert.Equal(t, uint64(2), f.MessageCount())
	require.NoError(t, f.StopRecording(ctx))

	ds, ok := b.Dataset(TTLPath(0))
	require.True(t, ok)
	assert.Equal(t, ttlSpec(DefaultEventChunkSize, 0).RowSize(), ds.Spec().RowSize())

	raw, rows := flushedRows(t, b, MessagesPath(0))
	require.Equal(t, uint64(2), rows)
	r := storage.NewRowReader(raw)
	assert.Equal(t, 0.5, r.Float64())
	assert.Equal(t, "trial 1 start", r.String())
	assert.Equal(t, 0.75, r.Float64())
	assert.Equal(t, "", r.String())
	require.NoError(t, r.Err)

	n, ok := b.Attribute(MessagesPath(0), "num_messages")
	require.True(t, ok)
	got, err := metadata.Scalar[uint64](n)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got)
	_, ok = b.Attribute(TTLPath(0), "channels")
	assert.True(t, ok)
}

func TestStartNewRecording_HolderAttributes(t *testing.T) {
	gain := metadata.MustDescriptor(metadata.FLOAT, 1, "gain", "amplifier gain")
	shadow := metadata.MustDescriptor(metadata.INT32, 1, "gain.description", "")
	ref := metadata.MustDescriptor(metadata.UINT8, 1, "ref", "reference channel")

	h := metadata.NewHolder()
	require.NoError(t, h.Add(gain, metadata.ScalarValue(float32(2.5))))
	require.NoError(t, h.Add(shadow, metadata.ScalarValue(int32(7))))
	require.NoError(t, h.Add(ref, metadata.ScalarValue(uint8(3))))
	require.NoError(t, h.Add(ref, metadata.ScalarValue(uint8(4))))

	cont := source(100, 0, 1)
	cont.Metadata = h
	f, b := newTestFile(t, Options{})
	require.NoError(t, f.StartNewRecording(context.Background(), 0, []RecordingInfo{cont}, nil))
	dataPath := DataPath(ContinuousPath(0, cont))

	assert.Equal(t, "amplifier gain", textAttr(t, b, dataPath, "meta_description.gain"))
	v, ok := b.Attribute(dataPath, "meta.gain.description")
	require.True(t, ok)
	got, err := metadata.Scalar[int32](v)
	require.NoError(t, err)
	assert.Equal(t, int32(7), got)

	// repeated names are suffixed with their holder index
	v, ok = b.Attribute(dataPath, "meta.ref.3")
	require.True(t, ok)
	r, err := metadata.Scalar[uint8](v)
	require.NoError(t, err)
	assert.Equal(t, uint8(4), r)
	assert.Equal(t, "reference channel", textAttr(t, b, dataPath, "meta_description.ref.3"))

	var meta int
	for _, a := range b.Attributes(dataPath) {
		if strings.HasPrefix(a.Name, "meta") {
			meta++
		}
	}
	assert.Equal(t, 7, meta, "every value and description is kept")
}

func TestTextFields_RejectNUL(t *testing.T) {
	_, err := NewFile(memory.New("nul.nwb"), Options{SessionDescription: "odor\x00task"})
	assert.True(t, core.IsContractViolation(err))

	f, b := newTestFile(t, Options{})
	before := b.Paths()
	bad := source(100, 0, 2)
	bad.SourceName = "FPGA\x00"
	err = f.StartNewRecording(context.Background(), 0, []RecordingInfo{bad}, nil)
	assert.True(t, core.IsContractViolation(err))

	labels := source(100, 0, 2)
	labels.Channels = []string{"CH1", "CH\n2"}
	err = f.StartNewRecording(context.Background(), 0, []RecordingInfo{labels}, nil)
	assert.True(t, core.IsContractViolation(err))

	el := electrode("Tetrode\x001", 4, 8)
	err = f.StartNewRecording(context.Background(), 0, nil, []RecordingInfo{el})
	assert.True(t, core.IsContractViolation(err))
	assert.Equal(t, before, b.Paths())
}

func TestWrites_WithoutSession(t *testing.T) {
	f, _ := newTestFile(t, Options{})
	errs := []error{
		f.WriteData(0, 0, []int16{1}),
		f.WriteTimestamps(0, []float64{1}),
		f.WriteSpike(0, []uint16{1}, 1),
		f.WriteTTLEvent(0, 1, 0, 1),
		f.WriteMessage("hello", 1),
	}
	for _, err := range errs {
		assert.ErrorIs(t, err, core.ErrNotRecording)
		assert.True(t, core.IsContractViolation(err))
	}
	assert.NoError(t, f.StopRecording(context.Background()))
}

func TestStartNewRecording_AllOrNothing(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate continuous source", func(t *testing.T) {
		f, b := newTestFile(t, Options{})
		before := b.Paths()
		err := f.StartNewRecording(ctx, 1, []RecordingInfo{source(100, 0, 2), source(100, 0, 4)}, nil)
		require.Error(t, err)
		assert.True(t, core.IsStructureCreation(err))
		assert.ErrorIs(t, err, storage.ErrExists)

		assert.False(t, f.IsRecording())
		assert.Equal(t, before, b.Paths())
		assert.False(t, b.Exists(SessionPath(1)))
		_, err = f.ContinuousSampleCount(0)
		assert.ErrorIs(t, err, core.ErrNotRecording)
		assert.ErrorIs(t, f.WriteData(0, 0, []int16{1}), core.ErrNotRecording)

		// the file stays usable
		require.NoError(t, f.StartNewRecording(ctx, 1, []RecordingInfo{source(100, 0, 2)}, nil))
		require.NoError(t, f.StopRecording(ctx))
	})

	t.Run("backend failure on a spike dataset", func(t *testing.T) {
		f, b := newTestFile(t, Options{})
		injected := errors.New("disk full")
		b.SetHooks(memory.Hooks{BeforeCreate: func(path string) error {
			if strings.HasSuffix(path, "/spikes/tt1/timestamps") {
				return injected
			}
			return nil
		}})
		err := f.StartNewRecording(ctx, 0,
			[]RecordingInfo{source(100, 0, 1)},
			[]RecordingInfo{electrode("tt0", 1, 4), electrode("tt1", 1, 4)})
		require.ErrorIs(t, err, injected)
		assert.True(t, core.IsStructureCreation(err))
		var serr *core.StructureError
		require.ErrorAs(t, err, &serr)
		assert.True(t, strings.HasSuffix(serr.Path, "tt1/timestamps"))
		assert.False(t, b.Exists(SessionPath(0)))
		assert.Empty(t, f.continuous)
		assert.Empty(t, f.spikes)
	})

	t.Run("existing session is kept", func(t *testing.T) {
		f, b := newTestFile(t, Options{})
		require.NoError(t, f.StartNewRecording(ctx, 0, []RecordingInfo{source(100, 0, 1)}, nil))
		require.NoError(t, f.WriteData(0, 0, []int16{1, 2}))
		require.NoError(t, f.StopRecording(ctx))

		err := f.StartNewRecording(ctx, 0, []RecordingInfo{source(100, 0, 1)}, nil)
		assert.ErrorIs(t, err, storage.ErrExists)
		_, rows := flushedRows(t, b, DataPath(ContinuousPath(0, source(100, 0, 1))))
		assert.Equal(t, uint64(2), rows)
	})

	t.Run("invalid info", func(t *testing.T) {
		f, b := newTestFile(t, Options{})
		err := f.StartNewRecording(ctx, 0, nil, []RecordingInfo{electrode("tt0", 1, 0)})
		assert.True(t, core.IsContractViolation(err))
		assert.False(t, b.Exists(SessionPath(0)))
	})
}

func TestBackendFailureIsSticky(t *testing.T) {
	f, b := newTestFile(t, Options{Metrics: metrics.NewRecorder(prometheus.NewRegistry())})
	ctx := context.Background()
	require.NoError(t, f.StartNewRecording(ctx, 0, []RecordingInfo{source(100, 0, 1)}, nil))

	injected := errors.New("i/o error")
	b.SetHooks(memory.Hooks{BeforeAppend: func(path string) error {
		if strings.HasSuffix(path, "/timestamps") {
			return injected
		}
		return nil
	}})
	require.NoError(t, f.WriteData(0, 0, []int16{1}))
	err := f.WriteTimestamps(0, []float64{0})
	require.ErrorIs(t, err, injected)
	assert.False(t, core.IsContractViolation(err))

	// later writes fail with the first error, even on healthy datasets
	assert.ErrorIs(t, f.WriteData(0, 0, []int16{2}), injected)
	assert.ErrorIs(t, f.WriteMessage("after failure", 1), injected)
	count, _ := f.ContinuousSampleCount(0)
	assert.Equal(t, uint64(1), count)

	assert.ErrorIs(t, f.StopRecording(ctx), injected)
	assert.False(t, f.IsRecording())

	b.SetHooks(memory.Hooks{})
	require.NoError(t, f.StartNewRecording(ctx, 1, []RecordingInfo{source(100, 0, 1)}, nil))
	require.NoError(t, f.WriteTimestamps(0, []float64{0}))
	require.NoError(t, f.Close(ctx))
}

func TestFile_Close(t *testing.T) {
	f, b := newTestFile(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.StartNewRecording(ctx, 0, []RecordingInfo{source(100, 0, 1)}, nil))
	require.NoError(t, f.WriteData(0, 0, []int16{4, 5, 6}))
	require.NoError(t, f.Close(ctx))
	require.NoError(t, f.Close(ctx))

	_, rows := flushedRows(t, b, DataPath(ContinuousPath(0, source(100, 0, 1))))
	assert.Equal(t, uint64(3), rows)
	assert.ErrorIs(t, f.StartNewRecording(ctx, 1, nil, nil), core.ErrClosed)
	assert.ErrorIs(t, f.WriteMessage("late", 0), core.ErrClosed)
}

func TestFile_Tracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	f, _ := newTestFile(t, Options{Tracer: tp.Tracer("recording")})
	ctx := context.Background()
	require.NoError(t, f.StartNewRecording(ctx, 0, nil, nil))
	require.NoError(t, f.StopRecording(ctx))

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"RecordingFile.StartNewRecording", "RecordingFile.StopRecording"}, names)
}

func TestFile_ContainerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session"+core.ContainerFileSuffix)
	w, err := container.Create(container.Options{Path: path, Compressor: compressors.NewZstdCompressor()})
	require.NoError(t, err)

	schema, owner := metadata.NewEventSchema()
	require.NoError(t, schema.Add(owner, metadata.MustDescriptor(metadata.INT32, 2, "position", "x,y")))
	f, err := NewFile(w, Options{ChunkSize: 8, EventSchema: schema})
	require.NoError(t, err)
	assert.Equal(t, path, f.FileName())

	ctx := context.Background()
	cont := source(100, 0, 2)
	spk := electrode("tt0", 1, 4)
	require.NoError(t, f.StartNewRecording(ctx, 0, []RecordingInfo{cont}, []RecordingInfo{spk}))
	for i := 0; i < 20; i++ {
		require.NoError(t, f.WriteData(0, 0, []int16{int16(i)}))
		require.NoError(t, f.WriteData(0, 1, []int16{int16(-i)}))
		require.NoError(t, f.WriteTimestamps(0, []float64{float64(i) / 30000}))
	}
	require.NoError(t, f.WriteSpike(0, []uint16{0x8000, 0x8010, 0x7ff0, 0x8000}, 0.001))
	pos, err := metadata.ArrayValue([]int32{10, 20})
	require.NoError(t, err)
	require.NoError(t, f.WriteTTLEvent(2, 1, 100, 0.0005, pos))
	require.NoError(t, f.WriteMessage("done", 0.002))
	require.NoError(t, f.Close(ctx))

	r, err := container.Open(path, container.ReaderOptions{})
	require.NoError(t, err)
	defer r.Close()

	raw, rows, err := r.ReadAll(DataPath(ContinuousPath(0, cont)))
	require.NoError(t, err)
	assert.Equal(t, uint64(20), rows)
	samples := storage.DecodeInt16s(raw)
	assert.Equal(t, []int16{19, -19}, samples[38:])

	v, ok := r.Attribute(DataPath(ContinuousPath(0, cont)), "num_samples")
	require.True(t, ok)
	n, err := metadata.Scalar[uint64](v)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), n)

	raw, rows, err = r.ReadAll(TTLPath(0))
	require.NoError(t, err)
	require.Equal(t, uint64(1), rows)
	values, err := metadata.Deserialize(schema, raw[len(raw)-schema.TotalSize():])
	require.NoError(t, err)
	xy, err := metadata.Array[int32](values[0])
	require.NoError(t, err)
	assert.Equal(t, []int32{10, 20}, xy)

	report, err := r.Verify(ctx)
	require.NoError(t, err)
	assert.Positive(t, report.Chunks)
}
