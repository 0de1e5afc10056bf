package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/INLOpen/nexusnwb/config"
	"github.com/INLOpen/nexusnwb/metadata"
	"github.com/INLOpen/nexusnwb/recording"
)

const (
	blockFrames          = 1024
	channelsPerElectrode = 4 // tetrodes
	ttlChannels          = 2
	processorID          = 100
	spikeProcessorID     = 102
)

type sessionStats struct {
	frames   uint64
	spikes   uint64
	events   uint64
	messages uint64
}

// generator synthesizes a session: sine waves on every continuous channel,
// Poisson spikes on tetrodes, periodic TTL pulses carrying trial metadata.
type generator struct {
	cfg      config.SessionConfig
	logger   *slog.Logger
	rng      *rand.Rand
	duration time.Duration
	ttlEvery time.Duration

	schema    *metadata.EventSchema
	trialDesc *metadata.Descriptor
	stimDesc  *metadata.Descriptor

	stats sessionStats
}

func newGenerator(cfg config.SessionConfig, logger *slog.Logger) *generator {
	schema, owner := metadata.NewEventSchema()
	g := &generator{
		cfg:       cfg,
		logger:    logger.With("component", "Generator"),
		rng:       rand.New(rand.NewPCG(1, 2)),
		duration:  config.ParseDuration(cfg.Duration, 2*time.Second, logger),
		ttlEvery:  config.ParseDuration(cfg.TTLInterval, 250*time.Millisecond, logger),
		schema:    schema,
		trialDesc: metadata.MustDescriptor(metadata.UINT32, 1, "trial", "trial number"),
		stimDesc:  metadata.MustDescriptor(metadata.CHAR, 16, "stimulus", "stimulus label"),
	}
	// the schema is fresh, so Add cannot fail
	_ = schema.Add(owner, g.trialDesc)
	_ = schema.Add(owner, g.stimDesc)
	return g
}

func (g *generator) sources() ([]recording.RecordingInfo, []recording.RecordingInfo) {
	headstage := metadata.NewHolder()
	desc := metadata.MustDescriptor(metadata.CHAR, 32, "headstage", "acquisition headstage model")
	v, _ := metadata.StringValue("RHD2132", 32)
	_ = headstage.Add(desc, v)

	labels := make([]string, g.cfg.Channels)
	for i := range labels {
		labels[i] = fmt.Sprintf("CH%d", i+1)
	}
	continuous := []recording.RecordingInfo{{
		SourceName:  "Synthetic FPGA",
		BitVolts:    float32(g.cfg.BitVolts),
		ProcessorID: processorID,
		SourceID:    0,
		NumChannels: g.cfg.Channels,
		SampleRate:  float32(g.cfg.SampleRate),
		Metadata:    headstage,
		Channels:    labels,
	}}

	electrodes := make([]recording.RecordingInfo, g.cfg.Electrodes)
	for i := range electrodes {
		electrodes[i] = recording.RecordingInfo{
			SourceName:      "Spike Detector",
			BitVolts:        float32(g.cfg.BitVolts),
			ProcessorID:     spikeProcessorID,
			SourceID:        0,
			NumChannels:     channelsPerElectrode,
			SamplesPerSpike: g.cfg.SamplesPerSpike,
			SampleRate:      float32(g.cfg.SampleRate),
			ElectrodeName:   fmt.Sprintf("Tetrode %d", i+1),
		}
	}
	return continuous, electrodes
}

// record writes one full session, then stops it. A cancelled ctx ends the
// session early without error.
func (g *generator) record(ctx context.Context, file *recording.File, recordingNumber int) error {
	continuous, electrodes := g.sources()
	if err := file.StartNewRecording(ctx, recordingNumber, continuous, electrodes); err != nil {
		return err
	}
	if err := file.WriteMessage("session start", 0); err != nil {
		return err
	}

	rate := g.cfg.SampleRate
	total := int(g.duration.Seconds() * rate)
	channelBuf := make([]int16, blockFrames)
	tsBuf := make([]float64, blockFrames)
	waveform := make([]uint16, g.cfg.SamplesPerSpike*channelsPerElectrode)
	spikeProb := g.cfg.SpikeRate / rate
	nextTTL := 0.0
	trial := uint32(0)

	for frame := 0; frame < total; frame += blockFrames {
		if ctx.Err() != nil {
			g.logger.Warn("Recording interrupted", "frames", frame)
			break
		}
		n := min(blockFrames, total-frame)
		for i := 0; i < n; i++ {
			tsBuf[i] = float64(frame+i) / rate
		}
		for ch := 0; ch < g.cfg.Channels; ch++ {
			freq := 5 + float64(ch)*3
			for i := 0; i < n; i++ {
				s := 2000*math.Sin(2*math.Pi*freq*tsBuf[i]) + g.rng.NormFloat64()*50
				channelBuf[i] = int16(s)
			}
			if err := file.WriteData(0, ch, channelBuf[:n]); err != nil {
				return err
			}
		}
		if err := file.WriteTimestamps(0, tsBuf[:n]); err != nil {
			return err
		}

		for e := range electrodes {
			for i := 0; i < n; i++ {
				if g.rng.Float64() >= spikeProb {
					continue
				}
				g.spikeWaveform(waveform)
				if err := file.WriteSpike(e, waveform, tsBuf[i]); err != nil {
					return err
				}
			}
		}

		end := tsBuf[n-1]
		for g.ttlEvery > 0 && nextTTL <= end {
			trial++
			if err := g.writeTTL(file, trial, nextTTL); err != nil {
				return err
			}
			nextTTL += g.ttlEvery.Seconds()
		}
	}

	if err := file.WriteMessage("session end", float64(total)/rate); err != nil {
		return err
	}
	g.collect(file, len(electrodes))
	return file.StopRecording(ctx)
}

// writeTTL writes a rising edge on an alternating channel followed by the
// falling edge 10 ms later.
func (g *generator) writeTTL(file *recording.File, trial uint32, ts float64) error {
	trialValue, err := metadata.NewValueFor(g.trialDesc)
	if err != nil {
		return err
	}
	if err := metadata.SetScalar(trialValue, trial); err != nil {
		return err
	}
	stim, err := metadata.StringValue(fmt.Sprintf("tone-%d", trial%4), g.stimDesc.Length())
	if err != nil {
		return err
	}
	channel := int(trial % ttlChannels)
	if err := file.WriteTTLEvent(channel, 1, processorID, ts, trialValue, stim); err != nil {
		return err
	}
	return file.WriteTTLEvent(channel, -1, processorID, ts+0.01, trialValue, stim)
}

// spikeWaveform fills w with an offset-binary biphasic spike per channel.
func (g *generator) spikeWaveform(w []uint16) {
	samples := g.cfg.SamplesPerSpike
	peak := 300 + g.rng.Float64()*700
	for ch := 0; ch < channelsPerElectrode; ch++ {
		gain := 0.4 + 0.6*g.rng.Float64()
		for i := 0; i < samples; i++ {
			x := float64(i)/float64(samples)*2*math.Pi - math.Pi/2
			v := -peak * gain * math.Sin(x) * math.Exp(-float64(i)/float64(samples)*3)
			w[ch*samples+i] = uint16(int32(v) + 0x8000)
		}
	}
}

func (g *generator) collect(file *recording.File, electrodes int) {
	g.stats.frames, _ = file.ContinuousSampleCount(0)
	g.stats.spikes = 0
	for e := 0; e < electrodes; e++ {
		n, _ := file.SpikeCount(e)
		g.stats.spikes += n
	}
	g.stats.events = file.EventCount()
	g.stats.messages = file.MessageCount()
}
