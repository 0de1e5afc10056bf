package recording

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"
	"github.com/caio/go-tdigest/v4"

	"github.com/INLOpen/nexusnwb/metadata"
)

// AmplitudeQuantiles are the spike amplitude quantiles stored per electrode.
var AmplitudeQuantiles = []float64{0.5, 0.95, 0.99}

// spikeStats tracks peak amplitudes of one electrode in microvolts.
type spikeStats struct {
	td *tdigest.TDigest
}

func newSpikeStats() (*spikeStats, error) {
	td, err := tdigest.New()
	if err != nil {
		return nil, fmt.Errorf("tdigest.New failed: %w", err)
	}
	return &spikeStats{td: td}, nil
}

// observe records the peak absolute amplitude of a transformed waveform.
func (s *spikeStats) observe(waveform []int16, bitVolts float32) error {
	peak := 0
	for _, v := range waveform {
		a := int(v)
		if a < 0 {
			a = -a
		}
		if a > peak {
			peak = a
		}
	}
	return s.td.Add(float64(peak) * float64(bitVolts))
}

func (s *spikeStats) quantiles() []float64 {
	if s.td.Count() == 0 {
		return nil
	}
	out := make([]float64, len(AmplitudeQuantiles))
	for i, q := range AmplitudeQuantiles {
		out[i] = s.td.Quantile(q)
	}
	return out
}

// ttlStats tracks the set of TTL channels seen in a session.
type ttlStats struct {
	channels *roaring.Bitmap
}

func newTTLStats() *ttlStats {
	return &ttlStats{channels: roaring.New()}
}

func (s *ttlStats) observe(channel int) {
	s.channels.Add(uint32(channel))
}

// attributes returns the channel set as a UINT32 array and as a serialized
// roaring bitmap. Both are nil when no event was written.
func (s *ttlStats) attributes() (list, bitmap *metadata.Value, err error) {
	if s.channels.IsEmpty() {
		return nil, nil, nil
	}
	list, err = metadata.ArrayValue(s.channels.ToArray())
	if err != nil {
		return nil, nil, err
	}
	raw, err := s.channels.ToBytes()
	if err != nil {
		return nil, nil, fmt.Errorf("serialize TTL channel bitmap: %w", err)
	}
	bitmap, err = metadata.ArrayValue(raw)
	if err != nil {
		return nil, nil, err
	}
	return list, bitmap, nil
}

// DecodeChannelBitmap parses the "channel_bitmap" attribute of a TTL dataset.
func DecodeChannelBitmap(v *metadata.Value) (*roaring.Bitmap, error) {
	raw, err := metadata.Array[uint8](v)
	if err != nil {
		return nil, err
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode TTL channel bitmap: %w", err)
	}
	return bm, nil
}
