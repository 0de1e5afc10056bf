package recording

import (
	"fmt"
	"strings"

	"github.com/INLOpen/nexusnwb/metadata"
	"github.com/INLOpen/nexusnwb/storage"
)

// attrSet collects typed attributes for one node.
type attrSet struct {
	attrs []storage.Attribute
	err   error
}

func (a *attrSet) add(name string, v *metadata.Value) {
	a.attrs = append(a.attrs, storage.Attribute{Name: name, Value: v})
}

func (a *attrSet) text(name, s string) {
	if a.err != nil {
		return
	}
	v, err := metadata.StringValue(s, len(s)+1)
	if err != nil {
		a.err = fmt.Errorf("attribute %s: %w", name, err)
		return
	}
	a.add(name, v)
}

func (a *attrSet) array(name string, v *metadata.Value, err error) {
	if a.err != nil {
		return
	}
	if err != nil {
		a.err = fmt.Errorf("attribute %s: %w", name, err)
		return
	}
	a.add(name, v)
}

func (a *attrSet) apply(backend storage.Backend, path string) error {
	if a.err != nil {
		return a.err
	}
	for _, attr := range a.attrs {
		if err := backend.SetAttribute(path, attr); err != nil {
			return fmt.Errorf("set attribute %s on %s: %w", attr.Name, path, err)
		}
	}
	return nil
}

// streamAttributes describes a stream's data dataset.
func streamAttributes(kind StreamKind, info *RecordingInfo) *attrSet {
	a := &attrSet{}
	a.text("source_name", info.SourceName)
	a.add("bit_volts", metadata.ScalarValue(info.BitVolts))
	a.add("sample_rate", metadata.ScalarValue(info.SampleRate))
	a.add("processor_id", metadata.ScalarValue(int32(info.ProcessorID)))
	a.add("source_id", metadata.ScalarValue(int32(info.SourceID)))
	a.add("num_channels", metadata.ScalarValue(int32(info.NumChannels)))
	if kind == Spike {
		a.text("electrode_name", info.ElectrodeName)
		a.add("samples_per_spike", metadata.ScalarValue(int32(info.SamplesPerSpike)))
	}
	if len(info.Channels) > 0 {
		a.text("channel_labels", strings.Join(info.Channels, "\n"))
	}
	addHolder(a, info.Metadata)
	return a
}

// Static metadata attribute prefixes. Values and descriptions live in
// separate namespaces so no entry name can shadow another's description.
const (
	metaValuePrefix       = "meta."
	metaDescriptionPrefix = "meta_description."
)

// addHolder turns static metadata into attributes named "meta.<name>", with
// the description in "meta_description.<name>". Repeated names keep every
// entry by suffixing the holder index.
func addHolder(a *attrSet, h *metadata.Holder) {
	if h.Count() == 0 {
		return
	}
	seen := make(map[string]struct{}, h.Count())
	i := 0
	h.Each(func(desc *metadata.Descriptor, value *metadata.Value) error {
		key := desc.Name()
		for n := i; ; n++ {
			if _, dup := seen[key]; !dup {
				break
			}
			key = fmt.Sprintf("%s.%d", desc.Name(), n)
		}
		seen[key] = struct{}{}
		i++
		a.add(metaValuePrefix+key, value)
		if desc.Description() != "" {
			a.text(metaDescriptionPrefix+key, desc.Description())
		}
		return nil
	})
}
