// Package adapters ships the built-in in-process plugins: small utilities
// the host can always load without any external format wrapper. They also
// back the bridge worker binary when it is asked to host an internal
// plugin.
package adapters

import (
	"math"

	"github.com/rackbay/rackbay/internal/errors"
	"github.com/rackbay/rackbay/internal/event"
	"github.com/rackbay/rackbay/internal/plugin"
)

// Factory resolves the built-in labels. It satisfies the engine's
// AdapterFactory signature for plugin.TypeInternal.
func Factory(ptype plugin.Type, filename, label string, uniqueID int64) (plugin.Adapter, error) {
	if ptype != plugin.TypeInternal {
		return nil, errors.Newf("no format wrapper for %s plugins in this build", ptype).
			Component("adapters").
			Category(errors.CategoryPluginLoad).
			Build()
	}
	switch label {
	case "passthrough":
		return newPassthrough(), nil
	case "gain":
		return newGain(), nil
	case "tone":
		return newTone(), nil
	default:
		return nil, errors.Newf("unknown internal plugin %q", label).
			Component("adapters").
			Category(errors.CategoryNotFound).
			Build()
	}
}

// base fills the Adapter boilerplate shared by the builtins.
type base struct {
	info   plugin.Info
	ports  plugin.PortCounts
	params []paramDef
	values []float32

	sampleRate float64
	active     bool
}

type paramDef struct {
	data   plugin.ParamData
	ranges plugin.ParamRanges
}

func (b *base) Info() plugin.Info        { return b.info }
func (b *base) Hints() plugin.HintFlags  { return 0 }
func (b *base) Ports() plugin.PortCounts { return b.ports }
func (b *base) Latency() uint32          { return 0 }

func (b *base) ParameterCount() uint32 { return uint32(len(b.params)) }

func (b *base) ParameterInfo(i uint32) (plugin.ParamData, plugin.ParamRanges) {
	def := b.params[i]
	def.data.Index = int32(i)
	def.data.RIndex = int32(i)
	return def.data, def.ranges
}

func (b *base) GetParameterValue(i uint32) float32 {
	if i >= uint32(len(b.values)) {
		return 0
	}
	return b.values[i]
}

func (b *base) SetParameterValue(i uint32, v float32) {
	if i < uint32(len(b.values)) {
		b.values[i] = v
	}
}

func (b *base) Programs() []plugin.Program           { return nil }
func (b *base) SetProgram(int32)                     {}
func (b *base) MidiPrograms() []plugin.MidiProgram   { return nil }
func (b *base) SetMidiProgram(uint32, uint32)        {}
func (b *base) SetCustomData(string, string, string) {}
func (b *base) Chunk() ([]byte, bool)                { return nil, false }
func (b *base) SetChunk([]byte)                      {}
func (b *base) Activate() error                      { b.active = true; return nil }
func (b *base) Deactivate() error                    { b.active = false; return nil }
func (b *base) BufferSizeChanged(uint32)             {}
func (b *base) SampleRateChanged(r float64)          { b.sampleRate = r }
func (b *base) ShowUI(bool)                          {}
func (b *base) UIIdle()                              {}
func (b *base) Close() error                         { return nil }

// --- passthrough ---

type passthrough struct{ base }

func newPassthrough() *passthrough {
	return &passthrough{base{
		info:  plugin.Info{Type: plugin.TypeInternal, Name: "Passthrough", Label: "passthrough", RealName: "Passthrough", Maker: "rackbay project"},
		ports: plugin.PortCounts{AudioIn: 2, AudioOut: 2, EventIn: 1, EventOut: 1},
	}}
}

func (p *passthrough) Process(audioIn, audioOut, cvIn, cvOut [][]float32, inEvents []event.Event, outEvents *event.Buffer, frames uint32) error {
	for i := range audioOut {
		if i < len(audioIn) {
			copy(audioOut[i][:frames], audioIn[i][:frames])
		} else {
			clear(audioOut[i][:frames])
		}
	}
	// MIDI passes straight through as well.
	for i := range inEvents {
		outEvents.Append(inEvents[i])
	}
	return nil
}

// --- gain ---

type gain struct{ base }

func newGain() *gain {
	g := &gain{base{
		info:  plugin.Info{Type: plugin.TypeInternal, Name: "Gain", Label: "gain", RealName: "Gain", Maker: "rackbay project"},
		ports: plugin.PortCounts{AudioIn: 2, AudioOut: 2, EventIn: 1},
		params: []paramDef{{
			data: plugin.ParamData{
				Type:  plugin.ParamInput,
				Hints: plugin.ParamHintEnabled | plugin.ParamHintAutomable,
				Name:  "Gain", Unit: "dB", MidiCC: -1,
			},
			ranges: plugin.ParamRanges{Def: 0, Min: -60, Max: 24, Step: 0.1, StepSmall: 0.01, StepLarge: 1},
		}},
	}}
	g.values = []float32{0}
	return g
}

func (g *gain) Process(audioIn, audioOut, cvIn, cvOut [][]float32, inEvents []event.Event, outEvents *event.Buffer, frames uint32) error {
	amp := float32(math.Pow(10, float64(g.values[0])/20))
	for i := range audioOut {
		in := i
		if in >= len(audioIn) {
			in = len(audioIn) - 1
		}
		if in < 0 {
			clear(audioOut[i][:frames])
			continue
		}
		for k := range frames {
			audioOut[i][k] = audioIn[in][k] * amp
		}
	}
	return nil
}

// --- tone ---

// tone is a tiny synth: one sine voice per held note, enough to exercise
// the event path end to end.
type tone struct {
	base
	phase [128]float64
	held  [128]bool
}

func newTone() *tone {
	t := &tone{base: base{
		info:  plugin.Info{Type: plugin.TypeInternal, Name: "Tone", Label: "tone", RealName: "Tone", Maker: "rackbay project"},
		ports: plugin.PortCounts{AudioOut: 2, EventIn: 1},
		params: []paramDef{{
			data: plugin.ParamData{
				Type:  plugin.ParamInput,
				Hints: plugin.ParamHintEnabled | plugin.ParamHintAutomable,
				Name:  "Level", MidiCC: -1,
			},
			ranges: plugin.ParamRanges{Def: 0.3, Min: 0, Max: 1, Step: 0.01, StepSmall: 0.001, StepLarge: 0.1},
		}},
		sampleRate: 48000,
	}}
	t.values = []float32{0.3}
	return t
}

func (t *tone) Hints() plugin.HintFlags { return plugin.HintIsSynth }

func (t *tone) Process(audioIn, audioOut, cvIn, cvOut [][]float32, inEvents []event.Event, outEvents *event.Buffer, frames uint32) error {
	for _, e := range inEvents {
		if e.Type != event.TypeMIDI || e.Midi.Size < 3 {
			continue
		}
		status := e.Midi.Data[0] & 0xF0
		note := e.Midi.Data[1] & 0x7F
		switch {
		case status == event.MidiStatusNoteOn && e.Midi.Data[2] > 0:
			t.held[note] = true
		case status == event.MidiStatusNoteOff,
			status == event.MidiStatusNoteOn && e.Midi.Data[2] == 0:
			t.held[note] = false
		}
	}

	for i := range audioOut {
		clear(audioOut[i][:frames])
	}
	level := float64(t.values[0])
	for note := range t.held {
		if !t.held[note] {
			continue
		}
		freq := 440 * math.Pow(2, (float64(note)-69)/12)
		step := 2 * math.Pi * freq / t.sampleRate
		phase := t.phase[note]
		for k := range frames {
			s := float32(math.Sin(phase) * level)
			phase += step
			for i := range audioOut {
				audioOut[i][k] += s
			}
		}
		t.phase[note] = math.Mod(phase, 2*math.Pi)
	}
	return nil
}
