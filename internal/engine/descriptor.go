package engine

import (
	"fmt"

	"github.com/rackbay/rackbay/internal/conf"
	"github.com/rackbay/rackbay/internal/host"
	"github.com/rackbay/rackbay/internal/plugin"
)

// instance adapts one engine to the outer-host ABI. The parameter surface
// is fixed at 100 inputs + 10 outputs regardless of the loaded plugin set;
// indices beyond the first plugin's parameter count read the engine's
// float cache.
type instance struct {
	e     *Engine
	calls host.HostCalls
}

// newDescriptor builds one descriptor variant. All eight differ only in
// name, label, I/O counts and MIDI-out count.
func newDescriptor(name, label string, audioIns, audioOuts, midiOuts, cvIns, cvOuts uint32, patchbay bool) host.Descriptor {
	return host.Descriptor{
		Name:      name,
		Label:     label,
		Maker:     "rackbay project",
		Copyright: "GPL-2.0-or-later",
		AudioIns:  audioIns,
		AudioOuts: audioOuts,
		CVIns:     cvIns,
		CVOuts:    cvOuts,
		MidiIns:   1,
		MidiOuts:  midiOuts,
		Instantiate: func(calls host.HostCalls, bufferSize uint32, sampleRate float64) host.Instance {
			settings := conf.Setting()
			opts := OptionsFromSettings(settings)
			var e *Engine
			if patchbay {
				e = NewWithExternalPorts(opts, bufferSize, sampleRate, audioIns, audioOuts, cvIns, cvOuts)
			} else {
				opts.ProcessMode = ModeRack
				e = New(opts, bufferSize, sampleRate)
			}
			return &instance{e: e, calls: calls}
		},
	}
}

// Descriptors returns the eight embeddable engine variants.
func Descriptors() []host.Descriptor {
	return []host.Descriptor{
		newDescriptor("Rackbay-Rack", "rackbay-rack", 2, 2, 1, 0, 0, false),
		newDescriptor("Rackbay-Rack (no midi out)", "rackbay-rack-no-midi-out", 2, 2, 0, 0, 0, false),
		newDescriptor("Rackbay-Patchbay", "rackbay-patchbay", 2, 2, 1, 0, 0, true),
		newDescriptor("Rackbay-Patchbay (sidechain)", "rackbay-patchbay-sidechain", 3, 2, 1, 0, 0, true),
		newDescriptor("Rackbay-Patchbay (16chan)", "rackbay-patchbay16", 16, 16, 1, 0, 0, true),
		newDescriptor("Rackbay-Patchbay (32chan)", "rackbay-patchbay32", 32, 32, 1, 0, 0, true),
		newDescriptor("Rackbay-Patchbay (64chan)", "rackbay-patchbay64", 64, 64, 1, 0, 0, true),
		newDescriptor("Rackbay-Patchbay (cv)", "rackbay-patchbay-cv", 2, 2, 1, 5, 5, true),
	}
}

// --- host.Instance ---

func (in *instance) Cleanup() {
	in.e.Close()
}

func (in *instance) GetParameterCount() uint32 {
	return host.ParameterSurfaceIns + host.ParameterSurfaceOuts
}

func (in *instance) firstPlugin() plugin.Handle {
	return in.e.Plugin(0)
}

func (in *instance) GetParameterInfo(index uint32) host.ParameterInfo {
	if p := in.firstPlugin(); p != nil && index < p.ParameterCount() {
		data := p.ParameterData(index)
		ranges := p.ParameterRanges(index)
		return host.ParameterInfo{
			Name: data.Name,
			Unit: data.Unit,
			Def:  ranges.Def, Min: ranges.Min, Max: ranges.Max,
			Step: ranges.Step, StepSmall: ranges.StepSmall, StepLarge: ranges.StepLarge,
		}
	}
	return host.ParameterInfo{
		Name: fmt.Sprintf("Param %03d", index+1),
		Min:  0, Max: 1, Step: 0.01, StepSmall: 0.001, StepLarge: 0.1,
	}
}

func (in *instance) GetParameterValue(index uint32) float32 {
	if p := in.firstPlugin(); p != nil && index < p.ParameterCount() {
		return p.GetParameterValue(index)
	}
	if index < uint32(len(in.e.paramCache)) {
		return in.e.paramCache[index]
	}
	return 0
}

func (in *instance) SetParameterValue(index uint32, value float32) {
	if p := in.firstPlugin(); p != nil && index < p.ParameterCount() {
		p.SetParameterValue(index, value, false)
		return
	}
	if index < uint32(len(in.e.paramCache)) {
		in.e.paramCache[index] = value
	}
}

func (in *instance) GetMidiProgramCount() uint32 {
	if p := in.firstPlugin(); p != nil {
		return p.MidiProgramCount()
	}
	return 0
}

func (in *instance) GetMidiProgramInfo(index uint32) (bank, program uint32, name string) {
	if p := in.firstPlugin(); p != nil && index < p.MidiProgramCount() {
		mp := p.MidiProgramData(index)
		return mp.Bank, mp.Program, mp.Name
	}
	return 0, 0, ""
}

func (in *instance) SetMidiProgram(channel uint8, bank, program uint32) {
	p := in.firstPlugin()
	if p == nil {
		return
	}
	for i := range p.MidiProgramCount() {
		mp := p.MidiProgramData(i)
		if mp.Bank == bank && mp.Program == program {
			p.SetMidiProgram(int32(i), false)
			return
		}
	}
}

func (in *instance) UIShow(show bool) { in.e.UIShow(show) }
func (in *instance) UIIdle()          { in.e.Idle() }

func (in *instance) UISetParameterValue(index uint32, value float32) {
	in.SetParameterValue(index, value)
	if in.calls != nil {
		in.calls.UIParameterChanged(index, value)
	}
}

func (in *instance) Activate()   { in.e.Activate() }
func (in *instance) Deactivate() { in.e.Deactivate() }

func (in *instance) Process(inBufs, outBufs [][]float32, frames uint32, midiIn []host.MidiEvent) []host.MidiEvent {
	return in.e.Process(inBufs, outBufs, frames, midiIn)
}

func (in *instance) GetState() string           { return in.e.GetState() }
func (in *instance) SetState(data string) error { return in.e.SetState(data) }

func (in *instance) Dispatcher(opcode host.DispatcherOpcode, index int32, value int64, ptr any, opt float32) int64 {
	switch opcode {
	case host.OpcodeBufferSizeChanged:
		in.e.BufferSizeChanged(uint32(value))
	case host.OpcodeSampleRateChanged:
		in.e.SampleRateChanged(float64(opt))
	case host.OpcodeOfflineChanged:
		in.e.OfflineChanged(value != 0)
	}
	return 0
}

// InternalEngine exposes the engine behind an instance, the ABI's
// get-internal-handle.
func InternalEngine(i host.Instance) *Engine {
	if in, ok := i.(*instance); ok {
		return in.e
	}
	return nil
}
