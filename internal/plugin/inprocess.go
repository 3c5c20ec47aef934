package plugin

import (
	"github.com/rackbay/rackbay/internal/errors"
	"github.com/rackbay/rackbay/internal/event"
	"github.com/rackbay/rackbay/internal/host"
)

// InProcess hosts a plugin whose format adapter runs inside our process.
type InProcess struct {
	Base
	adapter Adapter

	eventScratch event.Buffer
}

// NewInProcess wraps an adapter into a handle and loads its topology.
func NewInProcess(h Host, id uint32, adapter Adapter) (*InProcess, error) {
	p := &InProcess{
		Base:    newBase(h, id, adapter.Info()),
		adapter: adapter,
	}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload recomputes the port layout, hints, parameters and programs from
// the backing plugin.
func (p *InProcess) Reload() error {
	p.LockMaster()
	defer p.UnlockMaster()

	counts := p.adapter.Ports()
	p.buildPorts(counts)
	p.hints = p.adapter.Hints()
	p.recomputeHints(counts)

	maxParams := p.host.MaxParameters()
	n := p.adapter.ParameterCount()
	if maxParams > 0 && n > maxParams {
		n = maxParams
	}
	p.params = p.params[:0]
	for i := range n {
		data, ranges := p.adapter.ParameterInfo(i)
		data.Index = int32(i)
		ranges.FixDefault()
		p.params = append(p.params, paramEntry{
			data:   data,
			ranges: ranges,
			value:  p.adapter.GetParameterValue(i),
		})
	}

	p.programs = p.adapter.Programs()
	p.midiPrograms = p.adapter.MidiPrograms()
	p.setLatency(p.adapter.Latency(), counts.AudioOut)
	p.SetEnabled(true)
	return nil
}

// SetActive flips the plugin's processing state, calling into the backend
// outside the RT path.
func (p *InProcess) SetActive(active, sendCallback bool) {
	if p.active.Load() == active {
		return
	}
	p.LockMaster()
	defer p.UnlockMaster()

	if active {
		if cap(p.balanceScratch) < int(p.host.BufferSize()) {
			p.balanceScratch = make([]float32, p.host.BufferSize())
		}
		if err := p.adapter.Activate(); err != nil {
			return
		}
	} else {
		_ = p.adapter.Deactivate()
	}
	p.active.Store(active)
	if sendCallback {
		v := float32(0)
		if active {
			v = 1
		}
		p.host.Callback(host.CallbackParameterValueChanged, p.id, ParameterActive, 0, 0, v, "")
	}
}

// SetParameterValue coerces, stores and forwards a parameter value,
// returning the value actually set.
func (p *InProcess) SetParameterValue(i uint32, value float32, sendCallback bool) float32 {
	if i >= uint32(len(p.params)) {
		return 0
	}
	fixed := p.fixAndStoreParameter(i, value)
	p.adapter.SetParameterValue(i, fixed)
	p.notifyParameter(int32(i), fixed, sendCallback)
	return fixed
}

func (p *InProcess) SetParameterMidiChannel(i uint32, channel uint8) {
	if i >= uint32(len(p.params)) || channel > 15 {
		return
	}
	p.params[i].data.MidiChannel = channel
	p.host.Callback(host.CallbackParameterMidiChannelChanged, p.id, int32(i), int32(channel), 0, 0, "")
}

func (p *InProcess) SetParameterMidiCC(i uint32, cc int16) {
	if i >= uint32(len(p.params)) || cc < -1 || cc > 119 {
		return
	}
	p.params[i].data.MidiCC = cc
	p.host.Callback(host.CallbackParameterMidiCCChanged, p.id, int32(i), int32(cc), 0, 0, "")
}

func (p *InProcess) SetProgram(index int32, sendCallback bool) {
	if index < -1 || index >= int32(len(p.programs)) {
		return
	}
	p.currentProgram = index
	if index >= 0 {
		p.adapter.SetProgram(index)
		// Program switches move every parameter; refresh the cache.
		for i := range p.params {
			p.params[i].value = p.adapter.GetParameterValue(uint32(i))
		}
	}
	if sendCallback {
		p.host.Callback(host.CallbackProgramChanged, p.id, index, 0, 0, 0, "")
	}
}

func (p *InProcess) SetMidiProgram(index int32, sendCallback bool) {
	if index < -1 || index >= int32(len(p.midiPrograms)) {
		return
	}
	p.currentMidiProgram = index
	if index >= 0 {
		mp := p.midiPrograms[index]
		p.adapter.SetMidiProgram(mp.Bank, mp.Program)
	}
	if sendCallback {
		p.host.Callback(host.CallbackMidiProgramChanged, p.id, index, 0, 0, 0, "")
	}
}

func (p *InProcess) SetCustomData(dtype, key, value string) {
	p.setCustomDataLocal(dtype, key, value)
	p.adapter.SetCustomData(dtype, key, value)
}

// Process runs one cycle. Disabled, inactive or lock-contended cycles
// silence every output.
func (p *InProcess) Process(audioIn, audioOut, cvIn, cvOut [][]float32, frames uint32) {
	if !p.Enabled() || !p.Active() {
		silence(audioOut, cvOut, frames)
		p.eventOut.Clear()
		return
	}
	if !p.TryLockSingle() {
		silence(audioOut, cvOut, frames)
		return
	}
	defer p.UnlockSingle()

	p.beginCycle()
	p.eventScratch.Clear()
	p.eventOut.Clear()
	p.processEventPhase(func(e *event.Event) {
		p.eventScratch.Append(*e)
	})

	if err := p.adapter.Process(audioIn, audioOut, cvIn, cvOut, p.eventScratch.Events(), &p.eventOut, frames); err != nil {
		silence(audioOut, cvOut, frames)
		return
	}

	p.postProcess(audioIn, audioOut, frames)
	p.updatePeaks(audioIn, audioOut, frames)
}

func (p *InProcess) BufferSizeChanged(newSize uint32) {
	if cap(p.balanceScratch) < int(newSize) {
		p.balanceScratch = make([]float32, newSize)
	}
	p.adapter.BufferSizeChanged(newSize)
}

func (p *InProcess) SampleRateChanged(newRate float64) {
	p.adapter.SampleRateChanged(newRate)
}

func (p *InProcess) UIShow(show bool) {
	p.adapter.ShowUI(show)
}

func (p *InProcess) UIIdle() {
	p.adapter.UIIdle()
}

// PrepareForSave flushes pending backend state. The in-process variant has
// nothing asynchronous to wait on.
func (p *InProcess) PrepareForSave() bool {
	if p.hints&HintUsesChunks != 0 {
		if chunk, ok := p.adapter.Chunk(); ok {
			p.setCustomDataLocal("Chunk", "chunk", encodeChunk(chunk))
		}
	}
	return true
}

func (p *InProcess) Close() error {
	p.SetActive(false, false)
	p.LockMaster()
	defer p.UnlockMaster()
	p.SetEnabled(false)
	if err := p.adapter.Close(); err != nil {
		return errors.New(err).
			Component("plugin").
			Category(errors.CategoryPluginLoad).
			Context("plugin", p.info.Name).
			Build()
	}
	return nil
}
