//go:build linux

package plugin

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rackbay/rackbay/internal/bridge"
	"github.com/rackbay/rackbay/internal/event"
	"github.com/rackbay/rackbay/internal/host"
	"github.com/rackbay/rackbay/internal/ringbuf"
)

// Bridged hosts a plugin living in a separate worker process, proxying
// every operation through the shared-memory transport.
type Bridged struct {
	Base
	transport *bridge.Transport

	declaredParams uint32
	saved          atomic.Bool
	uiClosed       atomic.Bool
	crashReported  atomic.Bool
}

// NewBridged launches the worker and builds the handle from the snapshot
// the worker sends before Ready.
func NewBridged(h Host, id uint32, info Info, cfg bridge.LaunchConfig) (*Bridged, error) {
	p := &Bridged{Base: newBase(h, id, info)}
	p.hints |= HintIsBridge

	t, err := bridge.New(cfg, p, 0)
	if err != nil {
		return nil, err
	}
	p.transport = t

	if err := p.Reload(); err != nil {
		t.RequestQuit()
		t.Close()
		return nil, err
	}
	return p, nil
}

// Reload applies the snapshot topology: sizes the audio pool, rebuilds the
// port lists and derived hints.
func (p *Bridged) Reload() error {
	p.LockMaster()
	defer p.UnlockMaster()

	counts := p.PortCounts()
	if err := p.transport.ResizePool(counts.Total(), p.host.BufferSize()); err != nil {
		return err
	}
	p.buildPorts(counts)
	p.recomputeHints(counts)
	p.hints |= HintIsBridge
	p.SetEnabled(true)
	return nil
}

// --- bridge.Events upcalls (pump thread; OnCrash from the supervisor) ---

// OnCrash marks the plugin dead. It stays visible but inactive; the user is
// told once.
func (p *Bridged) OnCrash() {
	p.active.Store(false)
	if p.crashReported.Swap(true) {
		return
	}
	p.host.Callback(host.CallbackError, p.id, 0, 0, 0, 0,
		fmt.Sprintf("Plugin '%s' has crashed! Saving now will lose its current settings.", p.info.Name))
}

func (p *Bridged) OnError(msg string) {
	p.host.Callback(host.CallbackError, p.id, 0, 0, 0, 0, msg)
}

func (p *Bridged) OnUiClosed() {
	p.uiClosed.Store(true)
	p.host.Callback(host.CallbackUIStateChanged, p.id, 0, 0, 0, 0, "")
}

func (p *Bridged) OnSaved() {
	p.saved.Store(true)
}

func (p *Bridged) OnLatency(frames uint32) {
	p.setLatency(frames, uint32(len(p.audioOutPorts)))
}

// HandleNonRtMessage decodes the worker's snapshot and live-update traffic.
func (p *Bridged) HandleNonRtMessage(op bridge.NonRtServerOpcode, r *ringbuf.Buffer) bool {
	switch op {
	case bridge.NonRtServerPluginInfo1:
		category, ok1 := r.ReadUint32()
		hints, ok2 := r.ReadUint32()
		uniqueID, ok3 := r.ReadLong()
		if !ok1 || !ok2 || !ok3 {
			return false
		}
		p.info.Category = Category(category)
		p.info.UniqueID = uniqueID
		p.hints = HintFlags(hints) | HintIsBridge
		return true

	case bridge.NonRtServerPluginInfo2:
		realName, ok1 := bridge.ReadString(r)
		label, ok2 := bridge.ReadString(r)
		maker, ok3 := bridge.ReadString(r)
		copyright, ok4 := bridge.ReadString(r)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return false
		}
		p.info.RealName = realName
		p.info.Label = label
		p.info.Maker = maker
		p.info.Copyright = copyright
		if p.info.Name == "" {
			p.info.Name = realName
		}
		return true

	case bridge.NonRtServerAudioCount:
		ins, ok1 := r.ReadUint32()
		outs, ok2 := r.ReadUint32()
		cvIns, ok3 := r.ReadUint32()
		cvOuts, ok4 := r.ReadUint32()
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return false
		}
		p.buildPorts(PortCounts{AudioIn: ins, AudioOut: outs, CVIn: cvIns, CVOut: cvOuts,
			EventIn: uint32(len(p.eventInPorts)), EventOut: uint32(len(p.eventOutPorts))})
		return true

	case bridge.NonRtServerMidiCount:
		ins, ok1 := r.ReadUint32()
		outs, ok2 := r.ReadUint32()
		if !ok1 || !ok2 {
			return false
		}
		counts := p.PortCounts()
		counts.EventIn = ins
		counts.EventOut = outs
		p.buildPorts(counts)
		return true

	case bridge.NonRtServerParameterCount:
		n, ok := r.ReadUint32()
		if !ok {
			return false
		}
		if maxParams := p.host.MaxParameters(); maxParams > 0 && n > maxParams {
			p.declaredParams = n
			n = maxParams
		}
		p.params = make([]paramEntry, n)
		for i := range p.params {
			p.params[i].data.Index = int32(i)
			p.params[i].data.MidiCC = -1
		}
		return true

	case bridge.NonRtServerParameterData1:
		index, ok0 := r.ReadUint32()
		ptype, ok1 := r.ReadUint32()
		hints, ok2 := r.ReadUint32()
		rindex, ok3 := r.ReadInt()
		midiChannel, ok4 := r.ReadByte()
		midiCC, ok5 := r.ReadShort()
		if !ok0 || !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
			return false
		}
		if index < uint32(len(p.params)) {
			d := &p.params[index].data
			d.Type = ParamType(ptype)
			d.Hints = ParamHints(hints)
			d.RIndex = rindex
			d.MidiChannel = midiChannel
			d.MidiCC = midiCC
		}
		return true

	case bridge.NonRtServerParameterData2:
		index, ok0 := r.ReadUint32()
		name, ok1 := bridge.ReadString(r)
		unit, ok2 := bridge.ReadString(r)
		if !ok0 || !ok1 || !ok2 {
			return false
		}
		if index < uint32(len(p.params)) {
			p.params[index].data.Name = name
			p.params[index].data.Unit = unit
		}
		return true

	case bridge.NonRtServerParameterRanges1:
		index, ok0 := r.ReadUint32()
		def, ok1 := r.ReadFloat()
		minV, ok2 := r.ReadFloat()
		maxV, ok3 := r.ReadFloat()
		if !ok0 || !ok1 || !ok2 || !ok3 {
			return false
		}
		if index < uint32(len(p.params)) {
			rg := &p.params[index].ranges
			rg.Def, rg.Min, rg.Max = def, minV, maxV
		}
		return true

	case bridge.NonRtServerParameterRanges2:
		index, ok0 := r.ReadUint32()
		step, ok1 := r.ReadFloat()
		stepSmall, ok2 := r.ReadFloat()
		stepLarge, ok3 := r.ReadFloat()
		if !ok0 || !ok1 || !ok2 || !ok3 {
			return false
		}
		if index < uint32(len(p.params)) {
			rg := &p.params[index].ranges
			rg.Step, rg.StepSmall, rg.StepLarge = step, stepSmall, stepLarge
		}
		return true

	case bridge.NonRtServerParameterValue, bridge.NonRtServerDefaultValue:
		index, ok0 := r.ReadUint32()
		value, ok1 := r.ReadFloat()
		if !ok0 || !ok1 {
			return false
		}
		if index < uint32(len(p.params)) {
			if op == bridge.NonRtServerDefaultValue {
				p.params[index].ranges.Def = value
			} else {
				p.params[index].value = value
			}
		}
		return true

	case bridge.NonRtServerCurrentProgram:
		index, ok := r.ReadInt()
		if !ok {
			return false
		}
		p.currentProgram = index
		return true

	case bridge.NonRtServerCurrentMidiProgram:
		index, ok := r.ReadInt()
		if !ok {
			return false
		}
		p.currentMidiProgram = index
		return true

	case bridge.NonRtServerProgramCount:
		n, ok := r.ReadUint32()
		if !ok {
			return false
		}
		p.programs = make([]Program, n)
		return true

	case bridge.NonRtServerProgramName:
		index, ok0 := r.ReadUint32()
		name, ok1 := bridge.ReadString(r)
		if !ok0 || !ok1 {
			return false
		}
		if index < uint32(len(p.programs)) {
			p.programs[index].Name = name
		}
		return true

	case bridge.NonRtServerMidiProgramCount:
		n, ok := r.ReadUint32()
		if !ok {
			return false
		}
		p.midiPrograms = make([]MidiProgram, n)
		return true

	case bridge.NonRtServerMidiProgramData:
		index, ok0 := r.ReadUint32()
		bank, ok1 := r.ReadUint32()
		program, ok2 := r.ReadUint32()
		name, ok3 := bridge.ReadString(r)
		if !ok0 || !ok1 || !ok2 || !ok3 {
			return false
		}
		if index < uint32(len(p.midiPrograms)) {
			p.midiPrograms[index] = MidiProgram{Bank: bank, Program: program, Name: name}
		}
		return true

	case bridge.NonRtServerSetCustomData:
		dtype, ok0 := bridge.ReadString(r)
		key, ok1 := bridge.ReadString(r)
		value, ok2 := bridge.ReadString(r)
		if !ok0 || !ok1 || !ok2 {
			return false
		}
		p.setCustomDataLocal(dtype, key, value)
		return true

	case bridge.NonRtServerSetChunkDataFile:
		path, ok := bridge.ReadString(r)
		if !ok {
			return false
		}
		p.setCustomDataLocal(CustomDataTypeChunk, "file", path)
		return true

	default:
		return false
	}
}

// --- Handle implementation ---

func (p *Bridged) SetActive(active, sendCallback bool) {
	if p.active.Load() == active {
		return
	}
	op := bridge.NonRtClientActivate
	if !active {
		op = bridge.NonRtClientDeactivate
	}
	_ = p.transport.WriteNonRt(func(w *ringbuf.Buffer) bool {
		return w.WriteOpcode(uint32(op))
	})
	if active && cap(p.balanceScratch) < int(p.host.BufferSize()) {
		p.balanceScratch = make([]float32, p.host.BufferSize())
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

func (p *Bridged) SetParameterValue(i uint32, value float32, sendCallback bool) float32 {
	if i >= uint32(len(p.params)) {
		return 0
	}
	fixed := p.fixAndStoreParameter(i, value)
	_ = p.transport.WriteNonRt(func(w *ringbuf.Buffer) bool {
		ok := w.WriteOpcode(uint32(bridge.NonRtClientSetParameterValue))
		ok = w.WriteUint32(i) && ok
		ok = w.WriteFloat(fixed) && ok
		return ok
	})
	p.notifyParameter(int32(i), fixed, sendCallback)
	return fixed
}

func (p *Bridged) SetParameterMidiChannel(i uint32, channel uint8) {
	if i >= uint32(len(p.params)) || channel > 15 {
		return
	}
	p.params[i].data.MidiChannel = channel
	_ = p.transport.WriteNonRt(func(w *ringbuf.Buffer) bool {
		ok := w.WriteOpcode(uint32(bridge.NonRtClientSetParameterMidiChannel))
		ok = w.WriteUint32(i) && ok
		ok = w.WriteByte(channel) && ok
		return ok
	})
	p.host.Callback(host.CallbackParameterMidiChannelChanged, p.id, int32(i), int32(channel), 0, 0, "")
}

func (p *Bridged) SetParameterMidiCC(i uint32, cc int16) {
	if i >= uint32(len(p.params)) || cc < -1 || cc > 119 {
		return
	}
	p.params[i].data.MidiCC = cc
	_ = p.transport.WriteNonRt(func(w *ringbuf.Buffer) bool {
		ok := w.WriteOpcode(uint32(bridge.NonRtClientSetParameterMidiCC))
		ok = w.WriteUint32(i) && ok
		ok = w.WriteShort(cc) && ok
		return ok
	})
	p.host.Callback(host.CallbackParameterMidiCCChanged, p.id, int32(i), int32(cc), 0, 0, "")
}

func (p *Bridged) SetProgram(index int32, sendCallback bool) {
	if index < -1 || index >= int32(len(p.programs)) {
		return
	}
	p.currentProgram = index
	if index >= 0 {
		_ = p.transport.WriteNonRt(func(w *ringbuf.Buffer) bool {
			ok := w.WriteOpcode(uint32(bridge.NonRtClientSetProgram))
			ok = w.WriteInt(index) && ok
			return ok
		})
	}
	if sendCallback {
		p.host.Callback(host.CallbackProgramChanged, p.id, index, 0, 0, 0, "")
	}
}

func (p *Bridged) SetMidiProgram(index int32, sendCallback bool) {
	if index < -1 || index >= int32(len(p.midiPrograms)) {
		return
	}
	p.currentMidiProgram = index
	if index >= 0 {
		mp := p.midiPrograms[index]
		_ = p.transport.WriteNonRt(func(w *ringbuf.Buffer) bool {
			ok := w.WriteOpcode(uint32(bridge.NonRtClientSetMidiProgram))
			ok = w.WriteUint32(mp.Bank) && ok
			ok = w.WriteUint32(mp.Program) && ok
			return ok
		})
	}
	if sendCallback {
		p.host.Callback(host.CallbackMidiProgramChanged, p.id, index, 0, 0, 0, "")
	}
}

func (p *Bridged) SetCustomData(dtype, key, value string) {
	p.setCustomDataLocal(dtype, key, value)
	_ = p.transport.WriteNonRt(func(w *ringbuf.Buffer) bool {
		ok := w.WriteOpcode(uint32(bridge.NonRtClientSetCustomData))
		ok = bridge.WriteString(w, dtype) && ok
		ok = bridge.WriteString(w, key) && ok
		ok = bridge.WriteString(w, value) && ok
		return ok
	})
}

func (p *Bridged) SetCtrlChannel(ch int8, sendCallback bool) {
	p.Base.SetCtrlChannel(ch, sendCallback)
	_ = p.transport.WriteNonRt(func(w *ringbuf.Buffer) bool {
		ok := w.WriteOpcode(uint32(bridge.NonRtClientSetCtrlChannel))
		ok = w.WriteShort(int16(ch)) && ok
		return ok
	})
}

// Process runs one bridged cycle: stage events, push inputs, rendezvous,
// pull outputs. Crash and sticky timeout silence without a round-trip.
func (p *Bridged) Process(audioIn, audioOut, cvIn, cvOut [][]float32, frames uint32) {
	if !p.Enabled() || !p.Active() || p.transport.Crashed() || p.transport.TimedOut() {
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
	p.eventOut.Clear()
	p.processEventPhase(func(e *event.Event) {
		p.forwardEventRT(e)
	})

	pool := p.transport.Pool()
	slot := uint32(0)
	push := func(bufs [][]float32) {
		for _, buf := range bufs {
			copy(pool.Slot(slot)[:frames], buf[:frames])
			slot++
		}
	}
	push(audioIn)
	push(cvIn)

	p.fillTimeInfo()

	if !p.transport.ProcessRT(frames) {
		silence(audioOut, cvOut, frames)
		return
	}

	pull := func(bufs [][]float32) {
		for _, buf := range bufs {
			copy(buf[:frames], pool.Slot(slot)[:frames])
			slot++
		}
	}
	pull(audioOut)
	pull(cvOut)

	p.transport.DrainMidiOut(func(time uint32, port uint8, data []byte) {
		var e event.Event
		e.Time = time
		e.Type = event.TypeMIDI
		e.Channel = data[0] & 0x0F
		e.Midi.Port = port
		e.Midi.Size = uint8(len(data))
		copy(e.Midi.Data[:], data)
		p.eventOut.Append(e)
	})

	p.postProcess(audioIn, audioOut, frames)
	p.updatePeaks(audioIn, audioOut, frames)
}

func (p *Bridged) forwardEventRT(e *event.Event) {
	switch e.Type {
	case event.TypeMIDI:
		p.transport.RTWriteMidiEvent(e.Time, e.Midi.Port, e.Midi.Data[:e.Midi.Size])
	case event.TypeControl:
		var op bridge.RtClientOpcode
		switch e.Ctrl.Subtype {
		case event.CtrlParameter:
			op = bridge.RtClientControlEventParameter
		case event.CtrlMidiBank:
			op = bridge.RtClientControlEventMidiBank
		case event.CtrlMidiProgram:
			op = bridge.RtClientControlEventMidiProgram
		case event.CtrlAllSoundOff:
			op = bridge.RtClientControlEventAllSoundOff
		case event.CtrlAllNotesOff:
			op = bridge.RtClientControlEventAllNotesOff
		default:
			return
		}
		p.transport.RTWriteControlEvent(op, e.Time, e.Channel, e.Ctrl.Param, e.Ctrl.Value)
	}
}

func (p *Bridged) fillTimeInfo() {
	ti := p.host.TimeInfo()
	shared := p.transport.TimeInfoBlock()
	shared.Playing = 0
	if ti.Playing {
		shared.Playing = 1
	}
	shared.Frame = ti.Frame
	shared.Usecs = ti.USecs
	shared.BBTValid = 0
	if ti.BBTValid {
		shared.BBTValid = 1
		shared.Bar = ti.Bar
		shared.Beat = ti.Beat
		shared.Tick = ti.Tick
		shared.BarStartTick = ti.BarStartTick
		shared.BeatsPerBar = ti.BeatsPerBar
		shared.BeatType = ti.BeatType
		shared.TicksPerBeat = ti.TicksPerBeat
		shared.BeatsPerMinute = ti.BeatsPerMinute
	}
}

func (p *Bridged) BufferSizeChanged(newSize uint32) {
	if cap(p.balanceScratch) < int(newSize) {
		p.balanceScratch = make([]float32, newSize)
	}
	if err := p.transport.ResizePool(p.PortCounts().Total(), newSize); err != nil {
		p.OnError(err.Error())
	}
}

func (p *Bridged) SampleRateChanged(newRate float64) {
	_ = p.transport.WriteNonRt(func(w *ringbuf.Buffer) bool {
		ok := w.WriteOpcode(uint32(bridge.NonRtClientSetSampleRate))
		ok = w.WriteDouble(newRate) && ok
		return ok
	})
}

func (p *Bridged) UIShow(show bool) {
	op := bridge.NonRtClientShowUI
	if !show {
		op = bridge.NonRtClientHideUI
	}
	p.uiClosed.Store(false)
	_ = p.transport.WriteNonRt(func(w *ringbuf.Buffer) bool {
		return w.WriteOpcode(uint32(op))
	})
}

// UIIdle keeps the worker serviced: pings, message pump and timed-out
// recovery all ride the idle tick.
func (p *Bridged) UIIdle() {
	if !p.transport.Idle() && !p.transport.Crashed() {
		// Worker stopped answering pings; treat like a crash.
		p.OnCrash()
	}
}

// PrepareForSave commits the opcode and polls for the worker's Saved,
// pumping the engine idle so the UI pipe stays alive. A timeout is a soft
// failure: saving proceeds with last-known state.
func (p *Bridged) PrepareForSave() bool {
	p.saved.Store(false)
	if err := p.transport.WriteNonRt(func(w *ringbuf.Buffer) bool {
		return w.WriteOpcode(uint32(bridge.NonRtClientPrepareForSave))
	}); err != nil {
		return false
	}
	for range 200 {
		p.transport.PumpNonRt()
		if p.saved.Load() {
			return true
		}
		p.host.Idle()
		time.Sleep(30 * time.Millisecond)
	}
	return false
}

func (p *Bridged) Close() error {
	p.SetEnabled(false)
	p.active.Store(false)
	p.LockMaster()
	defer p.UnlockMaster()
	if !p.transport.Crashed() {
		p.transport.RequestQuit()
	}
	return p.transport.Close()
}
