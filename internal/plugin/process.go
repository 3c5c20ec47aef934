package plugin

import (
	"math"

	"github.com/rackbay/rackbay/internal/event"
)

// beginCycle resets per-cycle RT state.
func (b *Base) beginCycle() {
	b.allNotesOffSent = false
}

// drainExtNotes converts the injected-note mailbox into MIDI events handed
// to forward, tracking held notes for all-notes-off synthesis.
func (b *Base) drainExtNotes(forward func(e *event.Event)) {
	for {
		n, ok := b.extNotes.pop()
		if !ok {
			return
		}
		var e event.Event
		e.Type = event.TypeMIDI
		e.Channel = n.Channel
		if n.Velo > 0 {
			e.Midi = event.Midi{Size: 3, Data: [4]byte{event.MidiStatusNoteOn | n.Channel, n.Note, n.Velo}}
			b.trackNoteOn(n.Channel, n.Note)
			b.host.PostRtEvent(event.PostRtEvent{
				Type: PostRtNoteOn, Value1: int32(b.id), Value2: int32(n.Channel),
				Value3: int32(n.Note), ValueF: float32(n.Velo), SendCallbackLater: true,
			})
		} else {
			e.Midi = event.Midi{Size: 3, Data: [4]byte{event.MidiStatusNoteOff | n.Channel, n.Note, 0}}
			b.trackNoteOff(n.Channel, n.Note)
			b.host.PostRtEvent(event.PostRtEvent{
				Type: PostRtNoteOff, Value1: int32(b.id), Value2: int32(n.Channel),
				Value3: int32(n.Note), SendCallbackLater: true,
			})
		}
		forward(&e)
	}
}

func (b *Base) trackNoteOn(ch, note uint8) {
	if !b.heldNotes[ch][note] {
		b.heldNotes[ch][note] = true
		b.heldCount++
	}
}

func (b *Base) trackNoteOff(ch, note uint8) {
	if b.heldNotes[ch][note] {
		b.heldNotes[ch][note] = false
		b.heldCount--
	}
}

// processEventPhase walks the per-cycle input events before the backing
// plugin runs. Control events on the ctrl channel address the built-in mix
// controls by MIDI CC convention; everything the backing plugin should see
// goes through forward.
func (b *Base) processEventPhase(forward func(e *event.Event)) {
	b.drainExtNotes(forward)

	ctrlCh := int32(b.ctrlChannel.Load())

	for i := range b.eventIn.Len() {
		e := b.eventIn.At(i)
		switch e.Type {
		case event.TypeControl:
			b.processCtrlEvent(e, ctrlCh, forward)
		case event.TypeMIDI:
			if e.Midi.Size >= 3 {
				status := e.Midi.Data[0] & 0xF0
				ch := e.Midi.Data[0] & 0x0F
				switch {
				case status == event.MidiStatusNoteOn && e.Midi.Data[2] > 0:
					b.trackNoteOn(ch, e.Midi.Data[1])
				case status == event.MidiStatusNoteOff,
					status == event.MidiStatusNoteOn && e.Midi.Data[2] == 0:
					b.trackNoteOff(ch, e.Midi.Data[1])
				}
			}
			forward(e)
		}
	}
}

func (b *Base) processCtrlEvent(e *event.Event, ctrlCh int32, forward func(e *event.Event)) {
	onCtrlChannel := ctrlCh >= 0 && int32(e.Channel) == ctrlCh

	switch e.Ctrl.Subtype {
	case event.CtrlParameter:
		if onCtrlChannel {
			switch e.Ctrl.Param {
			case midiCCBreath:
				if b.hints&HintCanDryWet != 0 {
					b.setDryWetRT(e.Ctrl.Value)
					return
				}
			case midiCCVolume:
				if b.hints&HintCanVolume != 0 {
					b.setVolumeRT(e.Ctrl.Value * 127.0 / 100.0)
					return
				}
			case midiCCBalance, midiCCPan:
				if b.hints&HintCanBalance != 0 {
					left, right := balanceSplit(e.Ctrl.Value*2 - 1)
					b.setBalanceRT(left, right)
					return
				}
			}
		}
		// MIDI-mapped parameter automation.
		for i := range b.params {
			p := &b.params[i]
			if p.data.MidiCC != int16(e.Ctrl.Param) || uint8(p.data.MidiChannel) != e.Channel {
				continue
			}
			if p.data.Type != ParamInput || p.data.Hints&ParamHintAutomable == 0 {
				continue
			}
			mapped := p.ranges.UnnormalizedValue(e.Ctrl.Value)
			fixed := b.fixAndStoreParameter(uint32(i), mapped)
			b.host.PostRtEvent(event.PostRtEvent{
				Type: PostRtParameterChange, Value1: int32(b.id), Value2: int32(i),
				ValueF: fixed, SendCallbackLater: true,
			})
		}
		if b.options&OptionSendControlChanges != 0 {
			forward(e)
		}

	case event.CtrlMidiBank:
		if onCtrlChannel && b.options&OptionMapProgramChanges != 0 {
			forward(e)
		}

	case event.CtrlMidiProgram:
		if onCtrlChannel && b.options&OptionMapProgramChanges != 0 {
			forward(e)
		}

	case event.CtrlAllSoundOff:
		if b.options&OptionSendAllSoundOff != 0 {
			forward(e)
		}

	case event.CtrlAllNotesOff:
		if onCtrlChannel {
			b.synthesizeNoteOffs()
		}
		if b.options&OptionSendAllSoundOff != 0 {
			forward(e)
		}
	}
}

// synthesizeNoteOffs posts note-off callbacks for every held note. Fires at
// most once per cycle.
func (b *Base) synthesizeNoteOffs() {
	if b.allNotesOffSent || b.heldCount == 0 {
		b.allNotesOffSent = true
		return
	}
	b.allNotesOffSent = true
	for ch := range uint8(16) {
		for note := range uint8(128) {
			if !b.heldNotes[ch][note] {
				continue
			}
			b.heldNotes[ch][note] = false
			b.host.PostRtEvent(event.PostRtEvent{
				Type: PostRtNoteOff, Value1: int32(b.id), Value2: int32(ch),
				Value3: int32(note), SendCallbackLater: true,
			})
		}
	}
	b.heldCount = 0
}

// RT-path mix setters: store, then notify idle.
func (b *Base) setDryWetRT(v float32) {
	v = clampF(v, 0, 1)
	b.dryWet.Store(v)
	b.host.PostRtEvent(event.PostRtEvent{
		Type: PostRtParameterChange, Value1: int32(b.id), Value2: ParameterDryWet,
		ValueF: v, SendCallbackLater: true,
	})
}

func (b *Base) setVolumeRT(v float32) {
	v = clampF(v, 0, VolumeMax)
	b.volume.Store(v)
	b.host.PostRtEvent(event.PostRtEvent{
		Type: PostRtParameterChange, Value1: int32(b.id), Value2: ParameterVolume,
		ValueF: v, SendCallbackLater: true,
	})
}

func (b *Base) setBalanceRT(left, right float32) {
	b.balanceLeft.Store(left)
	b.balanceRight.Store(right)
	b.host.PostRtEvent(event.PostRtEvent{
		Type: PostRtParameterChange, Value1: int32(b.id), Value2: ParameterBalanceLeft,
		ValueF: left, SendCallbackLater: true,
	})
	b.host.PostRtEvent(event.PostRtEvent{
		Type: PostRtParameterChange, Value1: int32(b.id), Value2: ParameterBalanceRight,
		ValueF: right, SendCallbackLater: true,
	})
}

// postProcess applies the fixed dry/wet, balance, volume chain to the audio
// outputs. Each stage is skipped at identity.
func (b *Base) postProcess(audioIn, audioOut [][]float32, frames uint32) {
	dryWet := b.dryWet.Load()
	volume := b.volume.Load()
	balLeft := b.balanceLeft.Load()
	balRight := b.balanceRight.Load()

	doDryWet := b.hints&HintCanDryWet != 0 && dryWet != 1.0
	doBalance := b.hints&HintCanBalance != 0 && !(balLeft == -1.0 && balRight == 1.0)
	doVolume := b.hints&HintCanVolume != 0 && volume != 1.0

	if doDryWet {
		for i := range audioOut {
			in := i
			if in >= len(audioIn) {
				in = len(audioIn) - 1
			}
			if in < 0 {
				break
			}
			out := audioOut[i]
			dry := audioIn[in]
			for k := range frames {
				out[k] = out[k]*dryWet + dry[k]*(1.0-dryWet)
			}
		}
	}

	if doBalance {
		rangeL := (balLeft + 1.0) / 2.0
		rangeR := (balRight + 1.0) / 2.0
		if cap(b.balanceScratch) < int(frames) {
			// Sized on activate; this only happens on a one-off resize cycle.
			b.balanceScratch = make([]float32, frames)
		}
		old := b.balanceScratch[:frames]
		for i := 0; i+1 < len(audioOut); i += 2 {
			left, right := audioOut[i], audioOut[i+1]
			copy(old, left[:frames])
			for k := range frames {
				left[k] = old[k]*(1.0-rangeL) + right[k]*(1.0-rangeR)
				right[k] = right[k]*rangeR + old[k]*rangeL
			}
		}
	}

	if doVolume {
		for _, out := range audioOut {
			for k := range frames {
				out[k] *= volume
			}
		}
	}
}

// applyLatencyDelay pushes the cycle through the per-channel delay lines.
func (b *Base) applyLatencyDelay(audioOut [][]float32, frames uint32) {
	if b.latency == 0 || len(b.latencyBuffers) == 0 {
		return
	}
	lat := b.latency
	for i, out := range audioOut {
		if i >= len(b.latencyBuffers) {
			break
		}
		line := b.latencyBuffers[i]
		for k := range frames {
			delayed := line[0]
			copy(line, line[1:])
			line[lat-1] = out[k]
			out[k] = delayed
		}
	}
}

// normalizeMidiValue converts a 0..127 byte into the normalized [0,1] space.
func normalizeMidiValue(v byte) float32 {
	return float32(math.Min(float64(v)/127.0, 1.0))
}
