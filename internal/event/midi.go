package event

import "math"

// MIDI status nibbles used at the host boundary.
const (
	MidiStatusNoteOff       = 0x80
	MidiStatusNoteOn        = 0x90
	MidiStatusControlChange = 0xB0
	MidiStatusProgramChange = 0xC0

	MidiCCBankSelectMSB = 0x00
	MidiCCBankSelectLSB = 0x20
)

// ToRawMidi renders an engine event as raw MIDI bytes into out, which must
// hold at least 2*(MidiDataSize-1) bytes (a bank change emits two frames).
// It returns the number of bytes written; 0 means the event does not cross
// the boundary (null events, oversized MIDI, unmapped control subtypes).
//
// NoteOn with velocity 0 is normalized to NoteOff on the way out.
func ToRawMidi(e *Event, out []byte) int {
	switch e.Type {
	case TypeControl:
		return ctrlToRawMidi(e, out)
	case TypeMIDI:
		if e.Midi.Size == 0 || int(e.Midi.Size) > MidiDataSize {
			return 0
		}
		n := int(e.Midi.Size)
		copy(out, e.Midi.Data[:n])
		if out[0]&0xF0 == MidiStatusNoteOn && n >= 3 && out[2] == 0 {
			out[0] = MidiStatusNoteOff | (out[0] & 0x0F)
		}
		return n
	default:
		return 0
	}
}

func ctrlToRawMidi(e *Event, out []byte) int {
	status := byte(e.Channel & 0x0F)
	switch e.Ctrl.Subtype {
	case CtrlParameter:
		if e.Ctrl.Param > 0x7F {
			return 0
		}
		out[0] = MidiStatusControlChange | status
		out[1] = byte(e.Ctrl.Param)
		out[2] = byte(math.Round(float64(e.Ctrl.Value) * 127))
		return 3
	case CtrlMidiBank:
		out[0] = MidiStatusControlChange | status
		out[1] = MidiCCBankSelectMSB
		out[2] = 0
		out[3] = MidiStatusControlChange | status
		out[4] = MidiCCBankSelectLSB
		out[5] = byte(e.Ctrl.Param) & 0x7F
		return 6
	case CtrlMidiProgram:
		out[0] = MidiStatusProgramChange | status
		out[1] = byte(e.Ctrl.Param) & 0x7F
		return 2
	default:
		return 0
	}
}
