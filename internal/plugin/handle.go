package plugin

import (
	"github.com/rackbay/rackbay/internal/event"
)

// Handle is the engine's view of one loaded plugin. The engine owns handles
// through its dense table; a handle's id always equals its table index.
//
// Process must, on every exit path, either fill all outputs with computed
// audio or zero them. Structural methods are main/background-thread only
// and taken under the master lock by the engine.
type Handle interface {
	ID() uint32
	SetID(id uint32)
	Info() *Info
	Hints() HintFlags
	ExtraHints() ExtraHintFlags
	Options() OptionFlags
	SetOption(o OptionFlags, on bool)

	Enabled() bool
	SetEnabled(on bool)
	Active() bool
	SetActive(active, sendCallback bool)

	PortCounts() PortCounts
	AudioInPorts() []Port
	AudioOutPorts() []Port
	CVInPorts() []Port
	CVOutPorts() []Port

	ParameterCount() uint32
	ParameterData(i uint32) *ParamData
	ParameterRanges(i uint32) *ParamRanges
	GetParameterValue(i uint32) float32
	SetParameterValue(i uint32, value float32, sendCallback bool) float32
	SetParameterMidiChannel(i uint32, channel uint8)
	SetParameterMidiCC(i uint32, cc int16)
	InternalParameterValue(index int32) float32

	ProgramCount() uint32
	ProgramName(i uint32) string
	CurrentProgram() int32
	SetProgram(index int32, sendCallback bool)

	MidiProgramCount() uint32
	MidiProgramData(i uint32) *MidiProgram
	CurrentMidiProgram() int32
	SetMidiProgram(index int32, sendCallback bool)

	CustomData() []CustomData
	SetCustomData(dtype, key, value string)

	DryWet() float32
	Volume() float32
	BalanceLeft() float32
	BalanceRight() float32
	Panning() float32
	CtrlChannel() int8
	SetDryWet(v float32, sendCallback bool)
	SetVolume(v float32, sendCallback bool)
	SetBalanceLeft(v float32, sendCallback bool)
	SetBalanceRight(v float32, sendCallback bool)
	SetPanning(v float32, sendCallback bool)
	SetCtrlChannel(ch int8, sendCallback bool)

	Latency() uint32
	EventIn() *event.Buffer
	EventOut() *event.Buffer
	InjectNote(channel, note, velo uint8) bool
	Peaks() [4]float32

	Reload() error
	Process(audioIn, audioOut, cvIn, cvOut [][]float32, frames uint32)
	BufferSizeChanged(newSize uint32)
	SampleRateChanged(newRate float64)

	UIShow(show bool)
	UIIdle()
	PrepareForSave() bool

	LockMaster()
	UnlockMaster()

	Close() error
}

// Adapter is the format wrapper collaborator behind an in-process handle.
// Its internals (VST/LV2/... loading) live outside this module; the engine
// only depends on this method set.
type Adapter interface {
	Info() Info
	Hints() HintFlags
	Ports() PortCounts
	Latency() uint32

	ParameterCount() uint32
	ParameterInfo(i uint32) (ParamData, ParamRanges)
	GetParameterValue(i uint32) float32
	SetParameterValue(i uint32, value float32)

	Programs() []Program
	SetProgram(index int32)
	MidiPrograms() []MidiProgram
	SetMidiProgram(bank, program uint32)

	SetCustomData(dtype, key, value string)
	Chunk() ([]byte, bool)
	SetChunk(data []byte)

	Activate() error
	Deactivate() error
	Process(audioIn, audioOut, cvIn, cvOut [][]float32, inEvents []event.Event, outEvents *event.Buffer, frames uint32) error

	BufferSizeChanged(newSize uint32)
	SampleRateChanged(newRate float64)

	ShowUI(show bool)
	UIIdle()

	Close() error
}
