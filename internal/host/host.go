// Package host defines the ABI surface between the engine and the outer
// host embedding it: the descriptor struct of function values, the raw MIDI
// event record crossing that boundary, and the flat callback opcode space
// shared with the UI protocol.
//
// No error-signaling primitive crosses this boundary. Every adapter catches
// failures and translates them to return codes or flags before returning to
// the outer host.
package host

// MidiEvent is the raw MIDI record exchanged with the outer host.
type MidiEvent struct {
	Port uint8
	Time uint32
	Size uint8
	Data [4]byte
}

// TimeInfo is the outer host's transport snapshot for one cycle.
type TimeInfo struct {
	Playing bool
	Frame   uint64
	USecs   uint64

	// BBT subfields; Valid gates them.
	BBTValid       bool
	Bar            int32
	Beat           int32
	Tick           float64
	BarStartTick   float64
	BeatsPerBar    float32
	BeatType       float32
	TicksPerBeat   float64
	BeatsPerMinute float64
}

// DispatcherOpcode selects a dispatcher operation.
type DispatcherOpcode int32

const (
	OpcodeNull DispatcherOpcode = iota
	OpcodeBufferSizeChanged
	OpcodeSampleRateChanged
	OpcodeOfflineChanged
	OpcodeUINameChanged
)

// ParameterSurfaceIns and ParameterSurfaceOuts fix the parameter surface the
// descriptor exposes regardless of the loaded plugin set. Indices beyond the
// first plugin's parameter count read the engine's float cache.
const (
	ParameterSurfaceIns  = 100
	ParameterSurfaceOuts = 10
)

// ParameterInfo describes one exposed parameter to the outer host.
type ParameterInfo struct {
	Name      string
	Unit      string
	Hints     uint32
	Def       float32
	Min       float32
	Max       float32
	Step      float32
	StepSmall float32
	StepLarge float32
}

// Descriptor is the struct of function values the outer host embeds. Eight
// variants differ only in name, label, audio I/O count, MIDI-out count and
// CV I/O count.
type Descriptor struct {
	Name      string
	Label     string
	Maker     string
	Copyright string

	AudioIns  uint32
	AudioOuts uint32
	CVIns     uint32
	CVOuts    uint32
	MidiIns   uint32
	MidiOuts  uint32

	Hints uint32

	Instantiate func(hostCalls HostCalls, bufferSize uint32, sampleRate float64) Instance
}

// Instance is one live engine behind a descriptor.
type Instance interface {
	Cleanup()

	GetParameterCount() uint32
	GetParameterInfo(index uint32) ParameterInfo
	GetParameterValue(index uint32) float32
	SetParameterValue(index uint32, value float32)

	GetMidiProgramCount() uint32
	GetMidiProgramInfo(index uint32) (bank, program uint32, name string)
	SetMidiProgram(channel uint8, bank, program uint32)

	UIShow(show bool)
	UIIdle()
	UISetParameterValue(index uint32, value float32)

	Activate()
	Deactivate()
	Process(inBufs, outBufs [][]float32, frames uint32, midiIn []MidiEvent) []MidiEvent

	GetState() string
	SetState(data string) error

	Dispatcher(opcode DispatcherOpcode, index int32, value int64, ptr any, opt float32) int64
}

// HostCalls are the outer host services an instance may use.
type HostCalls interface {
	GetBufferSize() uint32
	GetSampleRate() float64
	IsOffline() bool
	GetTimeInfo() *TimeInfo
	WriteMidiEvent(e *MidiEvent) bool
	UIParameterChanged(index uint32, value float32)
	UIClosed()
}
