package plugin

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/rackbay/rackbay/internal/event"
	"github.com/rackbay/rackbay/internal/host"
)

// Post-RT event types posted by plugins.
const (
	PostRtNull int32 = iota
	PostRtParameterChange
	PostRtProgramChange
	PostRtMidiProgramChange
	PostRtNoteOn
	PostRtNoteOff
)

// Host is the engine surface a plugin may touch. Plugins hold their engine
// only through this unowned interface plus their integer id; the owning
// table lives inside the engine.
type Host interface {
	BufferSize() uint32
	SampleRate() float64
	IsOffline() bool
	MaxParameters() uint32
	SingleClientMode() bool
	TimeInfo() host.TimeInfo
	// Idle runs one engine idle tick; bounded waits call it to keep the UI
	// pipe alive. Reentrant calls are no-ops.
	Idle()
	PostRtEvent(e event.PostRtEvent)
	Callback(op host.CallbackOpcode, pluginID uint32, v1, v2, v3 int32, vf float32, s string)
}

// atomicFloat32 lets the main thread publish mix values the RT path reads.
type atomicFloat32 struct {
	bits atomic.Uint32
}

func (f *atomicFloat32) Load() float32   { return math.Float32frombits(f.bits.Load()) }
func (f *atomicFloat32) Store(v float32) { f.bits.Store(math.Float32bits(v)) }

type paramEntry struct {
	data   ParamData
	ranges ParamRanges
	value  float32
}

// Base carries the state and behavior shared by both handle variants.
type Base struct {
	host Host
	id   uint32

	info       Info
	hints      HintFlags
	extraHints ExtraHintFlags
	options    OptionFlags

	enabled atomic.Bool
	active  atomic.Bool

	audioInPorts  []Port
	audioOutPorts []Port
	cvInPorts     []Port
	cvOutPorts    []Port
	eventInPorts  []Port
	eventOutPorts []Port

	params []paramEntry

	programs       []Program
	currentProgram int32

	midiPrograms       []MidiProgram
	currentMidiProgram int32

	customData []CustomData

	dryWet       atomicFloat32
	volume       atomicFloat32
	balanceLeft  atomicFloat32
	balanceRight atomicFloat32
	panning      atomicFloat32
	ctrlChannel  atomic.Int32 // -1..15

	latency        uint32
	latencyBuffers [][]float32

	// master serializes structural changes; single is try-locked by the RT
	// path, silencing the cycle on contention.
	masterMu sync.Mutex
	singleMu sync.Mutex

	extNotes extNoteQueue

	// audio-thread-only state
	heldNotes       [16][128]bool
	heldCount       int32
	allNotesOffSent bool
	balanceScratch  []float32

	eventIn  event.Buffer
	eventOut event.Buffer

	peaks [4]atomicFloat32
}

func newBase(h Host, id uint32, info Info) Base {
	b := Base{host: h, id: id, info: info, currentProgram: -1, currentMidiProgram: -1}
	b.dryWet.Store(1)
	b.volume.Store(1)
	b.balanceLeft.Store(-1)
	b.balanceRight.Store(1)
	b.panning.Store(0)
	b.ctrlChannel.Store(-1)
	return b
}

// --- identity and flags ---

func (b *Base) ID() uint32                 { return b.id }
func (b *Base) SetID(id uint32)            { b.id = id }
func (b *Base) Info() *Info                { return &b.info }
func (b *Base) Hints() HintFlags           { return b.hints }
func (b *Base) ExtraHints() ExtraHintFlags { return b.extraHints }
func (b *Base) Options() OptionFlags       { return b.options }
func (b *Base) SetOption(o OptionFlags, on bool) {
	if on {
		b.options |= o
	} else {
		b.options &^= o
	}
}

func (b *Base) Enabled() bool      { return b.enabled.Load() }
func (b *Base) SetEnabled(on bool) { b.enabled.Store(on) }
func (b *Base) Active() bool       { return b.active.Load() }

// --- ports ---

func (b *Base) PortCounts() PortCounts {
	return PortCounts{
		AudioIn:  uint32(len(b.audioInPorts)),
		AudioOut: uint32(len(b.audioOutPorts)),
		CVIn:     uint32(len(b.cvInPorts)),
		CVOut:    uint32(len(b.cvOutPorts)),
		EventIn:  uint32(len(b.eventInPorts)),
		EventOut: uint32(len(b.eventOutPorts)),
	}
}

func (b *Base) AudioInPorts() []Port  { return b.audioInPorts }
func (b *Base) AudioOutPorts() []Port { return b.audioOutPorts }
func (b *Base) CVInPorts() []Port     { return b.cvInPorts }
func (b *Base) CVOutPorts() []Port    { return b.cvOutPorts }

// buildPorts recreates the port lists from a topology. Port names follow
// the input|output[_N] and events-in|events-out convention, prefixed with
// the plugin name under single-client mode.
func (b *Base) buildPorts(counts PortCounts) {
	prefix := ""
	if b.host != nil && b.host.SingleClientMode() {
		prefix = b.info.Name + ":"
	}
	name := func(base string, i, total uint32) string {
		if total <= 1 {
			return prefix + base
		}
		return prefix + base + "_" + itoa(i+1)
	}

	b.audioInPorts = b.audioInPorts[:0]
	for i := uint32(0); i < counts.AudioIn; i++ {
		b.audioInPorts = append(b.audioInPorts, Port{Name: name("input", i, counts.AudioIn), RIndex: i})
	}
	b.audioOutPorts = b.audioOutPorts[:0]
	for i := uint32(0); i < counts.AudioOut; i++ {
		b.audioOutPorts = append(b.audioOutPorts, Port{Name: name("output", i, counts.AudioOut), RIndex: counts.AudioIn + i})
	}
	b.cvInPorts = b.cvInPorts[:0]
	for i := uint32(0); i < counts.CVIn; i++ {
		b.cvInPorts = append(b.cvInPorts, Port{Name: name("cv-input", i, counts.CVIn), RIndex: counts.AudioIn + counts.AudioOut + i})
	}
	b.cvOutPorts = b.cvOutPorts[:0]
	for i := uint32(0); i < counts.CVOut; i++ {
		b.cvOutPorts = append(b.cvOutPorts, Port{Name: name("cv-output", i, counts.CVOut), RIndex: counts.AudioIn + counts.AudioOut + counts.CVIn + i})
	}
	b.eventInPorts = b.eventInPorts[:0]
	if counts.EventIn > 0 {
		b.eventInPorts = append(b.eventInPorts, Port{Name: prefix + "events-in"})
	}
	b.eventOutPorts = b.eventOutPorts[:0]
	if counts.EventOut > 0 {
		b.eventOutPorts = append(b.eventOutPorts, Port{Name: prefix + "events-out"})
	}
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// recomputeHints refreshes the derived hint bits from the current topology.
func (b *Base) recomputeHints(counts PortCounts) {
	b.extraHints = 0
	if counts.EventIn > 0 {
		b.extraHints |= ExtraHintHasMidiIn
	}
	if counts.EventOut > 0 {
		b.extraHints |= ExtraHintHasMidiOut
	}
	if counts.CanRunRack() {
		b.extraHints |= ExtraHintCanRunRack
	}

	b.hints &^= HintCanDryWet | HintCanVolume | HintCanBalance
	if counts.AudioIn > 0 && counts.AudioOut > 0 {
		b.hints |= HintCanDryWet
	}
	if counts.AudioOut > 0 {
		b.hints |= HintCanVolume
		if counts.AudioOut >= 2 {
			b.hints |= HintCanBalance
		}
	}
}

// --- parameters ---

func (b *Base) ParameterCount() uint32 {
	return uint32(len(b.params))
}

func (b *Base) ParameterData(i uint32) *ParamData {
	return &b.params[i].data
}

func (b *Base) ParameterRanges(i uint32) *ParamRanges {
	return &b.params[i].ranges
}

func (b *Base) GetParameterValue(i uint32) float32 {
	if i >= uint32(len(b.params)) {
		return 0
	}
	return b.params[i].value
}

// fixAndStoreParameter coerces and stores a value, returning the stored one.
func (b *Base) fixAndStoreParameter(i uint32, value float32) float32 {
	p := &b.params[i]
	fixed := p.ranges.GetFixedValue(p.data.Hints, value)
	p.value = fixed
	return fixed
}

// notifyParameter emits the callback side of a parameter change.
func (b *Base) notifyParameter(index int32, value float32, sendCallback bool) {
	if sendCallback {
		b.host.Callback(host.CallbackParameterValueChanged, b.id, index, 0, 0, value, "")
	}
}

// --- programs ---

func (b *Base) ProgramCount() uint32        { return uint32(len(b.programs)) }
func (b *Base) ProgramName(i uint32) string { return b.programs[i].Name }
func (b *Base) CurrentProgram() int32       { return b.currentProgram }

func (b *Base) MidiProgramCount() uint32 { return uint32(len(b.midiPrograms)) }
func (b *Base) MidiProgramData(i uint32) *MidiProgram {
	return &b.midiPrograms[i]
}
func (b *Base) CurrentMidiProgram() int32 { return b.currentMidiProgram }

// --- custom data ---

func (b *Base) CustomData() []CustomData { return b.customData }

func (b *Base) setCustomDataLocal(dtype, key, value string) {
	for i := range b.customData {
		if b.customData[i].Type == dtype && b.customData[i].Key == key {
			b.customData[i].Value = value
			return
		}
	}
	b.customData = append(b.customData, CustomData{Type: dtype, Key: key, Value: value})
}

// --- mix controls ---

func (b *Base) DryWet() float32       { return b.dryWet.Load() }
func (b *Base) Volume() float32       { return b.volume.Load() }
func (b *Base) BalanceLeft() float32  { return b.balanceLeft.Load() }
func (b *Base) BalanceRight() float32 { return b.balanceRight.Load() }
func (b *Base) Panning() float32      { return b.panning.Load() }
func (b *Base) CtrlChannel() int8     { return int8(b.ctrlChannel.Load()) }

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (b *Base) SetDryWet(v float32, sendCallback bool) {
	v = clampF(v, 0, 1)
	b.dryWet.Store(v)
	if sendCallback {
		b.host.Callback(host.CallbackParameterValueChanged, b.id, ParameterDryWet, 0, 0, v, "")
	}
}

func (b *Base) SetVolume(v float32, sendCallback bool) {
	v = clampF(v, 0, VolumeMax)
	b.volume.Store(v)
	if sendCallback {
		b.host.Callback(host.CallbackParameterValueChanged, b.id, ParameterVolume, 0, 0, v, "")
	}
}

func (b *Base) SetBalanceLeft(v float32, sendCallback bool) {
	v = clampF(v, -1, 1)
	b.balanceLeft.Store(v)
	if sendCallback {
		b.host.Callback(host.CallbackParameterValueChanged, b.id, ParameterBalanceLeft, 0, 0, v, "")
	}
}

func (b *Base) SetBalanceRight(v float32, sendCallback bool) {
	v = clampF(v, -1, 1)
	b.balanceRight.Store(v)
	if sendCallback {
		b.host.Callback(host.CallbackParameterValueChanged, b.id, ParameterBalanceRight, 0, 0, v, "")
	}
}

func (b *Base) SetPanning(v float32, sendCallback bool) {
	v = clampF(v, -1, 1)
	b.panning.Store(v)
	if sendCallback {
		b.host.Callback(host.CallbackParameterValueChanged, b.id, ParameterPanning, 0, 0, v, "")
	}
}

func (b *Base) SetCtrlChannel(ch int8, sendCallback bool) {
	if ch < -1 || ch > 15 {
		return
	}
	b.ctrlChannel.Store(int32(ch))
	if sendCallback {
		b.host.Callback(host.CallbackParameterValueChanged, b.id, ParameterCtrlChannel, 0, 0, float32(ch), "")
	}
}

// InternalParameterValue reads a pseudo-parameter by negative index.
func (b *Base) InternalParameterValue(index int32) float32 {
	switch index {
	case ParameterActive:
		if b.active.Load() {
			return 1
		}
		return 0
	case ParameterDryWet:
		return b.DryWet()
	case ParameterVolume:
		return b.Volume()
	case ParameterBalanceLeft:
		return b.BalanceLeft()
	case ParameterBalanceRight:
		return b.BalanceRight()
	case ParameterPanning:
		return b.Panning()
	case ParameterCtrlChannel:
		return float32(b.CtrlChannel())
	default:
		return 0
	}
}

// --- latency ---

func (b *Base) Latency() uint32 { return b.latency }

func (b *Base) setLatency(frames uint32, channels uint32) {
	b.latency = frames
	b.latencyBuffers = nil
	if frames == 0 || channels == 0 {
		return
	}
	b.latencyBuffers = make([][]float32, channels)
	for i := range b.latencyBuffers {
		b.latencyBuffers[i] = make([]float32, frames)
	}
}

// --- event buffers ---

func (b *Base) EventIn() *event.Buffer  { return &b.eventIn }
func (b *Base) EventOut() *event.Buffer { return &b.eventOut }

// --- master lock ---

// LockMaster serializes a structural change against the plugin.
func (b *Base) LockMaster()   { b.masterMu.Lock() }
func (b *Base) UnlockMaster() { b.masterMu.Unlock() }

// TryLockSingle is the RT path's per-cycle lock.
func (b *Base) TryLockSingle() bool { return b.singleMu.TryLock() }
func (b *Base) UnlockSingle()       { b.singleMu.Unlock() }

// --- peaks ---

// Peaks returns input L/R and output L/R peak followers.
func (b *Base) Peaks() [4]float32 {
	return [4]float32{b.peaks[0].Load(), b.peaks[1].Load(), b.peaks[2].Load(), b.peaks[3].Load()}
}

func (b *Base) updatePeaks(audioIn, audioOut [][]float32, frames uint32) {
	peak := func(buf []float32) float32 {
		var p float32
		for k := uint32(0); k < frames; k++ {
			v := buf[k]
			if v < 0 {
				v = -v
			}
			if v > p {
				p = v
			}
		}
		return p
	}
	for i := 0; i < 2; i++ {
		if i < len(audioIn) {
			b.peaks[i].Store(peak(audioIn[i]))
		} else {
			b.peaks[i].Store(0)
		}
		if i < len(audioOut) {
			b.peaks[2+i].Store(peak(audioOut[i]))
		} else {
			b.peaks[2+i].Store(0)
		}
	}
}

// silence zeroes every output buffer. Every process exit path either
// computes all outputs or goes through here.
func silence(audioOut, cvOut [][]float32, frames uint32) {
	for _, buf := range audioOut {
		for k := uint32(0); k < frames; k++ {
			buf[k] = 0
		}
	}
	for _, buf := range cvOut {
		for k := uint32(0); k < frames; k++ {
			buf[k] = 0
		}
	}
}
