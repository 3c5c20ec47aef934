package engine

import (
	"math"
	"sync/atomic"

	"github.com/rackbay/rackbay/internal/host"
)

// transportState is the engine's transport clock. The embedded build is
// host-driven: the frame counter advances with processed cycles and the UI
// transport commands adjust the rolling state.
type transportState struct {
	playing atomic.Bool
	frame   atomic.Uint64
	bpmBits atomic.Uint64 // float64

	beatsPerBar atomic.Uint32
	beatType    atomic.Uint32
}

func (t *transportState) init(sampleRate float64) {
	t.setBPM(120)
	t.beatsPerBar.Store(4)
	t.beatType.Store(4)
}

func (t *transportState) bpm() float64 {
	return math.Float64frombits(t.bpmBits.Load())
}

func (t *transportState) setBPM(bpm float64) {
	if bpm > 0 {
		t.bpmBits.Store(math.Float64bits(bpm))
	}
}

// advance moves the clock by one processed cycle.
func (t *transportState) advance(frames uint32) {
	if t.playing.Load() {
		t.frame.Add(uint64(frames))
	}
}

// snapshot reads the rolling state, frame counter, tempo and meter. The
// bar, beat and tick fields are left for fillBBT, which needs the sample
// rate.
func (t *transportState) snapshot() host.TimeInfo {
	ti := host.TimeInfo{
		Playing: t.playing.Load(),
		Frame:   t.frame.Load(),
	}

	bpm := t.bpm()
	beatsPerBar := float64(t.beatsPerBar.Load())
	if bpm <= 0 || beatsPerBar <= 0 {
		return ti
	}

	const ticksPerBeat = 1920.0
	// Frame position in beats; sample rate is carried by the caller's
	// clock, so the conversion happens where both are known.
	ti.BBTValid = true
	ti.BeatsPerMinute = bpm
	ti.BeatsPerBar = float32(beatsPerBar)
	ti.BeatType = float32(t.beatType.Load())
	ti.TicksPerBeat = ticksPerBeat
	return ti
}

// fillBBT completes the bar/beat/tick fields; needs the sample rate.
func (t *transportState) fillBBT(ti *host.TimeInfo, sampleRate float64) {
	if !ti.BBTValid || sampleRate <= 0 {
		return
	}
	framesPerBeat := sampleRate * 60.0 / ti.BeatsPerMinute
	beats := float64(ti.Frame) / framesPerBeat
	beatsPerBar := float64(ti.BeatsPerBar)

	bar := math.Floor(beats / beatsPerBar)
	beatInBar := beats - bar*beatsPerBar
	ti.Bar = int32(bar) + 1
	ti.Beat = int32(beatInBar) + 1
	ti.Tick = (beatInBar - math.Floor(beatInBar)) * ti.TicksPerBeat
	ti.BarStartTick = bar * beatsPerBar * ti.TicksPerBeat
}

// --- UI transport commands ---

// TransportPlay starts the transport rolling.
func (e *Engine) TransportPlay() {
	e.transport.playing.Store(true)
}

// TransportPause stops the transport.
func (e *Engine) TransportPause() {
	e.transport.playing.Store(false)
}

// TransportBPM sets the tempo.
func (e *Engine) TransportBPM(bpm float64) {
	e.transport.setBPM(bpm)
}

// TransportRelocate jumps the transport to a frame.
func (e *Engine) TransportRelocate(frame uint64) {
	e.transport.frame.Store(frame)
}

// TransportInfo returns the completed time snapshot.
func (e *Engine) TransportInfo() host.TimeInfo {
	ti := e.transport.snapshot()
	e.transport.fillBBT(&ti, e.SampleRate())
	return ti
}
