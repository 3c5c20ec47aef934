package engine

import (
	"math"
	"time"

	"github.com/rackbay/rackbay/internal/event"
	"github.com/rackbay/rackbay/internal/host"
)

// Activate marks the engine runnable. It does not touch plugin state: each
// plugin's active flag follows user intent.
func (e *Engine) Activate() {
	e.isActive.Store(true)
}

// Deactivate stops processing; cycles arriving while inactive pass the
// inputs through.
func (e *Engine) Deactivate() {
	e.isActive.Store(false)
}

// IsActive reports the engine's processing state.
func (e *Engine) IsActive() bool { return e.isActive.Load() }

// BufferSizeChanged re-sizes every per-cycle buffer. Main thread only,
// never during a cycle.
func (e *Engine) BufferSizeChanged(newSize uint32) {
	if newSize == 0 || newSize == e.bufferSize.Load() {
		return
	}
	e.master.Lock()
	e.bufferSize.Store(newSize)
	e.graph.BufferSizeChanged(newSize)
	plugins := e.plugins
	e.master.Unlock()

	for _, p := range plugins {
		p.BufferSizeChanged(newSize)
	}
	e.Callback(host.CallbackBufferSizeChanged, host.InvalidPluginID, int32(newSize), 0, 0, 0, "")
}

// SampleRateChanged forwards the new rate to every plugin.
func (e *Engine) SampleRateChanged(newRate float64) {
	if newRate <= 0 || newRate == e.SampleRate() {
		return
	}
	e.master.Lock()
	e.sampleRate.Store(math.Float64bits(newRate))
	plugins := e.plugins
	e.master.Unlock()

	for _, p := range plugins {
		p.SampleRateChanged(newRate)
	}
	e.Callback(host.CallbackSampleRateChanged, host.InvalidPluginID, 0, 0, 0, float32(newRate), "")
}

// OfflineChanged flips offline rendering mode; bridge waits then block
// without timeout.
func (e *Engine) OfflineChanged(offline bool) {
	e.offline.Store(offline)
}

// Process runs one audio cycle. RT path: no allocation, no blocking locks.
//
// Oversized cycles trigger a one-off resize: deactivate, resize, reactivate.
// With no plugins loaded in Rack mode the inputs pass through bit-exact and
// host MIDI is forwarded verbatim.
func (e *Engine) Process(inBufs, outBufs [][]float32, frames uint32, midiIn []host.MidiEvent) []host.MidiEvent {
	e.midiOutScratch = e.midiOutScratch[:0]

	if frames > e.bufferSize.Load() {
		// One-off resize; this cycle is not RT-safe and the outer host
		// accepts that by changing its buffer size mid-stream.
		e.Deactivate()
		e.BufferSizeChanged(frames)
		e.Activate()
	}

	if !e.isActive.Load() {
		passthrough(inBufs, outBufs, frames)
		return e.forwardMidi(midiIn)
	}

	started := time.Now()
	plugins := e.loadRTPlugins()

	// The inbound event buffer is cleared at cycle start and filled from
	// host MIDI; both graph modes read it untouched for the rest of the
	// cycle.
	e.eventIn.Clear()
	e.eventOut.Clear()
	for i := range midiIn {
		m := &midiIn[i]
		if m.Size == 0 || m.Size > event.MidiDataSize {
			continue
		}
		var ev event.Event
		ev.Time = m.Time
		ev.Type = event.TypeMIDI
		ev.Channel = m.Data[0] & 0x0F
		ev.Midi = event.Midi{Port: m.Port, Size: m.Size, Data: m.Data}
		e.eventIn.Append(ev)
	}

	if len(plugins) == 0 && e.opts.ProcessMode == ModeRack {
		passthrough(inBufs, outBufs, frames)
		e.transport.advance(frames)
		return e.forwardMidi(midiIn)
	}

	e.graph.Process(plugins, inBufs, outBufs, frames, &e.eventIn, &e.eventOut)

	out := e.emitMidiOut()
	e.transport.advance(frames)

	elapsed := time.Since(started).Seconds()
	deadline := float64(frames) / e.SampleRate()
	if elapsed > deadline {
		e.metrics.RTXrun()
	}
	e.cycleSeconds.Store(math.Float64bits(elapsed))
	return out
}

// forwardMidi passes host MIDI through unchanged.
func (e *Engine) forwardMidi(midiIn []host.MidiEvent) []host.MidiEvent {
	e.midiOutScratch = append(e.midiOutScratch[:0], midiIn...)
	return e.midiOutScratch
}

// emitMidiOut converts the outbound event buffer to raw host events,
// excluding anything wider than the inline MIDI payload.
func (e *Engine) emitMidiOut() []host.MidiEvent {
	for _, ev := range e.eventOut.Events() {
		n := event.ToRawMidi(&ev, e.rawScratch[:])
		if n == 0 {
			continue
		}
		// A bank change renders as two 3-byte frames.
		for off := 0; off < n; off += 3 {
			m := host.MidiEvent{Time: ev.Time, Port: ev.Midi.Port}
			size := n - off
			if size > 3 {
				size = 3
			}
			m.Size = uint8(size)
			copy(m.Data[:], e.rawScratch[off:off+size])
			e.midiOutScratch = append(e.midiOutScratch, m)
			if size < 3 {
				break
			}
		}
	}
	return e.midiOutScratch
}

func passthrough(inBufs, outBufs [][]float32, frames uint32) {
	for i := range outBufs {
		if i < len(inBufs) {
			copy(outBufs[i][:frames], inBufs[i][:frames])
		} else {
			clear(outBufs[i][:frames])
		}
	}
}
