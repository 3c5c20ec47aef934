package graph

import (
	"github.com/rackbay/rackbay/internal/event"
	"github.com/rackbay/rackbay/internal/plugin"
)

// Rack is the fixed 2-in/2-out series chain: plugins run in table order,
// each receiving the running stereo pair. Every plugin in a rack has no CV
// ports and either satisfies the CanRunRack constraint or carries the
// force-stereo option; the engine enforces that at add time.
type Rack struct {
	forceStereo bool

	// running and next are the double buffer the chain ping-pongs through.
	running [2][]float32
	next    [2][]float32
}

// NewRack builds the rack with scratch sized for bufferSize frames.
func NewRack(bufferSize uint32, forceStereo bool) *Rack {
	r := &Rack{forceStereo: forceStereo}
	r.BufferSizeChanged(bufferSize)
	return r
}

func (r *Rack) BufferSizeChanged(newSize uint32) {
	for i := range 2 {
		r.running[i] = make([]float32, newSize)
		r.next[i] = make([]float32, newSize)
	}
}

// Process runs the chain. With no processable plugin the input passes
// through bit-exact.
func (r *Rack) Process(plugins []plugin.Handle, inBufs, outBufs [][]float32, frames uint32,
	inEvents, outEvents *event.Buffer) {

	for i := range 2 {
		if i < len(inBufs) {
			copy(r.running[i][:frames], inBufs[i][:frames])
		} else {
			clear(r.running[i][:frames])
		}
	}

	for _, p := range plugins {
		if p == nil || !p.Enabled() {
			continue
		}
		// forceStereo admits small asymmetric topologies the strict rack
		// rule would refuse.
		if p.ExtraHints()&plugin.ExtraHintCanRunRack == 0 &&
			p.Options()&plugin.OptionForceStereo == 0 {
			continue
		}

		copyEvents(p.EventIn(), inEvents)
		r.processOne(p, frames)
		p.EventIn().Clear()

		// Whatever the plugin emitted joins the engine's outbound stream.
		for _, e := range p.EventOut().Events() {
			outEvents.Append(e)
		}

		r.running, r.next = r.next, r.running
	}

	for i := range outBufs {
		if i < 2 {
			copy(outBufs[i][:frames], r.running[i][:frames])
		} else {
			clear(outBufs[i][:frames])
		}
	}
}

// processOne adapts the stereo running pair to the plugin's own topology.
func (r *Rack) processOne(p plugin.Handle, frames uint32) {
	counts := p.PortCounts()

	var in, out [][]float32
	switch counts.AudioIn {
	case 0:
		in = nil
	case 1:
		in = r.running[:1]
		if r.forceStereo {
			// Mono plugins see the pair mixed down.
			for k := range frames {
				r.running[0][k] = (r.running[0][k] + r.running[1][k]) / 2
			}
		}
	default:
		in = r.running[:2]
	}

	switch counts.AudioOut {
	case 0:
		// Pure sinks leave the running buffer untouched.
		for i := range 2 {
			copy(r.next[i][:frames], r.running[i][:frames])
		}
		p.Process(in, nil, nil, nil, frames)
		return
	case 1:
		out = r.next[:1]
	default:
		out = r.next[:2]
	}

	p.Process(in, out, nil, nil, frames)

	if counts.AudioOut == 1 {
		// Duplicate mono output across the pair.
		copy(r.next[1][:frames], r.next[0][:frames])
	}
}
