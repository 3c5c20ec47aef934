// Package graph routes audio through the loaded plugins. Two
// implementations are selected at engine construction: Rack is the fixed
// stereo series chain, Patchbay the arbitrary-topology node graph with
// explicit connections and CV support.
package graph

import (
	"github.com/rackbay/rackbay/internal/event"
	"github.com/rackbay/rackbay/internal/plugin"
)

// Graph is the per-cycle routing strategy.
type Graph interface {
	// Process routes one cycle. inEvents is the engine-level inbound event
	// buffer, filled from host MIDI before the call; outEvents receives
	// whatever reaches the graph's external event output.
	Process(plugins []plugin.Handle, inBufs, outBufs [][]float32, frames uint32,
		inEvents, outEvents *event.Buffer)

	// BufferSizeChanged resizes internal scratch.
	BufferSizeChanged(newSize uint32)
}

func zeroBufs(bufs [][]float32, frames uint32) {
	for _, b := range bufs {
		for k := range frames {
			b[k] = 0
		}
	}
}

func copyEvents(dst, src *event.Buffer) {
	dst.Clear()
	for _, e := range src.Events() {
		dst.Append(e)
	}
}
