package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rackbay/rackbay/internal/event"
	"github.com/rackbay/rackbay/internal/plugin"
)

// fakeHandle is a minimal plugin.Handle for routing tests: it scales its
// input by gain and records what it saw.
type fakeHandle struct {
	plugin.Handle // panics on anything not overridden; routing only uses the subset below

	id      uint32
	counts  plugin.PortCounts
	extra   plugin.ExtraHintFlags
	enabled bool
	gain    float32

	eventIn  event.Buffer
	eventOut event.Buffer
	seenIn   []float32
}

func newFakeHandle(id uint32, ins, outs uint32, gain float32) *fakeHandle {
	f := &fakeHandle{
		id:      id,
		counts:  plugin.PortCounts{AudioIn: ins, AudioOut: outs},
		enabled: true,
		gain:    gain,
	}
	if f.counts.CanRunRack() {
		f.extra |= plugin.ExtraHintCanRunRack
	}
	return f
}

func (f *fakeHandle) ID() uint32                        { return f.id }
func (f *fakeHandle) Options() plugin.OptionFlags       { return 0 }
func (f *fakeHandle) Enabled() bool                     { return f.enabled }
func (f *fakeHandle) ExtraHints() plugin.ExtraHintFlags { return f.extra }
func (f *fakeHandle) PortCounts() plugin.PortCounts     { return f.counts }
func (f *fakeHandle) EventIn() *event.Buffer            { return &f.eventIn }
func (f *fakeHandle) EventOut() *event.Buffer           { return &f.eventOut }
func (f *fakeHandle) Info() *plugin.Info                { return &plugin.Info{Name: "fake"} }
func (f *fakeHandle) AudioInPorts() []plugin.Port       { return make([]plugin.Port, f.counts.AudioIn) }
func (f *fakeHandle) AudioOutPorts() []plugin.Port      { return make([]plugin.Port, f.counts.AudioOut) }
func (f *fakeHandle) CVInPorts() []plugin.Port          { return nil }
func (f *fakeHandle) CVOutPorts() []plugin.Port         { return nil }

func (f *fakeHandle) Process(audioIn, audioOut, cvIn, cvOut [][]float32, frames uint32) {
	if len(audioIn) > 0 {
		f.seenIn = append(f.seenIn, audioIn[0][0])
	}
	for i := range audioOut {
		src := audioOut[i]
		if i < len(audioIn) {
			src = audioIn[i]
		} else if len(audioIn) > 0 {
			src = audioIn[len(audioIn)-1]
		} else {
			clear(audioOut[i][:frames])
			continue
		}
		for k := range frames {
			audioOut[i][k] = src[k] * f.gain
		}
	}
}

func stereo(frames uint32, l, r float32) [][]float32 {
	bufs := [][]float32{make([]float32, frames), make([]float32, frames)}
	for k := range frames {
		bufs[0][k] = l
		bufs[1][k] = r
	}
	return bufs
}

func TestRackPassthroughWithoutPlugins(t *testing.T) {
	const frames = 64
	rack := NewRack(frames, false)

	in := stereo(frames, 0.25, -0.5)
	out := stereo(frames, 9, 9)
	var evIn, evOut event.Buffer

	rack.Process(nil, in, out, frames, &evIn, &evOut)
	for k := range frames {
		assert.Equal(t, in[0][k], out[0][k])
		assert.Equal(t, in[1][k], out[1][k])
	}
}

func TestRackChainsInOrder(t *testing.T) {
	const frames = 16
	rack := NewRack(frames, false)

	p0 := newFakeHandle(0, 2, 2, 2.0)
	p1 := newFakeHandle(1, 2, 2, 0.5)
	in := stereo(frames, 0.5, 0.5)
	out := stereo(frames, 0, 0)
	var evIn, evOut event.Buffer

	rack.Process([]plugin.Handle{p0, p1}, in, out, frames, &evIn, &evOut)
	// 0.5 * 2.0 * 0.5 = 0.5
	assert.InDelta(t, 0.5, out[0][0], 1e-6)
	// Second plugin saw the first one's output.
	assert.InDelta(t, 1.0, p1.seenIn[0], 1e-6)
}

func TestRackSkipsNonRackPlugins(t *testing.T) {
	const frames = 8
	rack := NewRack(frames, false)

	bad := newFakeHandle(0, 3, 3, 0) // not rack capable
	in := stereo(frames, 0.7, 0.7)
	out := stereo(frames, 0, 0)
	var evIn, evOut event.Buffer

	rack.Process([]plugin.Handle{bad}, in, out, frames, &evIn, &evOut)
	assert.Equal(t, float32(0.7), out[0][0])
}

func TestPatchbayConnectValidation(t *testing.T) {
	pb := NewPatchbay(64, 2, 2, 0, 0)
	p := newFakeHandle(0, 2, 2, 1.0)
	g := pb.AddNode(p)

	id, err := pb.Connect(GroupAudioIn, 0, g, 0)
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = pb.Connect(GroupAudioIn, 5, g, 0)
	assert.Error(t, err, "out-of-range external port")

	_, err = pb.Connect(g, 0, GroupAudioIn, 0)
	assert.Error(t, err, "external input is not a destination")

	require.NoError(t, pb.Disconnect(id))
	assert.Error(t, pb.Disconnect(id), "ids are single-use")
}

func TestPatchbayRejectsCycles(t *testing.T) {
	pb := NewPatchbay(64, 2, 2, 0, 0)
	a := pb.AddNode(newFakeHandle(0, 2, 2, 1.0))
	b := pb.AddNode(newFakeHandle(1, 2, 2, 1.0))

	_, err := pb.Connect(a, 0, b, 0)
	require.NoError(t, err)
	_, err = pb.Connect(b, 0, a, 0)
	assert.Error(t, err)
}

func TestPatchbayRoutesAudio(t *testing.T) {
	const frames = 8
	pb := NewPatchbay(frames, 2, 2, 0, 0)
	p0 := newFakeHandle(0, 1, 1, 2.0)
	p1 := newFakeHandle(1, 1, 1, 3.0)
	g0 := pb.AddNode(p0)
	g1 := pb.AddNode(p1)

	plugins := []plugin.Handle{p0, p1}

	// ext in 0 -> p0 -> p1 -> ext out 1
	_, err := pb.Connect(GroupAudioIn, 0, g0, 0)
	require.NoError(t, err)
	_, err = pb.Connect(g0, 0, g1, 0)
	require.NoError(t, err)
	_, err = pb.Connect(g1, 0, GroupAudioOut, 1)
	require.NoError(t, err)

	in := stereo(frames, 0.1, 0)
	out := stereo(frames, 9, 9)
	var evIn, evOut event.Buffer

	pb.Process(plugins, in, out, frames, &evIn, &evOut)
	assert.InDelta(t, 0.0, out[0][0], 1e-6)
	assert.InDelta(t, 0.6, out[1][0], 1e-6)
}

func TestPatchbaySnapshotListsExternalGroups(t *testing.T) {
	pb := NewPatchbay(64, 2, 2, 1, 1)
	p := newFakeHandle(0, 2, 2, 1.0)
	pb.AddNode(p)

	nodes, conns := pb.Snapshot([]plugin.Handle{p})
	assert.Empty(t, conns)

	groups := map[uint32]bool{}
	for _, n := range nodes {
		groups[n.Group] = true
	}
	for _, g := range []uint32{GroupAudioIn, GroupAudioOut, GroupCVIn, GroupCVOut, GroupMidiIn, GroupMidiOut} {
		assert.Truef(t, groups[g], "missing external group %d", g)
	}
	assert.Len(t, nodes, 7)
}
