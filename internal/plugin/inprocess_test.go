package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rackbay/rackbay/internal/event"
	"github.com/rackbay/rackbay/internal/host"
)

// testHost is a minimal engine stand-in.
type testHost struct {
	bufferSize uint32
	sampleRate float64
	callbacks  []host.CallbackOpcode
	postRt     []event.PostRtEvent
}

func newTestHost() *testHost {
	return &testHost{bufferSize: 256, sampleRate: 48000}
}

func (h *testHost) BufferSize() uint32      { return h.bufferSize }
func (h *testHost) SampleRate() float64     { return h.sampleRate }
func (h *testHost) IsOffline() bool         { return false }
func (h *testHost) MaxParameters() uint32   { return 200 }
func (h *testHost) SingleClientMode() bool  { return false }
func (h *testHost) TimeInfo() host.TimeInfo { return host.TimeInfo{} }
func (h *testHost) Idle()                   {}
func (h *testHost) PostRtEvent(e event.PostRtEvent) {
	h.postRt = append(h.postRt, e)
}
func (h *testHost) Callback(op host.CallbackOpcode, pluginID uint32, v1, v2, v3 int32, vf float32, s string) {
	h.callbacks = append(h.callbacks, op)
}

// gainAdapter is a pass-through adapter with a handful of parameters; index
// 0 scales the signal.
type gainAdapter struct {
	ports    PortCounts
	params   []float32
	hintsMap map[uint32]ParamHints
	active   bool
	events   []event.Event
}

func newGainAdapter(ins, outs uint32) *gainAdapter {
	return &gainAdapter{
		ports:    PortCounts{AudioIn: ins, AudioOut: outs, EventIn: 1, EventOut: 1},
		params:   []float32{1, 0, 0, 0, 0, 0},
		hintsMap: map[uint32]ParamHints{},
	}
}

func (a *gainAdapter) Info() Info {
	return Info{Type: TypeInternal, Name: "gain", Label: "gain", RealName: "Gain"}
}
func (a *gainAdapter) Hints() HintFlags  { return 0 }
func (a *gainAdapter) Ports() PortCounts { return a.ports }
func (a *gainAdapter) Latency() uint32   { return 0 }

func (a *gainAdapter) ParameterCount() uint32 { return uint32(len(a.params)) }
func (a *gainAdapter) ParameterInfo(i uint32) (ParamData, ParamRanges) {
	hints := a.hintsMap[i] | ParamHintEnabled | ParamHintAutomable
	return ParamData{Type: ParamInput, Hints: hints, RIndex: int32(i), MidiCC: -1, Name: "p"},
		ParamRanges{Min: 0, Max: 1, Def: 0}
}
func (a *gainAdapter) GetParameterValue(i uint32) float32    { return a.params[i] }
func (a *gainAdapter) SetParameterValue(i uint32, v float32) { a.params[i] = v }
func (a *gainAdapter) Programs() []Program                   { return nil }
func (a *gainAdapter) SetProgram(int32)                      {}
func (a *gainAdapter) MidiPrograms() []MidiProgram           { return nil }
func (a *gainAdapter) SetMidiProgram(uint32, uint32)         {}
func (a *gainAdapter) SetCustomData(string, string, string)  {}
func (a *gainAdapter) Chunk() ([]byte, bool)                 { return nil, false }
func (a *gainAdapter) SetChunk([]byte)                       {}
func (a *gainAdapter) Activate() error                       { a.active = true; return nil }
func (a *gainAdapter) Deactivate() error                     { a.active = false; return nil }
func (a *gainAdapter) BufferSizeChanged(uint32)              {}
func (a *gainAdapter) SampleRateChanged(float64)             {}
func (a *gainAdapter) ShowUI(bool)                           {}
func (a *gainAdapter) UIIdle()                               {}
func (a *gainAdapter) Close() error                          { return nil }

func (a *gainAdapter) Process(audioIn, audioOut, cvIn, cvOut [][]float32, inEvents []event.Event, outEvents *event.Buffer, frames uint32) error {
	a.events = append(a.events, inEvents...)
	gain := a.params[0]
	for i := range audioOut {
		in := audioIn[min(i, len(audioIn)-1)]
		for k := range frames {
			audioOut[i][k] = in[k] * gain
		}
	}
	return nil
}

func makeBufs(n int, frames uint32) [][]float32 {
	bufs := make([][]float32, n)
	for i := range bufs {
		bufs[i] = make([]float32, frames)
	}
	return bufs
}

func newTestPlugin(t *testing.T) (*InProcess, *gainAdapter, *testHost) {
	t.Helper()
	h := newTestHost()
	a := newGainAdapter(2, 2)
	p, err := NewInProcess(h, 0, a)
	require.NoError(t, err)
	return p, a, h
}

func TestReloadBuildsPortsAndHints(t *testing.T) {
	p, _, _ := newTestPlugin(t)

	counts := p.PortCounts()
	assert.Equal(t, uint32(2), counts.AudioIn)
	assert.Equal(t, uint32(2), counts.AudioOut)
	assert.Equal(t, "input_1", p.AudioInPorts()[0].Name)
	assert.Equal(t, "input_2", p.AudioInPorts()[1].Name)
	assert.Equal(t, "output_1", p.AudioOutPorts()[0].Name)

	assert.NotZero(t, p.ExtraHints()&ExtraHintCanRunRack)
	assert.NotZero(t, p.Hints()&HintCanDryWet)
	assert.NotZero(t, p.Hints()&HintCanVolume)
	assert.NotZero(t, p.Hints()&HintCanBalance)
	assert.True(t, p.Enabled())
}

func TestSilenceWhenInactive(t *testing.T) {
	p, _, _ := newTestPlugin(t)
	const frames = 64

	in := makeBufs(2, frames)
	out := makeBufs(2, frames)
	for k := range in[0] {
		in[0][k] = 0.7
		out[0][k] = 0.9 // stale garbage must not survive
	}

	p.Process(in, out, nil, nil, frames)
	for _, buf := range out {
		for k := range frames {
			assert.Equal(t, float32(0), buf[k])
		}
	}
}

func TestSilenceOnSingleLockContention(t *testing.T) {
	p, _, _ := newTestPlugin(t)
	p.SetActive(true, false)
	const frames = 32

	in := makeBufs(2, frames)
	out := makeBufs(2, frames)
	in[0][0] = 0.5

	require.True(t, p.TryLockSingle())
	p.Process(in, out, nil, nil, frames)
	p.UnlockSingle()

	assert.Equal(t, float32(0), out[0][0])
}

func TestProcessPassThroughAndVolume(t *testing.T) {
	p, _, _ := newTestPlugin(t)
	p.SetActive(true, false)
	const frames = 16

	in := makeBufs(2, frames)
	out := makeBufs(2, frames)
	for k := range frames {
		in[0][k] = 0.5
		in[1][k] = -0.25
	}

	p.Process(in, out, nil, nil, frames)
	assert.Equal(t, float32(0.5), out[0][0])
	assert.Equal(t, float32(-0.25), out[1][0])

	p.SetVolume(0.5, false)
	p.Process(in, out, nil, nil, frames)
	assert.InDelta(t, 0.25, out[0][0], 1e-6)
	assert.InDelta(t, -0.125, out[1][0], 1e-6)
}

func TestDryWetBlend(t *testing.T) {
	p, a, _ := newTestPlugin(t)
	p.SetActive(true, false)
	a.params[0] = 0 // plugin outputs silence; dry path must survive
	const frames = 8

	in := makeBufs(2, frames)
	out := makeBufs(2, frames)
	for k := range frames {
		in[0][k] = 1.0
	}

	p.SetDryWet(0.25, false)
	p.Process(in, out, nil, nil, frames)
	// out = wet*0.25 + dry*0.75 = 0*0.25 + 1*0.75
	assert.InDelta(t, 0.75, out[0][0], 1e-6)
}

func TestScenarioBooleanParameterSnapping(t *testing.T) {
	h := newTestHost()
	a := newGainAdapter(2, 2)
	a.hintsMap[5] = ParamHintBoolean
	p, err := NewInProcess(h, 0, a)
	require.NoError(t, err)

	p.SetParameterValue(5, 0.49, false)
	assert.Equal(t, float32(0), p.GetParameterValue(5))
	p.SetParameterValue(5, 0.5, false)
	assert.Equal(t, float32(1), p.GetParameterValue(5))
}

func TestCtrlChannelCCMapping(t *testing.T) {
	p, _, _ := newTestPlugin(t)
	p.SetActive(true, false)
	p.SetCtrlChannel(0, false)
	const frames = 8

	in := makeBufs(2, frames)
	out := makeBufs(2, frames)

	// CC7 scales by 127/100.
	p.EventIn().Append(event.Event{
		Type: event.TypeControl, Channel: 0,
		Ctrl: event.Ctrl{Subtype: event.CtrlParameter, Param: 0x07, Value: 0.5},
	})
	p.Process(in, out, nil, nil, frames)
	assert.InDelta(t, 0.5*127.0/100.0, p.Volume(), 1e-6)

	// CC2 maps to dry/wet directly.
	p.EventIn().Clear()
	p.EventIn().Append(event.Event{
		Type: event.TypeControl, Channel: 0,
		Ctrl: event.Ctrl{Subtype: event.CtrlParameter, Param: 0x02, Value: 0.3},
	})
	p.Process(in, out, nil, nil, frames)
	assert.InDelta(t, 0.3, p.DryWet(), 1e-6)

	// CC10 recomputes the balance pair; value 1.0 means hard right.
	p.EventIn().Clear()
	p.EventIn().Append(event.Event{
		Type: event.TypeControl, Channel: 0,
		Ctrl: event.Ctrl{Subtype: event.CtrlParameter, Param: 0x0A, Value: 1.0},
	})
	p.Process(in, out, nil, nil, frames)
	assert.Equal(t, float32(1), p.BalanceLeft())
	assert.Equal(t, float32(1), p.BalanceRight())

	// Events on other channels leave the controls alone.
	p.EventIn().Clear()
	p.EventIn().Append(event.Event{
		Type: event.TypeControl, Channel: 5,
		Ctrl: event.Ctrl{Subtype: event.CtrlParameter, Param: 0x07, Value: 0.9},
	})
	before := p.Volume()
	p.Process(in, out, nil, nil, frames)
	assert.Equal(t, before, p.Volume())
}

func TestAllNotesOffSynthesizesHeldNoteOffs(t *testing.T) {
	p, _, h := newTestPlugin(t)
	p.SetActive(true, false)
	p.SetCtrlChannel(0, false)
	const frames = 8

	in := makeBufs(2, frames)
	out := makeBufs(2, frames)

	require.True(t, p.InjectNote(0, 60, 100))
	require.True(t, p.InjectNote(0, 64, 100))
	p.Process(in, out, nil, nil, frames)

	h.postRt = nil
	p.EventIn().Clear()
	p.EventIn().Append(event.Event{
		Type: event.TypeControl, Channel: 0,
		Ctrl: event.Ctrl{Subtype: event.CtrlAllNotesOff},
	})
	// A second all-notes-off in the same cycle must not double-fire.
	p.EventIn().Append(event.Event{
		Type: event.TypeControl, Channel: 0,
		Ctrl: event.Ctrl{Subtype: event.CtrlAllNotesOff},
	})
	p.Process(in, out, nil, nil, frames)

	var offs int
	for _, e := range h.postRt {
		if e.Type == PostRtNoteOff {
			offs++
		}
	}
	assert.Equal(t, 2, offs)
}

func TestInjectedNotesReachAdapter(t *testing.T) {
	p, a, _ := newTestPlugin(t)
	p.SetActive(true, false)
	const frames = 8

	in := makeBufs(2, frames)
	out := makeBufs(2, frames)

	require.True(t, p.InjectNote(1, 60, 90))
	p.Process(in, out, nil, nil, frames)

	require.NotEmpty(t, a.events)
	e := a.events[0]
	assert.Equal(t, event.TypeMIDI, e.Type)
	assert.Equal(t, byte(event.MidiStatusNoteOn|1), e.Midi.Data[0])
	assert.Equal(t, byte(60), e.Midi.Data[1])
	assert.Equal(t, byte(90), e.Midi.Data[2])
}

func TestBalancePostProcessing(t *testing.T) {
	p, _, _ := newTestPlugin(t)
	p.SetActive(true, false)
	const frames = 4

	in := makeBufs(2, frames)
	out := makeBufs(2, frames)
	for k := range frames {
		in[0][k] = 1.0
		in[1][k] = 0.5
	}

	// Hard right: the right channel carries everything.
	p.SetBalanceLeft(1, false)
	p.SetBalanceRight(1, false)
	p.Process(in, out, nil, nil, frames)
	assert.InDelta(t, 0.0, out[0][0], 1e-6)
	assert.InDelta(t, 1.5, out[1][0], 1e-6)
}
