package engine

import (
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rackbay/rackbay/internal/event"
	"github.com/rackbay/rackbay/internal/host"
	"github.com/rackbay/rackbay/internal/plugin"
)

// stubAdapter is a configurable in-process format adapter for tests.
type stubAdapter struct {
	ins, outs uint32
	params    []float32
	gain      float32
}

func (a *stubAdapter) Info() plugin.Info {
	return plugin.Info{Type: plugin.TypeInternal, Name: "stub", Label: "stub", RealName: "Stub"}
}
func (a *stubAdapter) Hints() plugin.HintFlags { return 0 }
func (a *stubAdapter) Ports() plugin.PortCounts {
	return plugin.PortCounts{AudioIn: a.ins, AudioOut: a.outs, EventIn: 1, EventOut: 1}
}
func (a *stubAdapter) Latency() uint32        { return 0 }
func (a *stubAdapter) ParameterCount() uint32 { return uint32(len(a.params)) }
func (a *stubAdapter) ParameterInfo(i uint32) (plugin.ParamData, plugin.ParamRanges) {
	return plugin.ParamData{
			Type: plugin.ParamInput, Hints: plugin.ParamHintEnabled | plugin.ParamHintAutomable,
			RIndex: int32(i), MidiCC: -1, Name: "p",
		},
		plugin.ParamRanges{Min: 0, Max: 1}
}
func (a *stubAdapter) GetParameterValue(i uint32) float32    { return a.params[i] }
func (a *stubAdapter) SetParameterValue(i uint32, v float32) { a.params[i] = v }
func (a *stubAdapter) Programs() []plugin.Program            { return nil }
func (a *stubAdapter) SetProgram(int32)                      {}
func (a *stubAdapter) MidiPrograms() []plugin.MidiProgram    { return nil }
func (a *stubAdapter) SetMidiProgram(uint32, uint32)         {}
func (a *stubAdapter) SetCustomData(string, string, string)  {}
func (a *stubAdapter) Chunk() ([]byte, bool)                 { return nil, false }
func (a *stubAdapter) SetChunk([]byte)                       {}
func (a *stubAdapter) Activate() error                       { return nil }
func (a *stubAdapter) Deactivate() error                     { return nil }
func (a *stubAdapter) BufferSizeChanged(uint32)              {}
func (a *stubAdapter) SampleRateChanged(float64)             {}
func (a *stubAdapter) ShowUI(bool)                           {}
func (a *stubAdapter) UIIdle()                               {}
func (a *stubAdapter) Close() error                          { return nil }

func (a *stubAdapter) Process(audioIn, audioOut, cvIn, cvOut [][]float32, inEvents []event.Event, outEvents *event.Buffer, frames uint32) error {
	gain := a.gain
	if gain == 0 {
		gain = 1
	}
	for i := range audioOut {
		in := i
		if in >= len(audioIn) {
			in = len(audioIn) - 1
		}
		if in < 0 {
			clear(audioOut[i][:frames])
			continue
		}
		for k := range frames {
			audioOut[i][k] = audioIn[in][k] * gain
		}
	}
	return nil
}

// nextAdapter lets each AddPlugin pick its topology.
var nextAdapter *stubAdapter

func testFactory(ptype plugin.Type, filename, label string, uniqueID int64) (plugin.Adapter, error) {
	a := nextAdapter
	if a == nil {
		a = &stubAdapter{ins: 2, outs: 2, params: []float32{0, 0, 0}}
	}
	nextAdapter = nil
	return a, nil
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.MaxParameters == 0 {
		opts.MaxParameters = 200
	}
	e := New(opts, 256, 48000)
	e.SetAdapterFactory(testFactory)
	t.Cleanup(e.Close)
	return e
}

func makeBufs(n int, frames uint32) [][]float32 {
	bufs := make([][]float32, n)
	for i := range bufs {
		bufs[i] = make([]float32, frames)
	}
	return bufs
}

// Scenario S1: empty rack passes audio through bit-exact.
func TestRackPassthroughBitExact(t *testing.T) {
	e := newTestEngine(t, Options{ProcessMode: ModeRack})
	e.Activate()

	const frames = 256
	in := makeBufs(2, frames)
	out := makeBufs(2, frames)
	for k := range frames {
		in[0][k] = float32(math.Sin(2 * math.Pi * 440 * float64(k) / 48000))
		in[1][k] = float32(math.Cos(2 * math.Pi * 440 * float64(k) / 48000))
	}

	e.Process(in, out, frames, nil)
	for i := range 2 {
		for k := range frames {
			require.Equal(t, in[i][k], out[i][k], "channel %d frame %d", i, k)
		}
	}
}

// Empty rack forwards host MIDI verbatim.
func TestRackPassthroughForwardsMidi(t *testing.T) {
	e := newTestEngine(t, Options{ProcessMode: ModeRack})
	e.Activate()

	in := makeBufs(2, 64)
	out := makeBufs(2, 64)
	midi := []host.MidiEvent{{Time: 3, Size: 3, Data: [4]byte{0x90, 60, 100}}}

	got := e.Process(in, out, 64, midi)
	require.Len(t, got, 1)
	assert.Equal(t, midi[0], got[0])
}

// Scenario S2: rack constraints.
func TestRackConstraints(t *testing.T) {
	e := newTestEngine(t, Options{ProcessMode: ModeRack, ForceStereo: true})

	nextAdapter = &stubAdapter{ins: 1, outs: 2, params: []float32{0}}
	_, err := e.AddPlugin(plugin.TypeInternal, "", "mono-to-stereo", 0)
	require.NoError(t, err, "1-in/2-out must load with forceStereo")

	nextAdapter = &stubAdapter{ins: 3, outs: 3, params: []float32{0}}
	_, err = e.AddPlugin(plugin.TypeInternal, "", "wide", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Rack")
	assert.Contains(t, e.LastError(), "Rack")
}

func TestRackProcessesChain(t *testing.T) {
	e := newTestEngine(t, Options{ProcessMode: ModeRack})

	nextAdapter = &stubAdapter{ins: 2, outs: 2, params: []float32{0}, gain: 0.5}
	id, err := e.AddPlugin(plugin.TypeInternal, "", "half", 0)
	require.NoError(t, err)
	e.Plugin(id).SetActive(true, false)
	e.Activate()

	const frames = 64
	in := makeBufs(2, frames)
	out := makeBufs(2, frames)
	for k := range frames {
		in[0][k] = 0.8
	}
	e.Process(in, out, frames, nil)
	assert.InDelta(t, 0.4, out[0][0], 1e-6)
}

// Oversized cycles force a one-off resize.
func TestProcessOneOffResize(t *testing.T) {
	e := newTestEngine(t, Options{ProcessMode: ModeRack})
	e.Activate()

	const frames = 512 // engine was built with 256
	in := makeBufs(2, frames)
	out := makeBufs(2, frames)
	in[0][frames-1] = 0.5

	e.Process(in, out, frames, nil)
	assert.Equal(t, uint32(frames), e.BufferSize())
	assert.True(t, e.IsActive())
	assert.Equal(t, float32(0.5), out[0][frames-1])
}

// Scenario S6: save/set state round-trip preserves plugins, parameters and
// custom data.
func TestStateRoundTrip(t *testing.T) {
	e := newTestEngine(t, Options{ProcessMode: ModeRack})

	for range 2 {
		nextAdapter = &stubAdapter{ins: 2, outs: 2, params: []float32{0, 0, 0}}
		_, err := e.AddPlugin(plugin.TypeInternal, "", "stub", 0)
		require.NoError(t, err)
	}

	p0, p1 := e.Plugin(0), e.Plugin(1)
	p0.SetParameterValue(0, 0.25, false)
	p0.SetParameterValue(1, 0.5, false)
	p0.SetParameterValue(2, 0.75, false)
	p0.SetCustomData("Property", "color", "red")
	p0.SetVolume(0.9, false)
	p1.SetParameterValue(0, 0.1, false)
	p1.SetParameterValue(1, 0.2, false)
	p1.SetParameterValue(2, 0.3, false)
	p1.SetCustomData("Property", "color", "blue")
	p1.SetCtrlChannel(5, false)

	state := e.GetState()
	require.NotEmpty(t, state)

	require.NoError(t, e.SetState(state))
	require.Equal(t, uint32(2), e.PluginCount())
	assert.True(t, e.OptionsForced())

	q0, q1 := e.Plugin(0), e.Plugin(1)
	assert.InDelta(t, 0.25, q0.GetParameterValue(0), 1e-6)
	assert.InDelta(t, 0.5, q0.GetParameterValue(1), 1e-6)
	assert.InDelta(t, 0.75, q0.GetParameterValue(2), 1e-6)
	assert.InDelta(t, 0.9, q0.Volume(), 1e-6)
	assert.InDelta(t, 0.1, q1.GetParameterValue(0), 1e-6)
	assert.Equal(t, int8(5), q1.CtrlChannel())

	require.Len(t, q0.CustomData(), 1)
	assert.Equal(t, "red", q0.CustomData()[0].Value)
	require.Len(t, q1.CustomData(), 1)
	assert.Equal(t, "blue", q1.CustomData()[0].Value)
}

// Rejected state documents surface as state-rejection errors.
func TestSetStateRejectsGarbage(t *testing.T) {
	e := newTestEngine(t, Options{ProcessMode: ModeRack})
	err := e.SetState("this is not xml")
	require.Error(t, err)
	assert.NotEmpty(t, e.LastError())
}

// Scenario S5: set_volume over the pipe answers with the PARAMVAL frame
// carrying the volume pseudo-parameter index.
func TestUIPipeSetVolumeEmitsParamVal(t *testing.T) {
	e := newTestEngine(t, Options{ProcessMode: ModeRack})
	_, err := e.AddPlugin(plugin.TypeInternal, "", "stub", 0)
	require.NoError(t, err)

	uiReader, cmdWriter := io.Pipe()
	var outBuf syncBuffer
	e.AttachUI(uiReader, &outBuf)

	go func() {
		io.WriteString(cmdWriter, "set_volume\n0\n0.5\n")
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e.Idle()
		if strings.Contains(outBuf.String(), "PARAMVAL_0:-3\n0.500000\n") {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Contains(t, outBuf.String(), "PARAMVAL_0:-3\n0.500000\n")
	assert.InDelta(t, 0.5, e.Plugin(0).Volume(), 1e-6)
}

// syncBuffer is a goroutine-safe byte sink for pipe output.
type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRemovePluginReindexes(t *testing.T) {
	e := newTestEngine(t, Options{ProcessMode: ModeRack})
	for range 3 {
		nextAdapter = &stubAdapter{ins: 2, outs: 2, params: []float32{0}}
		_, err := e.AddPlugin(plugin.TypeInternal, "", "stub", 0)
		require.NoError(t, err)
	}
	require.NoError(t, e.RemovePlugin(1))
	require.Equal(t, uint32(2), e.PluginCount())
	assert.Equal(t, uint32(0), e.Plugin(0).ID())
	assert.Equal(t, uint32(1), e.Plugin(1).ID())
}

func TestAddPluginNeedsFilenameOrLabel(t *testing.T) {
	e := newTestEngine(t, Options{ProcessMode: ModeRack})
	_, err := e.AddPlugin(plugin.TypeVST2, "", "", 0)
	require.Error(t, err)
	assert.NotEmpty(t, e.LastError())
}
