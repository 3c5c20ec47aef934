package uipipe

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder implements Handler and records what arrived.
type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  error
}

func (r *recorder) record(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return r.fail
}

func (r *recorder) SetEngineOption(key, value string) error {
	return r.record("option:" + key + "=" + value)
}
func (r *recorder) ClearEngineXruns()                       { r.record("clear_xruns") }
func (r *recorder) CancelEngineAction()                     { r.record("cancel") }
func (r *recorder) LoadFile(path string) error              { return r.record("load_file:" + path) }
func (r *recorder) LoadProject(path string) error           { return r.record("load_project:" + path) }
func (r *recorder) SaveProject(path string) error           { return r.record("save_project:" + path) }
func (r *recorder) ClearProjectFilename()                   { r.record("clear_project") }
func (r *recorder) PatchbayConnect(a, b, c, d uint32) error { return r.record("pb_connect") }
func (r *recorder) PatchbayDisconnect(id uint32) error      { return r.record("pb_disconnect") }
func (r *recorder) PatchbayRefresh() error                  { return r.record("pb_refresh") }
func (r *recorder) TransportPlay()                          { r.record("play") }
func (r *recorder) TransportPause()                         { r.record("pause") }
func (r *recorder) TransportBPM(bpm float64)                { r.record("bpm") }
func (r *recorder) TransportRelocate(frame uint64)          { r.record("relocate") }
func (r *recorder) AddPlugin(ptype, filename, label string, uniqueID int64) error {
	return r.record("add:" + ptype + ":" + filename + ":" + label)
}
func (r *recorder) RemovePlugin(id uint32) error              { return r.record("remove") }
func (r *recorder) RemoveAllPlugins()                         { r.record("remove_all") }
func (r *recorder) RenamePlugin(id uint32, name string) error { return r.record("rename:" + name) }
func (r *recorder) ClonePlugin(id uint32) error               { return r.record("clone") }
func (r *recorder) ReplacePlugin(id uint32, ptype, filename, label string, uniqueID int64) error {
	return r.record("replace")
}
func (r *recorder) SwitchPlugins(a, b uint32) error              { return r.record("switch") }
func (r *recorder) LoadPluginState(id uint32, path string) error { return r.record("load_state") }
func (r *recorder) SavePluginState(id uint32, path string) error { return r.record("save_state") }
func (r *recorder) SetOption(id, option uint32, on bool) error   { return r.record("set_option") }
func (r *recorder) SetActive(id uint32, on bool) error           { return r.record("set_active") }
func (r *recorder) SetDryWet(id uint32, v float32) error         { return r.record("drywet") }
func (r *recorder) SetVolume(id uint32, v float32) error {
	return r.record("volume:" + FormatFloat(float64(v)))
}
func (r *recorder) SetBalanceLeft(id uint32, v float32) error  { return r.record("bal_l") }
func (r *recorder) SetBalanceRight(id uint32, v float32) error { return r.record("bal_r") }
func (r *recorder) SetPanning(id uint32, v float32) error      { return r.record("pan") }
func (r *recorder) SetCtrlChannel(id uint32, ch int8) error    { return r.record("ctrl_ch") }
func (r *recorder) SetParameterValue(id uint32, index int32, v float32) error {
	return r.record("param_val")
}
func (r *recorder) SetParameterMidiChannel(id, index uint32, ch uint8) error {
	return r.record("param_midi_ch")
}
func (r *recorder) SetParameterMidiCC(id, index uint32, cc int16) error { return r.record("param_cc") }
func (r *recorder) SetParameterTouch(id uint32, index int32, t bool) error {
	return r.record("param_touch")
}
func (r *recorder) SetProgram(id uint32, index int32) error     { return r.record("program") }
func (r *recorder) SetMidiProgram(id uint32, index int32) error { return r.record("midi_program") }
func (r *recorder) SetCustomData(id uint32, dtype, key, value string) error {
	return r.record("custom:" + dtype + ":" + key + ":" + value)
}
func (r *recorder) SetChunkData(id uint32, chunk string) error         { return r.record("chunk") }
func (r *recorder) PrepareForSave(id uint32) error                     { return r.record("prepare") }
func (r *recorder) ResetParameters(id uint32) error                    { return r.record("reset") }
func (r *recorder) RandomizeParameters(id uint32) error                { return r.record("randomize") }
func (r *recorder) SendMidiNote(id uint32, ch, note, velo uint8) error { return r.record("note") }
func (r *recorder) ShowCustomUI(id uint32, show bool) error            { return r.record("show_ui") }

func newTestServer(t *testing.T, inbound string) (*Server, *recorder, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	rec := &recorder{}
	pipe := New(strings.NewReader(inbound), &out)
	t.Cleanup(pipe.Close)
	return NewServer(pipe, rec), rec, &out
}

func waitLines(t *testing.T, s *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	got := 0
	for got < want && time.Now().Before(deadline) {
		got += s.ProcessCommands(16)
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, want, got, "commands processed")
}

func TestDispatchSetVolume(t *testing.T) {
	srv, rec, _ := newTestServer(t, "set_volume\n0\n0.5\n")
	waitLines(t, srv, 1)
	assert.Equal(t, []string{"volume:0.500000"}, rec.calls)
}

func TestDispatchAddPluginWithNullValues(t *testing.T) {
	srv, rec, _ := newTestServer(t, "add_plugin\nvst2\n(null)\nmy-label\n0\n")
	waitLines(t, srv, 1)
	assert.Equal(t, []string{"add:vst2::my-label"}, rec.calls)
}

func TestDispatchUnknownCommandEmitsError(t *testing.T) {
	srv, _, out := newTestServer(t, "frobnicate\n")
	waitLines(t, srv, 1)
	assert.True(t, strings.HasPrefix(out.String(), "error\n"), "got %q", out.String())
}

func TestDispatchHandlerFailureEmitsError(t *testing.T) {
	srv, rec, out := newTestServer(t, "remove_plugin\n3\n")
	rec.fail = io.ErrUnexpectedEOF
	waitLines(t, srv, 1)
	assert.Contains(t, out.String(), "error\n")
}

func TestEmitParamValFrame(t *testing.T) {
	srv, _, out := newTestServer(t, "")
	srv.EmitParamVal(0, -3, 0.5)
	assert.Equal(t, "PARAMVAL_0:-3\n0.500000\n", out.String())
}

func TestEmitRuntimeInfoAndTransport(t *testing.T) {
	srv, _, out := newTestServer(t, "")
	srv.EmitRuntimeInfo(12.5, 3)
	srv.EmitTransport(true, 480, 1, 2, 0, 120)
	text := out.String()
	assert.Contains(t, text, "runtime-info\n12.500000\n3\n")
	assert.Contains(t, text, "transport\ntrue\n480:1:2:0.000000\n120.000000\n")
}

func TestWriteAndFixMessageEscapes(t *testing.T) {
	var out bytes.Buffer
	pipe := New(strings.NewReader(""), &out)
	defer pipe.Close()

	pipe.Lock()
	pipe.WriteAndFixMessage("")
	pipe.WriteAndFixMessage("two\nlines")
	pipe.WriteEmptyMessage()
	require.NoError(t, pipe.FlushMessages())
	pipe.Unlock()

	assert.Equal(t, "(null)\ntwo\rlines\n\n", out.String())
}

func TestEmitOptionFrame(t *testing.T) {
	srv, _, out := newTestServer(t, "")
	srv.EmitOption(7, true, "patchbay")
	assert.Equal(t, "ENGINE_OPTION_7\ntrue\npatchbay\n", out.String())
}
