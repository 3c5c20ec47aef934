package engine

import (
	"io"
	"strconv"
	"sync"

	"github.com/rackbay/rackbay/internal/host"
	"github.com/rackbay/rackbay/internal/plugin"
	"github.com/rackbay/rackbay/internal/uipipe"
)

// UI visibility states as the engine observes them.
type uiVisibility uint8

const (
	uiNone uiVisibility = iota
	uiShow
	uiHide
	uiCrashed
)

// uiState owns the engine side of the UI pipe.
type uiState struct {
	e *Engine

	mu      sync.Mutex
	srv     *uipipe.Server
	state   uiVisibility
	touched map[uint64]bool // plugin<<32|param touch state from the UI
}

func newUIState(e *Engine) *uiState {
	return &uiState{e: e, touched: map[uint64]bool{}}
}

// AttachUI connects a UI process over a reader/writer pair and pushes the
// initial snapshot. The transition to Show re-sends info, options and every
// plugin.
func (e *Engine) AttachUI(r io.Reader, w io.Writer) {
	e.ui.mu.Lock()
	pipe := uipipe.New(r, w)
	e.ui.srv = uipipe.NewServer(pipe, &uiHandler{e: e})
	e.ui.state = uiShow
	e.ui.mu.Unlock()

	e.ui.sendFullState()
}

// DetachUI drops the UI connection.
func (e *Engine) DetachUI() {
	e.ui.mu.Lock()
	defer e.ui.mu.Unlock()
	if e.ui.srv != nil {
		e.ui.srv.Pipe().Close()
		e.ui.srv = nil
	}
	e.ui.state = uiNone
}

// UIShow drives the UI state machine from the outer host.
func (e *Engine) UIShow(show bool) {
	e.ui.mu.Lock()
	srv := e.ui.srv
	if show {
		e.ui.state = uiShow
	} else {
		e.ui.state = uiHide
	}
	e.ui.mu.Unlock()

	if show && srv != nil {
		e.ui.sendFullState()
	}
	if !show {
		e.Callback(host.CallbackUIStateChanged, host.InvalidPluginID, 0, 0, 0, 0, "")
	}
}

// markUICrashed flags an unusable UI helper to the outer host.
func (e *Engine) markUICrashed() {
	e.ui.mu.Lock()
	e.ui.state = uiCrashed
	e.ui.srv = nil
	e.ui.mu.Unlock()
	e.Callback(host.CallbackUIStateChanged, host.InvalidPluginID, -1, 0, 0, 0, "")
}

func (u *uiState) server() *uipipe.Server {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.srv
}

func (u *uiState) close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.srv != nil {
		u.srv.Pipe().Close()
		u.srv = nil
	}
}

// sendFullState pushes engine info, every option dump and every plugin
// snapshot.
func (u *uiState) sendFullState() {
	srv := u.server()
	if srv == nil {
		return
	}
	e := u.e

	srv.EmitEngineInfo([2]string{"", ""}, MaxPlugins, e.BufferSize(), e.SampleRate())

	forced := e.OptionsForced()
	srv.EmitOption(0, forced, e.opts.ProcessMode.String())
	srv.EmitOption(1, forced, strconv.FormatBool(e.opts.ForceStereo))
	srv.EmitOption(2, forced, strconv.FormatBool(e.opts.PreferPluginBridges))
	srv.EmitOption(3, forced, strconv.FormatBool(e.opts.PreferUIBridges))
	srv.EmitOption(4, forced, strconv.FormatBool(e.opts.UIsAlwaysOnTop))
	srv.EmitOption(5, forced, strconv.FormatUint(uint64(e.opts.MaxParameters), 10))
	srv.EmitOption(6, forced, strconv.FormatUint(uint64(e.opts.UIBridgesTimeout), 10))

	for id := uint32(0); ; id++ {
		p := e.Plugin(id)
		if p == nil {
			break
		}
		u.sendPluginSnapshot(p)
	}
}

// sendPluginSnapshot pushes one plugin's full description.
func (u *uiState) sendPluginSnapshot(p plugin.Handle) {
	srv := u.server()
	if srv == nil {
		return
	}
	id := p.ID()
	info := p.Info()
	srv.EmitPluginInfo(id, &uipipe.PluginInfoFrame{
		Type:      info.Type.String(),
		Category:  uint32(info.Category),
		Hints:     uint32(p.Hints()),
		UniqueID:  info.UniqueID,
		Filename:  info.Filename,
		Name:      info.Name,
		IconName:  info.IconName,
		Maker:     info.Maker,
		Copyright: info.Copyright,
		Label:     info.Label,
		RealName:  info.RealName,
	})

	n := p.ParameterCount()
	srv.EmitParameterCount(id, n)
	for i := range n {
		data := p.ParameterData(i)
		ranges := p.ParameterRanges(i)
		srv.EmitParameterData(id, int32(i), uint32(data.Type), uint32(data.Hints),
			data.MidiChannel, data.MidiCC, data.Name, data.Unit)
		srv.EmitParameterRanges(id, int32(i), ranges.Def, ranges.Min, ranges.Max,
			ranges.Step, ranges.StepSmall, ranges.StepLarge)
		srv.EmitParamVal(id, int32(i), p.GetParameterValue(i))
	}

	srv.EmitProgramCount(id, p.ProgramCount())
	for i := range p.ProgramCount() {
		srv.EmitProgramName(id, i, p.ProgramName(i))
	}
	srv.EmitMidiProgramCount(id, p.MidiProgramCount())
	for i := range p.MidiProgramCount() {
		mp := p.MidiProgramData(i)
		srv.EmitMidiProgramData(id, i, mp.Bank, mp.Program, mp.Name)
	}

	for _, cd := range p.CustomData() {
		if cd.Type == plugin.CustomDataTypeProperty {
			srv.EmitCustomData(id, cd.Type, cd.Key, cd.Value)
		}
	}
}

// notifyCallback forwards engine callbacks onto the pipe. Parameter value
// changes ride the compact PARAMVAL frame; everything else the generic
// callback frame.
func (u *uiState) notifyCallback(op host.CallbackOpcode, pluginID uint32, v1, v2, v3 int32, vf float32, s string) {
	srv := u.server()
	if srv == nil {
		return
	}
	if op == host.CallbackParameterValueChanged {
		srv.EmitParamVal(pluginID, v1, vf)
		return
	}
	srv.EmitCallback(int32(op), pluginID, v1, v2, v3, vf, s)
}
