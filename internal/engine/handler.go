package engine

import (
	"math/rand"
	"path/filepath"
	"strings"

	"github.com/rackbay/rackbay/internal/errors"
	"github.com/rackbay/rackbay/internal/plugin"
)

// uiHandler adapts UI pipe commands onto the engine. All methods run on the
// idle thread; plugin lookups go through the master-locked table.
type uiHandler struct {
	e *Engine
}

func (h *uiHandler) pluginOrErr(id uint32) (plugin.Handle, error) {
	p := h.e.Plugin(id)
	if p == nil {
		return nil, h.e.unknownPlugin(id)
	}
	return p, nil
}

// SetEngineOption refuses overrides once a project load forced the options.
func (h *uiHandler) SetEngineOption(key, value string) error {
	if h.e.OptionsForced() {
		return errors.Newf("engine options are locked by the loaded project").
			Component("engine").
			Category(errors.CategoryState).
			Build()
	}
	// Options are immutable after init in the embedded build; accepted
	// keys only affect cosmetic behavior.
	switch key {
	case "UIS_ALWAYS_ON_TOP":
		h.e.opts.UIsAlwaysOnTop = value == "true"
		return nil
	case "UI_BRIDGES_TIMEOUT":
		return nil
	default:
		return errors.Newf("engine option %q cannot change after init", key).
			Component("engine").
			Category(errors.CategoryState).
			Build()
	}
}

func (h *uiHandler) ClearEngineXruns()   {}
func (h *uiHandler) CancelEngineAction() {}

// LoadFile routes a single sampler file through add-plugin with the format
// picked from the extension.
func (h *uiHandler) LoadFile(path string) error {
	if path == "" {
		return errors.Newf("load_file needs a filename").
			Component("engine").
			Category(errors.CategoryUserError).
			Build()
	}
	var ptype plugin.Type
	switch strings.ToLower(filepath.Ext(path)) {
	case ".sf2":
		ptype = plugin.TypeSF2
	case ".sfz":
		ptype = plugin.TypeSFZ
	case ".gig":
		ptype = plugin.TypeGIG
	default:
		return errors.Newf("no player for %q", filepath.Ext(path)).
			Component("engine").
			Category(errors.CategoryUserError).
			Build()
	}
	_, err := h.e.AddPlugin(ptype, path, filepath.Base(path), 0)
	return err
}

func (h *uiHandler) LoadProject(path string) error { return h.e.LoadProjectFile(path) }
func (h *uiHandler) SaveProject(path string) error { return h.e.SaveProjectFile(path) }
func (h *uiHandler) ClearProjectFilename()         { h.e.clearProjectFilename() }

func (h *uiHandler) PatchbayConnect(srcGroup, srcPort, dstGroup, dstPort uint32) error {
	pb := h.e.Patchbay()
	if pb == nil {
		return errors.Newf("patchbay commands need patchbay mode").
			Component("engine").
			Category(errors.CategoryCapability).
			Build()
	}
	h.e.master.Lock()
	defer h.e.master.Unlock()
	id, err := pb.Connect(srcGroup, srcPort, dstGroup, dstPort)
	if err != nil {
		return err
	}
	if srv := h.e.ui.server(); srv != nil {
		srv.EmitPatchbayConnection(id, srcGroup, srcPort, dstGroup, dstPort)
	}
	return nil
}

func (h *uiHandler) PatchbayDisconnect(connID uint32) error {
	pb := h.e.Patchbay()
	if pb == nil {
		return errors.Newf("patchbay commands need patchbay mode").
			Component("engine").
			Category(errors.CategoryCapability).
			Build()
	}
	h.e.master.Lock()
	defer h.e.master.Unlock()
	return pb.Disconnect(connID)
}

// PatchbayRefresh rewalks the graph and emits a complete topology snapshot.
func (h *uiHandler) PatchbayRefresh() error {
	pb := h.e.Patchbay()
	if pb == nil {
		return errors.Newf("patchbay commands need patchbay mode").
			Component("engine").
			Category(errors.CategoryCapability).
			Build()
	}
	srv := h.e.ui.server()
	if srv == nil {
		return nil
	}
	h.e.master.Lock()
	nodes, conns := pb.Snapshot(h.e.plugins)
	h.e.master.Unlock()

	for _, n := range nodes {
		ports := make([]string, len(n.Ports))
		for i, p := range n.Ports {
			ports[i] = p.Name
		}
		srv.EmitPatchbayNode(n.Group, n.Name, ports)
	}
	for _, c := range conns {
		srv.EmitPatchbayConnection(c.ID, c.SrcGroup, c.SrcPort, c.DstGroup, c.DstPort)
	}
	return nil
}

func (h *uiHandler) TransportPlay()                 { h.e.TransportPlay() }
func (h *uiHandler) TransportPause()                { h.e.TransportPause() }
func (h *uiHandler) TransportBPM(bpm float64)       { h.e.TransportBPM(bpm) }
func (h *uiHandler) TransportRelocate(frame uint64) { h.e.TransportRelocate(frame) }

func (h *uiHandler) AddPlugin(ptype, filename, label string, uniqueID int64) error {
	_, err := h.e.AddPlugin(plugin.TypeFromString(ptype), filename, label, uniqueID)
	return err
}

func (h *uiHandler) RemovePlugin(id uint32) error { return h.e.RemovePlugin(id) }
func (h *uiHandler) RemoveAllPlugins()            { h.e.RemoveAllPlugins() }
func (h *uiHandler) RenamePlugin(id uint32, name string) error {
	return h.e.RenamePlugin(id, name)
}
func (h *uiHandler) ClonePlugin(id uint32) error { return h.e.ClonePlugin(id) }
func (h *uiHandler) ReplacePlugin(id uint32, ptype, filename, label string, uniqueID int64) error {
	return h.e.ReplacePlugin(id, plugin.TypeFromString(ptype), filename, label, uniqueID)
}
func (h *uiHandler) SwitchPlugins(idA, idB uint32) error { return h.e.SwitchPlugins(idA, idB) }

func (h *uiHandler) LoadPluginState(id uint32, path string) error {
	return h.e.LoadPluginStateFile(id, path)
}

func (h *uiHandler) SavePluginState(id uint32, path string) error {
	return h.e.SavePluginStateFile(id, path)
}

func (h *uiHandler) SetOption(id uint32, option uint32, on bool) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	p.SetOption(plugin.OptionFlags(option), on)
	return nil
}

func (h *uiHandler) SetActive(id uint32, on bool) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	p.SetActive(on, true)
	return nil
}

func (h *uiHandler) SetDryWet(id uint32, value float32) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	p.SetDryWet(value, true)
	return nil
}

func (h *uiHandler) SetVolume(id uint32, value float32) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	p.SetVolume(value, true)
	return nil
}

func (h *uiHandler) SetBalanceLeft(id uint32, value float32) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	p.SetBalanceLeft(value, true)
	return nil
}

func (h *uiHandler) SetBalanceRight(id uint32, value float32) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	p.SetBalanceRight(value, true)
	return nil
}

func (h *uiHandler) SetPanning(id uint32, value float32) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	p.SetPanning(value, true)
	return nil
}

func (h *uiHandler) SetCtrlChannel(id uint32, channel int8) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	p.SetCtrlChannel(channel, true)
	return nil
}

// SetParameterValue routes negative indices to the built-in controls.
func (h *uiHandler) SetParameterValue(id uint32, index int32, value float32) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	switch {
	case index >= 0:
		p.SetParameterValue(uint32(index), value, true)
	case index == plugin.ParameterActive:
		p.SetActive(value >= 0.5, true)
	case index == plugin.ParameterDryWet:
		p.SetDryWet(value, true)
	case index == plugin.ParameterVolume:
		p.SetVolume(value, true)
	case index == plugin.ParameterBalanceLeft:
		p.SetBalanceLeft(value, true)
	case index == plugin.ParameterBalanceRight:
		p.SetBalanceRight(value, true)
	case index == plugin.ParameterPanning:
		p.SetPanning(value, true)
	case index == plugin.ParameterCtrlChannel:
		p.SetCtrlChannel(int8(value), true)
	default:
		return errors.Newf("unknown internal parameter %d", index).
			Component("engine").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func (h *uiHandler) SetParameterMidiChannel(id uint32, index uint32, channel uint8) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	p.SetParameterMidiChannel(index, channel)
	return nil
}

func (h *uiHandler) SetParameterMidiCC(id uint32, index uint32, cc int16) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	p.SetParameterMidiCC(index, cc)
	return nil
}

func (h *uiHandler) SetParameterTouch(id uint32, index int32, touch bool) error {
	if _, err := h.pluginOrErr(id); err != nil {
		return err
	}
	h.e.ui.mu.Lock()
	h.e.ui.touched[uint64(id)<<32|uint64(uint32(index))] = touch
	h.e.ui.mu.Unlock()
	return nil
}

func (h *uiHandler) SetProgram(id uint32, index int32) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	p.SetProgram(index, true)
	return nil
}

func (h *uiHandler) SetMidiProgram(id uint32, index int32) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	p.SetMidiProgram(index, true)
	return nil
}

func (h *uiHandler) SetCustomData(id uint32, dtype, key, value string) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	p.SetCustomData(dtype, key, value)
	return nil
}

func (h *uiHandler) SetChunkData(id uint32, chunk string) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	p.SetCustomData(plugin.CustomDataTypeChunk, "chunk", chunk)
	return nil
}

func (h *uiHandler) PrepareForSave(id uint32) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	p.PrepareForSave()
	return nil
}

func (h *uiHandler) ResetParameters(id uint32) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	for i := range p.ParameterCount() {
		p.SetParameterValue(i, p.ParameterRanges(i).Def, true)
	}
	return nil
}

func (h *uiHandler) RandomizeParameters(id uint32) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	for i := range p.ParameterCount() {
		data := p.ParameterData(i)
		if data.Type != plugin.ParamInput || data.Hints&plugin.ParamHintEnabled == 0 {
			continue
		}
		r := p.ParameterRanges(i)
		p.SetParameterValue(i, r.UnnormalizedValue(rand.Float32()), true)
	}
	return nil
}

func (h *uiHandler) SendMidiNote(id uint32, channel, note, velocity uint8) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	if !p.InjectNote(channel, note, velocity) {
		return errors.Newf("note mailbox full for plugin %d", id).
			Component("engine").
			Category(errors.CategoryResource).
			Build()
	}
	return nil
}

func (h *uiHandler) ShowCustomUI(id uint32, show bool) error {
	p, err := h.pluginOrErr(id)
	if err != nil {
		return err
	}
	if p.Hints()&plugin.HintHasCustomUI == 0 {
		return errors.Newf("plugin %d has no custom UI", id).
			Component("engine").
			Category(errors.CategoryCapability).
			Build()
	}
	p.UIShow(show)
	return nil
}
