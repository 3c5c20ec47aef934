package engine

import (
	"encoding/xml"
	"os"

	"github.com/rackbay/rackbay/internal/errors"
	"github.com/rackbay/rackbay/internal/host"
	"github.com/rackbay/rackbay/internal/plugin"
)

// Project document schema. The XML shape is part of the outer interface:
// get_state/set_state exchange exactly this document.

type projectDoc struct {
	XMLName xml.Name        `xml:"RackbayProject"`
	Version string          `xml:"version,attr"`
	Options projectOptions  `xml:"EngineOptions"`
	Plugins []projectPlugin `xml:"Plugin"`
}

type projectOptions struct {
	ProcessMode string  `xml:"ProcessMode"`
	ForceStereo bool    `xml:"ForceStereo"`
	BufferSize  uint32  `xml:"BufferSize"`
	SampleRate  float64 `xml:"SampleRate"`
}

type projectPlugin struct {
	Type     string `xml:"type,attr"`
	Name     string `xml:"Name"`
	Filename string `xml:"Filename,omitempty"`
	Label    string `xml:"Label,omitempty"`
	UniqueID int64  `xml:"UniqueID,omitempty"`

	Active       bool    `xml:"Active"`
	DryWet       float32 `xml:"DryWet"`
	Volume       float32 `xml:"Volume"`
	BalanceLeft  float32 `xml:"BalanceLeft"`
	BalanceRight float32 `xml:"BalanceRight"`
	Panning      float32 `xml:"Panning"`
	CtrlChannel  int8    `xml:"CtrlChannel"`

	Program     int32 `xml:"Program"`
	MidiProgram int32 `xml:"MidiProgram"`

	Parameters []projectParam  `xml:"Parameter"`
	CustomData []projectCustom `xml:"CustomData"`
}

type projectParam struct {
	Index       uint32  `xml:"index,attr"`
	Name        string  `xml:"name,attr,omitempty"`
	Value       float32 `xml:"Value"`
	MidiChannel uint8   `xml:"MidiChannel,omitempty"`
	MidiCC      int16   `xml:"MidiCC,omitempty"`
}

type projectCustom struct {
	Type  string `xml:"Type"`
	Key   string `xml:"Key"`
	Value string `xml:"Value"`
}

func (e *Engine) clearProjectFilename() {
	e.projectPath.Lock()
	e.projectPath.path = ""
	e.projectPath.Unlock()
}

// GetState serializes the full engine configuration plus every plugin's
// state into the project document.
func (e *Engine) GetState() string {
	e.master.Lock()
	plugins := make([]plugin.Handle, len(e.plugins))
	copy(plugins, e.plugins)
	e.master.Unlock()

	doc := projectDoc{
		Version: "1",
		Options: projectOptions{
			ProcessMode: e.opts.ProcessMode.String(),
			ForceStereo: e.opts.ForceStereo,
			BufferSize:  e.BufferSize(),
			SampleRate:  e.SampleRate(),
		},
	}

	for _, p := range plugins {
		p.PrepareForSave()
		doc.Plugins = append(doc.Plugins, snapshotPlugin(p))
	}

	data, err := xml.MarshalIndent(&doc, "", "  ")
	if err != nil {
		logger.Error("project serialization failed", "err", err)
		return ""
	}
	return xml.Header + string(data)
}

func snapshotPlugin(p plugin.Handle) projectPlugin {
	info := p.Info()
	pp := projectPlugin{
		Type:         info.Type.String(),
		Name:         info.Name,
		Filename:     info.Filename,
		Label:        info.Label,
		UniqueID:     info.UniqueID,
		Active:       p.Active(),
		DryWet:       p.DryWet(),
		Volume:       p.Volume(),
		BalanceLeft:  p.BalanceLeft(),
		BalanceRight: p.BalanceRight(),
		Panning:      p.Panning(),
		CtrlChannel:  p.CtrlChannel(),
		Program:      p.CurrentProgram(),
		MidiProgram:  p.CurrentMidiProgram(),
	}
	for i := range p.ParameterCount() {
		data := p.ParameterData(i)
		pp.Parameters = append(pp.Parameters, projectParam{
			Index:       i,
			Name:        data.Name,
			Value:       p.GetParameterValue(i),
			MidiChannel: data.MidiChannel,
			MidiCC:      data.MidiCC,
		})
	}
	for _, cd := range p.CustomData() {
		pp.CustomData = append(pp.CustomData, projectCustom{Type: cd.Type, Key: cd.Key, Value: cd.Value})
	}
	return pp
}

// SetState removes all plugins, restarts the background worker, locks the
// options against later UI overrides and loads the document.
func (e *Engine) SetState(text string) error {
	var doc projectDoc
	if err := xml.Unmarshal([]byte(text), &doc); err != nil {
		parseErr := errors.New(err).
			Component("engine").
			Category(errors.CategoryStateRejection).
			Build()
		e.setLastError(parseErr.Error())
		return parseErr
	}

	e.RemoveAllPlugins()
	e.bg.restart()
	e.optionsForced.Store(true)

	for i := range doc.Plugins {
		if err := e.restorePlugin(&doc.Plugins[i]); err != nil {
			e.Callback(host.CallbackError, host.InvalidPluginID, 0, 0, 0, 0, err.Error())
		}
	}
	e.Callback(host.CallbackProjectLoadFinished, host.InvalidPluginID, 0, 0, 0, 0, "")
	return nil
}

func (e *Engine) restorePlugin(pp *projectPlugin) error {
	id, err := e.AddPlugin(plugin.TypeFromString(pp.Type), pp.Filename, pp.Label, pp.UniqueID)
	if err != nil {
		return err
	}
	p := e.Plugin(id)
	p.LockMaster()
	p.Info().Name = pp.Name
	p.UnlockMaster()

	for _, param := range pp.Parameters {
		if param.Index >= p.ParameterCount() {
			continue
		}
		p.SetParameterValue(param.Index, param.Value, false)
		if param.MidiChannel > 0 {
			p.SetParameterMidiChannel(param.Index, param.MidiChannel)
		}
		if param.MidiCC >= 0 {
			p.SetParameterMidiCC(param.Index, param.MidiCC)
		}
	}
	for _, cd := range pp.CustomData {
		p.SetCustomData(cd.Type, cd.Key, cd.Value)
	}
	if pp.Program >= 0 {
		p.SetProgram(pp.Program, false)
	}
	if pp.MidiProgram >= 0 {
		p.SetMidiProgram(pp.MidiProgram, false)
	}
	p.SetDryWet(pp.DryWet, false)
	p.SetVolume(pp.Volume, false)
	p.SetBalanceLeft(pp.BalanceLeft, false)
	p.SetBalanceRight(pp.BalanceRight, false)
	p.SetPanning(pp.Panning, false)
	p.SetCtrlChannel(pp.CtrlChannel, false)
	p.SetActive(pp.Active, false)
	return nil
}

// --- project files (background worker) ---

// SaveProjectFile writes the project document; the blocking I/O runs on the
// background worker.
func (e *Engine) SaveProjectFile(path string) error {
	if path == "" {
		return errors.Newf("save-project needs a filename").
			Component("engine").
			Category(errors.CategoryUserError).
			Build()
	}
	state := e.GetState()
	done := make(chan error, 1)
	e.bg.submit(func() {
		done <- os.WriteFile(path, []byte(state), 0o644)
	})
	if err := <-done; err != nil {
		fileErr := errors.New(err).
			Component("engine").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
		e.setLastError(fileErr.Error())
		return fileErr
	}
	e.projectPath.Lock()
	e.projectPath.path = path
	e.projectPath.Unlock()
	return nil
}

// LoadProjectFile reads and applies a project document.
func (e *Engine) LoadProjectFile(path string) error {
	done := make(chan struct {
		data []byte
		err  error
	}, 1)
	e.bg.submit(func() {
		data, err := os.ReadFile(path)
		done <- struct {
			data []byte
			err  error
		}{data, err}
	})
	res := <-done
	if res.err != nil {
		fileErr := errors.New(res.err).
			Component("engine").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
		e.setLastError(fileErr.Error())
		return fileErr
	}
	if err := e.SetState(string(res.data)); err != nil {
		return err
	}
	e.projectPath.Lock()
	e.projectPath.path = path
	e.projectPath.Unlock()
	return nil
}

// --- single plugin state files ---

// SavePluginStateFile serializes one plugin to its own document.
func (e *Engine) SavePluginStateFile(id uint32, path string) error {
	p := e.Plugin(id)
	if p == nil {
		return e.unknownPlugin(id)
	}
	p.PrepareForSave()
	pp := snapshotPlugin(p)
	data, err := xml.MarshalIndent(&pp, "", "  ")
	if err != nil {
		return errors.New(err).Component("engine").Category(errors.CategoryState).Build()
	}
	if err := os.WriteFile(path, append([]byte(xml.Header), data...), 0o644); err != nil {
		return errors.New(err).
			Component("engine").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return nil
}

// LoadPluginStateFile applies a plugin document to an already loaded
// plugin.
func (e *Engine) LoadPluginStateFile(id uint32, path string) error {
	p := e.Plugin(id)
	if p == nil {
		return e.unknownPlugin(id)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.New(err).
			Component("engine").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	var pp projectPlugin
	if err := xml.Unmarshal(data, &pp); err != nil {
		return errors.New(err).
			Component("engine").
			Category(errors.CategoryStateRejection).
			Build()
	}
	for _, param := range pp.Parameters {
		if param.Index < p.ParameterCount() {
			p.SetParameterValue(param.Index, param.Value, true)
		}
	}
	for _, cd := range pp.CustomData {
		p.SetCustomData(cd.Type, cd.Key, cd.Value)
	}
	p.SetDryWet(pp.DryWet, true)
	p.SetVolume(pp.Volume, true)
	p.SetBalanceLeft(pp.BalanceLeft, true)
	p.SetBalanceRight(pp.BalanceRight, true)
	p.SetPanning(pp.Panning, true)
	p.SetCtrlChannel(pp.CtrlChannel, true)
	return nil
}
