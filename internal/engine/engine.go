package engine

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/rackbay/rackbay/internal/errors"
	"github.com/rackbay/rackbay/internal/event"
	"github.com/rackbay/rackbay/internal/graph"
	"github.com/rackbay/rackbay/internal/host"
	"github.com/rackbay/rackbay/internal/observability"
	"github.com/rackbay/rackbay/internal/plugin"
)

// MaxPlugins bounds the dense plugin table.
const MaxPlugins = 255

// lifecycle states
type lifecycle uint8

const (
	stateCreated lifecycle = iota
	stateInitialized
	stateClosed
)

// AdapterFactory builds the in-process format adapter for one plugin. The
// format wrappers themselves are external collaborators; the engine only
// needs this constructor.
type AdapterFactory func(ptype plugin.Type, filename, label string, uniqueID int64) (plugin.Adapter, error)

// BridgeLauncher builds a bridged handle. Injected so the embedded build
// can run without the worker binary present.
type BridgeLauncher func(e *Engine, id uint32, ptype plugin.Type, filename, label string, uniqueID int64) (plugin.Handle, error)

// Engine is one embedded host instance.
type Engine struct {
	opts          Options
	optionsForced atomic.Bool

	// master guards the plugin table and all structural state.
	master  sync.Mutex
	state   lifecycle
	plugins []plugin.Handle

	rack     *graph.Rack
	patchbay *graph.Patchbay
	graph    graph.Graph

	bufferSize atomic.Uint32
	sampleRate atomic.Uint64 // float64 bits
	isActive   atomic.Bool
	offline    atomic.Bool

	transport transportState

	eventIn  event.Buffer
	eventOut event.Buffer
	postRt   event.PostRtQueue

	midiOutScratch []host.MidiEvent
	rawScratch     [6]byte
	cycleSeconds   atomic.Uint64 // float64 bits, last cycle duration

	newAdapter   AdapterFactory
	launchBridge BridgeLauncher

	callback  atomic.Value // host.Callback
	lastError struct {
		sync.Mutex
		text string
	}

	metrics *observability.Metrics

	rtPlugins atomic.Value // []plugin.Handle

	ui        *uiState
	idleDepth atomic.Int32

	projectPath struct {
		sync.Mutex
		path string
	}

	bg *background

	// paramCache backs the fixed outer-host parameter surface beyond the
	// first plugin's real parameters.
	paramCache [host.ParameterSurfaceIns + host.ParameterSurfaceOuts]float32
}

// New creates an engine with the given options snapshot.
func New(opts Options, bufferSize uint32, sampleRate float64) *Engine {
	e := &Engine{
		opts:    opts,
		metrics: observability.NewMetrics(),
		bg:      newBackground(),
	}
	e.bufferSize.Store(bufferSize)
	e.sampleRate.Store(math.Float64bits(sampleRate))
	e.midiOutScratch = make([]host.MidiEvent, 0, event.MaxInternalCount)
	e.transport.init(sampleRate)
	e.ui = newUIState(e)

	switch opts.ProcessMode {
	case ModePatchbay:
		e.patchbay = graph.NewPatchbay(bufferSize, 2, 2, 0, 0)
		e.graph = e.patchbay
	default:
		e.rack = graph.NewRack(bufferSize, opts.ForceStereo)
		e.graph = e.rack
	}

	e.state = stateInitialized
	e.bg.start()
	return e
}

// NewWithExternalPorts creates a patchbay engine with a custom external
// topology, used by the wider descriptor variants.
func NewWithExternalPorts(opts Options, bufferSize uint32, sampleRate float64, audioIns, audioOuts, cvIns, cvOuts uint32) *Engine {
	opts.ProcessMode = ModePatchbay
	e := New(opts, bufferSize, sampleRate)
	e.patchbay = graph.NewPatchbay(bufferSize, audioIns, audioOuts, cvIns, cvOuts)
	e.graph = e.patchbay
	return e
}

// SetAdapterFactory wires the in-process format adapter constructor.
func (e *Engine) SetAdapterFactory(f AdapterFactory) { e.newAdapter = f }

// SetBridgeLauncher wires the bridged-plugin constructor.
func (e *Engine) SetBridgeLauncher(f BridgeLauncher) { e.launchBridge = f }

// SetCallback installs the frontend callback.
func (e *Engine) SetCallback(cb host.Callback) {
	e.callback.Store(cb)
}

// Close tears the engine down: all plugins removed, background stopped.
func (e *Engine) Close() {
	e.RemoveAllPlugins()
	e.bg.stop()
	e.ui.close()
	e.master.Lock()
	e.state = stateClosed
	e.master.Unlock()
}

// Options returns the frozen option snapshot.
func (e *Engine) Options() *Options { return &e.opts }

// OptionsForced reports whether a project load locked the options against
// later UI overrides.
func (e *Engine) OptionsForced() bool { return e.optionsForced.Load() }

// Mode returns the process mode.
func (e *Engine) Mode() Mode { return e.opts.ProcessMode }

// Patchbay exposes the graph in patchbay mode, nil otherwise.
func (e *Engine) Patchbay() *graph.Patchbay { return e.patchbay }

// Metrics exposes the engine's metric families.
func (e *Engine) Metrics() *observability.Metrics { return e.metrics }

// --- plugin.Host implementation ---

func (e *Engine) BufferSize() uint32 { return e.bufferSize.Load() }

func (e *Engine) SampleRate() float64 {
	return math.Float64frombits(e.sampleRate.Load())
}

func (e *Engine) IsOffline() bool { return e.offline.Load() }

func (e *Engine) MaxParameters() uint32 { return e.opts.MaxParameters }

// SingleClientMode reports whether port names carry the plugin name
// prefix. Patchbay mode runs single-client; Rack mode does not.
func (e *Engine) SingleClientMode() bool { return e.opts.ProcessMode == ModePatchbay }

func (e *Engine) TimeInfo() host.TimeInfo { return e.transport.snapshot() }

func (e *Engine) PostRtEvent(ev event.PostRtEvent) {
	if !e.postRt.AppendRT(ev) {
		e.metrics.RTRingOverflow()
	}
}

// Callback delivers one engine event to the frontend and the UI pipe.
func (e *Engine) Callback(op host.CallbackOpcode, pluginID uint32, v1, v2, v3 int32, vf float32, s string) {
	if cb, ok := e.callback.Load().(host.Callback); ok && cb != nil {
		cb(op, pluginID, v1, v2, v3, vf, s)
	}
	e.ui.notifyCallback(op, pluginID, v1, v2, v3, vf, s)
}

// --- error bookkeeping ---

func (e *Engine) setLastError(text string) {
	e.lastError.Lock()
	e.lastError.text = text
	e.lastError.Unlock()
}

// LastError returns the last non-RT failure text.
func (e *Engine) LastError() string {
	e.lastError.Lock()
	defer e.lastError.Unlock()
	return e.lastError.text
}

// --- plugin table ---

// PluginCount returns the current table size.
func (e *Engine) PluginCount() uint32 {
	e.master.Lock()
	defer e.master.Unlock()
	return uint32(len(e.plugins))
}

// Plugin returns the handle at id, or nil.
func (e *Engine) Plugin(id uint32) plugin.Handle {
	e.master.Lock()
	defer e.master.Unlock()
	if id >= uint32(len(e.plugins)) {
		return nil
	}
	return e.plugins[id]
}

// rtPlugins is the audio thread's view of the table. The main thread
// republishes it after every structural change; the audio thread only
// loads, never locks.
var emptyPlugins []plugin.Handle

func (e *Engine) publishRTPlugins() {
	out := make([]plugin.Handle, len(e.plugins))
	copy(out, e.plugins)
	e.rtPlugins.Store(out)
}

func (e *Engine) loadRTPlugins() []plugin.Handle {
	if v, ok := e.rtPlugins.Load().([]plugin.Handle); ok {
		return v
	}
	return emptyPlugins
}

// AddPlugin loads a plugin and appends it to the table. Rack mode enforces
// its stereo constraint; forceStereo admits small asymmetric topologies.
func (e *Engine) AddPlugin(ptype plugin.Type, filename, label string, uniqueID int64) (uint32, error) {
	if filename == "" && label == "" {
		err := errors.Newf("add-plugin needs a filename or a label").
			Component("engine").
			Category(errors.CategoryUserError).
			Build()
		e.setLastError(err.Error())
		return 0, err
	}

	e.master.Lock()
	defer e.master.Unlock()

	if len(e.plugins) >= MaxPlugins {
		err := errors.Newf("maximum number of plugins reached").
			Component("engine").
			Category(errors.CategoryLimit).
			Build()
		e.setLastError(err.Error())
		return 0, err
	}

	id := uint32(len(e.plugins))
	p, err := e.instantiate(id, ptype, filename, label, uniqueID)
	if err != nil {
		e.setLastError(err.Error())
		return 0, err
	}

	if e.opts.ProcessMode == ModeRack {
		if rejectErr := e.checkRackConstraints(p); rejectErr != nil {
			_ = p.Close()
			e.setLastError(rejectErr.Error())
			return 0, rejectErr
		}
		if e.opts.ForceStereo && p.ExtraHints()&plugin.ExtraHintCanRunRack == 0 {
			p.SetOption(plugin.OptionForceStereo, true)
		}
	}

	e.plugins = append(e.plugins, p)
	if e.patchbay != nil {
		e.patchbay.AddNode(p)
	}
	e.publishRTPlugins()
	e.metrics.ActivePlugins.Inc()
	e.Callback(host.CallbackPluginAdded, id, 0, 0, 0, 0, p.Info().Name)
	return id, nil
}

func (e *Engine) instantiate(id uint32, ptype plugin.Type, filename, label string, uniqueID int64) (plugin.Handle, error) {
	if e.opts.PreferPluginBridges && e.launchBridge != nil {
		return e.launchBridge(e, id, ptype, filename, label, uniqueID)
	}
	if e.newAdapter == nil {
		return nil, errors.Newf("no adapter factory installed").
			Component("engine").
			Category(errors.CategoryPluginLoad).
			Build()
	}
	adapter, err := e.newAdapter(ptype, filename, label, uniqueID)
	if err != nil {
		return nil, err
	}
	return plugin.NewInProcess(e, id, adapter)
}

// checkRackConstraints rejects topologies the fixed stereo chain cannot
// host.
func (e *Engine) checkRackConstraints(p plugin.Handle) error {
	counts := p.PortCounts()
	if counts.CVIn > 0 || counts.CVOut > 0 {
		return errors.Newf("plugin '%s' has CV ports, which Rack mode does not support", p.Info().Name).
			Component("engine").
			Category(errors.CategoryCapability).
			Build()
	}
	if counts.CanRunRack() {
		return nil
	}
	if e.opts.ForceStereo && counts.AudioIn <= 2 && counts.AudioOut <= 2 {
		return nil
	}
	return errors.Newf("plugin '%s' (%d in, %d out) cannot run in Rack mode", p.Info().Name, counts.AudioIn, counts.AudioOut).
		Component("engine").
		Category(errors.CategoryCapability).
		Build()
}

// RemovePlugin destroys one plugin and compacts the table; ids above shift
// down so id always equals table index.
func (e *Engine) RemovePlugin(id uint32) error {
	e.master.Lock()
	if id >= uint32(len(e.plugins)) {
		e.master.Unlock()
		err := errors.Newf("no plugin with id %d", id).
			Component("engine").
			Category(errors.CategoryNotFound).
			Build()
		e.setLastError(err.Error())
		return err
	}
	p := e.plugins[id]
	if e.patchbay != nil {
		if g, ok := e.patchbay.NodeGroupForPlugin(id); ok {
			e.patchbay.RemoveNode(g)
		}
	}
	e.plugins = append(e.plugins[:id], e.plugins[id+1:]...)
	for i := uint32(id); i < uint32(len(e.plugins)); i++ {
		old := e.plugins[i].ID()
		e.plugins[i].SetID(i)
		if e.patchbay != nil {
			e.patchbay.UpdatePluginID(old, i)
		}
	}
	e.publishRTPlugins()
	e.master.Unlock()

	_ = p.Close()
	e.metrics.ActivePlugins.Dec()
	e.Callback(host.CallbackPluginRemoved, id, 0, 0, 0, 0, "")
	return nil
}

// RemoveAllPlugins empties the table.
func (e *Engine) RemoveAllPlugins() {
	e.master.Lock()
	old := e.plugins
	e.plugins = nil
	e.publishRTPlugins()
	e.master.Unlock()

	for _, p := range old {
		if e.patchbay != nil {
			if g, ok := e.patchbay.NodeGroupForPlugin(p.ID()); ok {
				e.patchbay.RemoveNode(g)
			}
		}
		_ = p.Close()
		e.metrics.ActivePlugins.Dec()
	}
	if len(old) > 0 {
		e.Callback(host.CallbackPluginRemoved, host.InvalidPluginID, 0, 0, 0, 0, "")
	}
}

// RenamePlugin gives a plugin a new display name.
func (e *Engine) RenamePlugin(id uint32, newName string) error {
	p := e.Plugin(id)
	if p == nil {
		return e.unknownPlugin(id)
	}
	p.LockMaster()
	p.Info().Name = newName
	p.UnlockMaster()
	e.Callback(host.CallbackPluginRenamed, id, 0, 0, 0, 0, newName)
	return nil
}

// ClonePlugin loads a second copy of a plugin with the same settings.
func (e *Engine) ClonePlugin(id uint32) error {
	src := e.Plugin(id)
	if src == nil {
		return e.unknownPlugin(id)
	}
	info := *src.Info()
	newID, err := e.AddPlugin(info.Type, info.Filename, info.Label, info.UniqueID)
	if err != nil {
		return err
	}
	dst := e.Plugin(newID)
	copyPluginSettings(src, dst)
	return nil
}

// ReplacePlugin swaps a plugin for a fresh load of another, reusing the id.
func (e *Engine) ReplacePlugin(id uint32, ptype plugin.Type, filename, label string, uniqueID int64) error {
	if e.Plugin(id) == nil {
		return e.unknownPlugin(id)
	}
	newID, err := e.AddPlugin(ptype, filename, label, uniqueID)
	if err != nil {
		return err
	}
	if err := e.SwitchPlugins(id, newID); err != nil {
		return err
	}
	return e.RemovePlugin(newID)
}

// SwitchPlugins swaps two table slots.
func (e *Engine) SwitchPlugins(idA, idB uint32) error {
	e.master.Lock()
	defer e.master.Unlock()
	if idA >= uint32(len(e.plugins)) || idB >= uint32(len(e.plugins)) {
		return errors.Newf("switch-plugins ids out of range: %d, %d", idA, idB).
			Component("engine").
			Category(errors.CategoryNotFound).
			Build()
	}
	e.plugins[idA], e.plugins[idB] = e.plugins[idB], e.plugins[idA]
	e.plugins[idA].SetID(idA)
	e.plugins[idB].SetID(idB)
	if e.patchbay != nil {
		e.patchbay.UpdatePluginID(idA, ^uint32(0))
		e.patchbay.UpdatePluginID(idB, idA)
		e.patchbay.UpdatePluginID(^uint32(0), idB)
	}
	e.publishRTPlugins()
	return nil
}

func (e *Engine) unknownPlugin(id uint32) error {
	err := errors.Newf("no plugin with id %d", id).
		Component("engine").
		Category(errors.CategoryNotFound).
		Build()
	e.setLastError(err.Error())
	return err
}

// copyPluginSettings moves parameters, mix and custom data across handles.
func copyPluginSettings(src, dst plugin.Handle) {
	if dst == nil {
		return
	}
	n := src.ParameterCount()
	if m := dst.ParameterCount(); m < n {
		n = m
	}
	for i := range n {
		dst.SetParameterValue(i, src.GetParameterValue(i), false)
	}
	for _, cd := range src.CustomData() {
		dst.SetCustomData(cd.Type, cd.Key, cd.Value)
	}
	dst.SetDryWet(src.DryWet(), false)
	dst.SetVolume(src.Volume(), false)
	dst.SetBalanceLeft(src.BalanceLeft(), false)
	dst.SetBalanceRight(src.BalanceRight(), false)
	dst.SetPanning(src.Panning(), false)
	dst.SetCtrlChannel(src.CtrlChannel(), false)
	if prog := src.CurrentProgram(); prog >= 0 {
		dst.SetProgram(prog, false)
	}
	if mp := src.CurrentMidiProgram(); mp >= 0 {
		dst.SetMidiProgram(mp, false)
	}
	dst.SetActive(src.Active(), false)
}
