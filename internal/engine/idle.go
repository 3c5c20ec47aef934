package engine

import (
	"math"

	"github.com/rackbay/rackbay/internal/event"
	"github.com/rackbay/rackbay/internal/host"
	"github.com/rackbay/rackbay/internal/plugin"
)

// uiCommandBatch bounds how many UI commands one tick serves.
const uiCommandBatch = 64

// postRtBatch bounds how many notifications one tick drains.
const postRtBatch = 512

// Idle is the cooperative pump the outer host calls on its main thread.
// Order of work: per-plugin UI idle, UI pipe service, post-RT drain.
// Reentrant calls (a bounded wait pumping idle from inside idle) are no-ops.
func (e *Engine) Idle() {
	if e.idleDepth.Add(1) > 1 {
		e.idleDepth.Add(-1)
		return
	}
	defer e.idleDepth.Add(-1)

	e.idlePlugins()
	e.idleUIPipe()
	e.postRt.DrainBatch(postRtBatch, e.handlePostRt)
	e.metrics.FoldRT()
}

// idlePlugins runs the per-plugin idle hooks: custom-UI plugins that need
// the main thread, plus every bridged plugin (its ping and message pump
// ride this hook). A panicking plugin is swallowed per plugin.
func (e *Engine) idlePlugins() {
	e.master.Lock()
	plugins := make([]plugin.Handle, len(e.plugins))
	copy(plugins, e.plugins)
	e.master.Unlock()

	for _, p := range plugins {
		hints := p.Hints()
		needsIdle := hints&plugin.HintIsBridge != 0 ||
			hints&(plugin.HintHasCustomUI|plugin.HintNeedsUIMainThread) == plugin.HintHasCustomUI|plugin.HintNeedsUIMainThread
		if !needsIdle {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("plugin idle panicked", "plugin", p.Info().Name, "panic", r)
				}
			}()
			p.UIIdle()
		}()
	}
}

// idleUIPipe serves one batch of inbound commands then emits the periodic
// ticks: runtime info, transport, per-plugin peaks and output parameters.
func (e *Engine) idleUIPipe() {
	srv := e.ui.server()
	if srv == nil {
		return
	}
	if srv.Pipe().Closed() {
		e.markUICrashed()
		return
	}

	srv.ProcessCommands(uiCommandBatch)

	srv.EmitRuntimeInfo(e.DSPLoad(), e.xrunCount())

	ti := e.TransportInfo()
	srv.EmitTransport(ti.Playing, ti.Frame, ti.Bar, ti.Beat, ti.Tick, ti.BeatsPerMinute)

	e.master.Lock()
	plugins := make([]plugin.Handle, len(e.plugins))
	copy(plugins, e.plugins)
	e.master.Unlock()

	for _, p := range plugins {
		srv.EmitPeaks(p.ID(), p.Peaks())
		for i := range p.ParameterCount() {
			if p.ParameterData(i).Type == plugin.ParamOutput {
				srv.EmitParamVal(p.ID(), int32(i), p.GetParameterValue(i))
			}
		}
	}
}

// DSPLoad returns the last cycle's duration as a percentage of its
// deadline.
func (e *Engine) DSPLoad() float64 {
	elapsed := math.Float64frombits(e.cycleSeconds.Load())
	deadline := float64(e.BufferSize()) / e.SampleRate()
	if deadline <= 0 {
		return 0
	}
	load := elapsed / deadline * 100
	if load > 100 {
		load = 100
	}
	return load
}

// xrunCount reads the RT-side counter directly; prometheus lags one fold
// behind it.
func (e *Engine) xrunCount() uint64 {
	return e.metrics.RTXrunCount()
}

// handlePostRt turns one RT notification into engine callbacks.
func (e *Engine) handlePostRt(ev event.PostRtEvent) {
	switch ev.Type {
	case plugin.PostRtParameterChange:
		if ev.SendCallbackLater {
			e.Callback(host.CallbackParameterValueChanged, uint32(ev.Value1), ev.Value2, 0, 0, ev.ValueF, "")
		}
	case plugin.PostRtProgramChange:
		e.Callback(host.CallbackProgramChanged, uint32(ev.Value1), ev.Value2, 0, 0, 0, "")
	case plugin.PostRtMidiProgramChange:
		e.Callback(host.CallbackMidiProgramChanged, uint32(ev.Value1), ev.Value2, 0, 0, 0, "")
	case plugin.PostRtNoteOn:
		e.Callback(host.CallbackNoteOn, uint32(ev.Value1), ev.Value2, ev.Value3, int32(ev.ValueF), 0, "")
	case plugin.PostRtNoteOff:
		e.Callback(host.CallbackNoteOff, uint32(ev.Value1), ev.Value2, ev.Value3, 0, 0, "")
	}
}
