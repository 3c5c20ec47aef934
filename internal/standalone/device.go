// Package standalone drives the engine outside an outer host: a duplex
// audio device through malgo, or offline WAV rendering. Both feed the
// identical Process path the embedded build uses.
package standalone

import (
	"context"
	"log/slog"
	"unsafe"

	"github.com/gen2brain/malgo"

	"github.com/rackbay/rackbay/internal/engine"
	"github.com/rackbay/rackbay/internal/errors"
)

// DeviceHost runs the engine against a real duplex device.
type DeviceHost struct {
	e      *engine.Engine
	logger *slog.Logger

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	channels uint32
	inBufs   [][]float32
	outBufs  [][]float32
}

// NewDeviceHost prepares a duplex stream matching the engine's sample rate
// and buffer size.
func NewDeviceHost(e *engine.Engine, channels int, logger *slog.Logger) (*DeviceHost, error) {
	if logger == nil {
		logger = slog.Default().With("service", "standalone")
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, errors.New(err).
			Component("standalone").
			Category(errors.CategoryAudio).
			Build()
	}

	h := &DeviceHost{e: e, logger: logger, ctx: ctx, channels: uint32(channels)}
	h.sizeBufs(e.BufferSize())

	config := malgo.DefaultDeviceConfig(malgo.Duplex)
	config.SampleRate = uint32(e.SampleRate())
	config.PeriodSizeInFrames = e.BufferSize()
	config.Capture.Format = malgo.FormatF32
	config.Capture.Channels = h.channels
	config.Playback.Format = malgo.FormatF32
	config.Playback.Channels = h.channels

	callbacks := malgo.DeviceCallbacks{
		Data: h.onData,
	}
	device, err := malgo.InitDevice(ctx.Context, config, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		return nil, errors.New(err).
			Component("standalone").
			Category(errors.CategoryAudio).
			Build()
	}
	h.device = device
	return h, nil
}

func (h *DeviceHost) sizeBufs(frames uint32) {
	h.inBufs = make([][]float32, h.channels)
	h.outBufs = make([][]float32, h.channels)
	for i := range h.channels {
		h.inBufs[i] = make([]float32, frames)
		h.outBufs[i] = make([]float32, frames)
	}
}

// onData is the device's audio callback: deinterleave, process, interleave.
func (h *DeviceHost) onData(pOutput, pInput []byte, frameCount uint32) {
	if frameCount > uint32(len(h.inBufs[0])) {
		h.sizeBufs(frameCount)
	}
	in := bytesToFloats(pInput)
	out := bytesToFloats(pOutput)

	ch := h.channels
	for f := range frameCount {
		for c := range ch {
			h.inBufs[c][f] = in[f*ch+c]
		}
	}

	h.e.Process(h.inBufs, h.outBufs, frameCount, nil)

	for f := range frameCount {
		for c := range ch {
			out[f*ch+c] = h.outBufs[c][f]
		}
	}
}

func bytesToFloats(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// Run starts the stream and blocks until the context is done.
func (h *DeviceHost) Run(ctx context.Context) error {
	h.e.Activate()
	defer h.e.Deactivate()

	if err := h.device.Start(); err != nil {
		return errors.New(err).
			Component("standalone").
			Category(errors.CategoryAudio).
			Build()
	}
	defer func() { _ = h.device.Stop() }()

	tick := newIdleTicker()
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			h.e.Idle()
		}
	}
}

// Close releases the device and context.
func (h *DeviceHost) Close() {
	if h.device != nil {
		h.device.Uninit()
	}
	if h.ctx != nil {
		_ = h.ctx.Uninit()
		h.ctx.Free()
	}
}
