//go:build linux

package bridge

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rackbay/rackbay/internal/errors"
	"github.com/rackbay/rackbay/internal/ringbuf"
	"github.com/rackbay/rackbay/internal/shmem"
)

// Default waits. The audio-cycle wait may block indefinitely in offline
// mode; everything else is finite.
const (
	ProcessWaitTimeout = 2 * time.Second
	NonRtWaitTimeout   = 5 * time.Second
	ReadyWaitTimeout   = 10 * time.Second
	QuitWaitTimeout    = 3 * time.Second
	killGraceTimeout   = 2 * time.Second
)

// ShmIDsEnv carries the four concatenated region suffixes to the worker.
const ShmIDsEnv = "ENGINE_BRIDGE_SHM_IDS"

// Events is the upcall surface a transport owner provides. Calls arrive on
// the thread pumping the transport (main/idle), never the audio thread;
// the one exception is OnCrash, which the child-process supervisor
// goroutine delivers.
type Events interface {
	// HandleNonRtMessage decodes one worker message's payload. Returning
	// false marks a protocol violation, which is terminal for the transport.
	HandleNonRtMessage(op NonRtServerOpcode, r *ringbuf.Buffer) bool
	OnCrash()
	OnError(msg string)
	OnUiClosed()
	OnSaved()
	OnLatency(frames uint32)
}

// LaunchConfig describes the worker to spawn.
type LaunchConfig struct {
	BinaryPath string
	PluginType string
	Filename   string
	Label      string
	UniqueID   int64

	BufferSize uint32
	SampleRate float64

	// EngineOptionEnv mirrors every engine option into the worker's
	// environment as ENGINE_OPTION_* variables.
	EngineOptionEnv map[string]string

	// WineExec marks a Windows-format target run through a Unix
	// compatibility layer.
	WineExec bool

	// Offline reports whether the outer host is rendering offline; the
	// cycle wait then blocks without timeout.
	Offline func() bool

	// TimeoutTicks is how many idle ticks without a pong mark the worker
	// dead, derived from the uiBridgesTimeout option.
	TimeoutTicks uint32

	Logger *slog.Logger
}

// Transport owns one bridged worker: four shared-memory regions, the
// semaphore pair, the rings and the child process.
type Transport struct {
	cfg    LaunchConfig
	events Events
	logger *slog.Logger

	pool        *shmem.AudioPool
	rtRegion    *shmem.Region
	nonRtClient *shmem.Region
	nonRtServer *shmem.Region

	semServer *shmem.Sem
	semClient *shmem.Sem
	timeInfo  *TimeInfo
	midiOut   []byte

	rtRing       *ringbuf.Buffer // writer: audio thread
	nonRtCliRing *ringbuf.Buffer // writer: main threads, under nonRtMu
	nonRtSrvRing *ringbuf.Buffer // reader: main thread

	nonRtMu sync.Mutex

	timedOut   atomic.Bool
	violated   atomic.Bool
	ready      atomic.Bool
	crashed    atomic.Bool
	quitWanted atomic.Bool
	lastError  atomic.Value // string

	pongCounter atomic.Uint32

	cmd    *exec.Cmd
	waitCh chan error
}

// New creates the regions, launches the worker and waits for its Ready.
func New(cfg LaunchConfig, events Events, poolPorts uint32) (*Transport, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default().With("service", "bridge")
	}
	t := &Transport{cfg: cfg, events: events, logger: cfg.Logger}

	if err := t.setupRegions(poolPorts); err != nil {
		t.Close()
		return nil, err
	}
	if err := t.writeInitialState(); err != nil {
		t.Close()
		return nil, err
	}
	if err := t.spawn(); err != nil {
		t.Close()
		return nil, err
	}
	if err := t.waitReady(); err != nil {
		t.terminate()
		t.Close()
		return nil, err
	}
	return t, nil
}

func (t *Transport) setupRegions(poolPorts uint32) error {
	var err error
	if t.pool, err = shmem.CreateAudioPool(shmem.NewSuffix(), poolPorts, t.cfg.BufferSize); err != nil {
		return err
	}
	if t.rtRegion, err = shmem.Create(shmem.RoleRTClient, shmem.NewSuffix(), rtRegionSize); err != nil {
		return err
	}
	if t.nonRtClient, err = shmem.Create(shmem.RoleNonRTClient, shmem.NewSuffix(), nonRtClientRegionSize); err != nil {
		return err
	}
	if t.nonRtServer, err = shmem.Create(shmem.RoleNonRTServer, shmem.NewSuffix(), nonRtServerRegionSize); err != nil {
		return err
	}

	rtMem := t.rtRegion.Bytes()
	t.semServer = shmem.SemInitAt(rtMem, rtOffSemServer)
	t.semClient = shmem.SemInitAt(rtMem, rtOffSemClient)
	t.timeInfo = TimeInfoAt(rtMem)
	t.midiOut = MidiOutAt(rtMem)
	clear(t.midiOut)

	t.rtRing = ringbuf.InitAt(rtMem[rtOffRing:])
	t.nonRtCliRing = ringbuf.InitAt(t.nonRtClient.Bytes())
	t.nonRtSrvRing = ringbuf.InitAt(t.nonRtServer.Bytes())
	return nil
}

// writeInitialState primes the non-RT client ring with the handshake frame:
// a null opcode, the three ring sizes, then buffer size and sample rate.
func (t *Transport) writeInitialState() error {
	return t.WriteNonRt(func(w *ringbuf.Buffer) bool {
		ok := w.WriteOpcode(uint32(NonRtClientNull))
		ok = w.WriteUint32(ringbuf.SmallStackSize) && ok
		ok = w.WriteUint32(ringbuf.BigStackSize) && ok
		ok = w.WriteUint32(ringbuf.HugeStackSize) && ok
		ok = w.WriteOpcode(uint32(NonRtClientSetBufferSize)) && ok
		ok = w.WriteUint32(t.cfg.BufferSize) && ok
		ok = w.WriteOpcode(uint32(NonRtClientSetSampleRate)) && ok
		ok = w.WriteDouble(t.cfg.SampleRate) && ok
		return ok
	})
}

func (t *Transport) spawn() error {
	shmIDs := t.pool.Suffix() + t.rtRegion.Suffix() + t.nonRtClient.Suffix() + t.nonRtServer.Suffix()

	cmd := exec.Command(t.cfg.BinaryPath,
		t.cfg.PluginType, t.cfg.Filename, t.cfg.Label, fmt.Sprintf("%d", t.cfg.UniqueID))
	cmd.Env = append(os.Environ(), ShmIDsEnv+"="+shmIDs)
	for k, v := range t.cfg.EngineOptionEnv {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if t.cfg.WineExec {
		cmd.Env = append(cmd.Env, "WINEDEBUG=-all")
	}

	if err := cmd.Start(); err != nil {
		return errors.New(err).
			Component("bridge").
			Category(errors.CategoryCommandExecution).
			Context("binary", t.cfg.BinaryPath).
			Build()
	}
	t.cmd = cmd
	t.waitCh = make(chan error, 1)
	go t.supervise()
	return nil
}

// supervise watches the child. A death before Quit was requested is a
// crash; the owner decides what to tell the user.
func (t *Transport) supervise() {
	err := t.cmd.Wait()
	t.waitCh <- err
	if t.quitWanted.Load() {
		return
	}
	t.crashed.Store(true)
	t.timedOut.Store(true)
	t.logger.Error("bridge worker died unexpectedly",
		"binary", t.cfg.BinaryPath, "err", err)
	t.events.OnCrash()
}

// waitReady polls the server ring for Ready or Error.
func (t *Transport) waitReady() error {
	deadline := time.Now().Add(ReadyWaitTimeout)
	for time.Now().Before(deadline) {
		t.PumpNonRt()
		if t.violated.Load() {
			break
		}
		if t.ready.Load() {
			return nil
		}
		if msg, ok := t.lastError.Load().(string); ok && msg != "" {
			return errors.Newf("bridge worker failed to start: %s", msg).
				Component("bridge").
				Category(errors.CategoryPluginLoad).
				Build()
		}
		if t.crashed.Load() {
			return errors.Newf("bridge worker died during startup").
				Component("bridge").
				Category(errors.CategoryTransportCrash).
				Build()
		}
		time.Sleep(5 * time.Millisecond)
	}
	return errors.Newf("bridge worker never became ready").
		Component("bridge").
		Category(errors.CategoryTimeout).
		Timing("wait_ready", ReadyWaitTimeout).
		Build()
}

// --- non-RT plumbing ---

// WriteNonRt commits one opcode frame to the worker under the write mutex.
// A full ring blocks-with-retry up to the non-RT timeout; this is never
// called from the audio thread.
func (t *Transport) WriteNonRt(fill func(w *ringbuf.Buffer) bool) error {
	t.nonRtMu.Lock()
	defer t.nonRtMu.Unlock()

	deadline := time.Now().Add(NonRtWaitTimeout)
	for {
		if fill(t.nonRtCliRing) && t.nonRtCliRing.CommitWrite() {
			return nil
		}
		t.nonRtCliRing.CommitWrite() // discard the invalidated frame
		if !time.Now().Before(deadline) {
			return errors.Newf("non-RT ring full, frame dropped").
				Component("bridge").
				Category(errors.CategoryResource).
				Build()
		}
		time.Sleep(time.Millisecond)
	}
}

// PumpNonRt drains one batch of worker messages. Pong, Ready, Error, Saved,
// UiClosed and SetLatency are handled here; everything else goes to the
// owner. A message the owner cannot decode is a protocol violation and
// parks the transport.
func (t *Transport) PumpNonRt() {
	if t.violated.Load() {
		return
	}
	for t.nonRtSrvRing.IsDataAvailableForReading() {
		op, ok := t.nonRtSrvRing.ReadOpcode()
		if !ok {
			return
		}
		if !t.dispatchNonRt(NonRtServerOpcode(op)) {
			t.violated.Store(true)
			t.timedOut.Store(true)
			t.logger.Error("bridge protocol violation", "opcode", op)
			t.events.OnError("bridge protocol violation")
			return
		}
	}
}

func (t *Transport) dispatchNonRt(op NonRtServerOpcode) bool {
	switch op {
	case NonRtServerNull:
		return true
	case NonRtServerPong:
		t.pongCounter.Store(0)
		return true
	case NonRtServerReady:
		t.ready.Store(true)
		return true
	case NonRtServerError:
		msg, ok := ReadString(t.nonRtSrvRing)
		if !ok {
			return false
		}
		t.lastError.Store(msg)
		t.events.OnError(msg)
		return true
	case NonRtServerSaved:
		t.events.OnSaved()
		return true
	case NonRtServerUiClosed:
		t.events.OnUiClosed()
		return true
	case NonRtServerSetLatency:
		frames, ok := t.nonRtSrvRing.ReadUint32()
		if !ok {
			return false
		}
		t.events.OnLatency(frames)
		return true
	default:
		return t.events.HandleNonRtMessage(op, t.nonRtSrvRing)
	}
}

// Idle sends the periodic ping and advances the last-pong counter. Run on
// each engine idle tick; returns false when the worker stopped answering.
func (t *Transport) Idle() bool {
	t.PumpNonRt()
	if t.crashed.Load() || t.violated.Load() {
		return false
	}
	// A late worker answer clears the sticky timeout: the next cycle may
	// rendezvous again.
	if t.timedOut.Load() && t.semClient.TryWait() {
		t.timedOut.Store(false)
	}
	_ = t.WriteNonRt(func(w *ringbuf.Buffer) bool {
		return w.WriteOpcode(uint32(NonRtClientPing))
	})
	ticks := t.pongCounter.Add(1)
	if t.cfg.TimeoutTicks > 0 && ticks > t.cfg.TimeoutTicks {
		t.logger.Error("bridge worker stopped answering pings", "ticks", ticks)
		return false
	}
	return true
}

// --- RT plumbing ---

// Pool returns the shared audio region.
func (t *Transport) Pool() *shmem.AudioPool { return t.pool }

// TimeInfoBlock returns the shared transport snapshot to fill pre-cycle.
func (t *Transport) TimeInfoBlock() *TimeInfo { return t.timeInfo }

// RTWriteControlEvent stages one control event for the cycle.
func (t *Transport) RTWriteControlEvent(op RtClientOpcode, time uint32, channel uint8, param uint16, value float32) bool {
	ok := t.rtRing.WriteOpcode(uint32(op))
	ok = t.rtRing.WriteUint32(time) && ok
	ok = t.rtRing.WriteByte(channel) && ok
	ok = t.rtRing.WriteUShort(param) && ok
	if op == RtClientControlEventParameter {
		ok = t.rtRing.WriteFloat(value) && ok
	}
	return ok
}

// RTWriteMidiEvent stages one MIDI event for the cycle.
func (t *Transport) RTWriteMidiEvent(time uint32, port uint8, data []byte) bool {
	if len(data) == 0 || len(data) > 4 {
		return false
	}
	ok := t.rtRing.WriteOpcode(uint32(RtClientMidiEvent))
	ok = t.rtRing.WriteUint32(time) && ok
	ok = t.rtRing.WriteByte(port) && ok
	ok = t.rtRing.WriteByte(byte(len(data))) && ok
	ok = t.rtRing.WriteCustomData(data) && ok
	return ok
}

// RTWriteSetAudioPool tells the worker the pool size changed.
func (t *Transport) RTWriteSetAudioPool(sizeBytes uint64) bool {
	ok := t.rtRing.WriteOpcode(uint32(RtClientSetAudioPool))
	ok = t.rtRing.WriteULong(sizeBytes) && ok
	return ok
}

// ProcessRT finishes the cycle frame: commits the staged RT opcodes plus
// Process, wakes the worker and waits for its answer. On timeout the sticky
// timedOut flag silences the plugin until a later wait succeeds.
func (t *Transport) ProcessRT(frames uint32) bool {
	if t.crashed.Load() || t.violated.Load() {
		return false
	}
	ok := t.rtRing.WriteOpcode(uint32(RtClientProcess))
	ok = t.rtRing.WriteUint32(frames) && ok
	if !t.rtRing.CommitWrite() || !ok {
		return false
	}

	t.semServer.Post()

	timeout := ProcessWaitTimeout
	if t.cfg.Offline != nil && t.cfg.Offline() {
		timeout = -1
	}
	if !t.semClient.Wait(timeout) {
		t.timedOut.Store(true)
		return false
	}
	t.timedOut.Store(false)
	return true
}

// TimedOut reports the sticky timeout state.
func (t *Transport) TimedOut() bool { return t.timedOut.Load() }

// Crashed reports whether the worker died before Quit.
func (t *Transport) Crashed() bool { return t.crashed.Load() }

// DrainMidiOut walks the worker's outbound MIDI array and zeroes it.
// Packets are {time u32, port u8, size u8, data[size]}, zero size ends.
func (t *Transport) DrainMidiOut(fn func(time uint32, port uint8, data []byte)) {
	buf := t.midiOut
	i := 0
	for i+6 <= len(buf) {
		size := int(buf[i+5])
		if size == 0 || i+6+size > len(buf) {
			break
		}
		time := uint32(buf[i]) | uint32(buf[i+1])<<8 | uint32(buf[i+2])<<16 | uint32(buf[i+3])<<24
		port := buf[i+4]
		fn(time, port, buf[i+6:i+6+size])
		i += 6 + size
	}
	clear(buf)
}

// ResizePool regrows the audio pool and waits for the worker to remap.
func (t *Transport) ResizePool(ports, bufferSize uint32) error {
	if err := t.pool.Resize(ports, bufferSize); err != nil {
		return err
	}
	t.ready.Store(false)
	err := t.WriteNonRt(func(w *ringbuf.Buffer) bool {
		ok := w.WriteOpcode(uint32(NonRtClientSetAudioPoolSize))
		ok = w.WriteULong(uint64(len(t.pool.Floats()))*4) && ok
		ok = w.WriteOpcode(uint32(NonRtClientSetBufferSize)) && ok
		ok = w.WriteUint32(bufferSize) && ok
		return ok
	})
	if err != nil {
		return err
	}
	return t.waitReady()
}

// RequestQuit runs the shutdown protocol: Quit on both rings, a bounded
// wait for the worker's goodbye, then process teardown.
func (t *Transport) RequestQuit() {
	t.quitWanted.Store(true)

	_ = t.WriteNonRt(func(w *ringbuf.Buffer) bool {
		return w.WriteOpcode(uint32(NonRtClientQuit))
	})
	if t.rtRing.WriteOpcode(uint32(RtClientQuit)) {
		t.rtRing.CommitWrite()
		t.semServer.Post()
	}
	t.semClient.Wait(QuitWaitTimeout)
	t.terminate()
}

func (t *Transport) terminate() {
	if t.cmd == nil || t.cmd.Process == nil {
		return
	}
	t.quitWanted.Store(true)
	select {
	case <-t.waitCh:
		return
	case <-time.After(killGraceTimeout):
	}
	_ = t.cmd.Process.Kill()
	<-t.waitCh
}

// Close releases every region. The worker must already be gone.
func (t *Transport) Close() error {
	var errs []error
	if t.pool != nil {
		errs = append(errs, t.pool.Close())
		t.pool = nil
	}
	if t.rtRegion != nil {
		errs = append(errs, t.rtRegion.Close())
		t.rtRegion = nil
	}
	if t.nonRtClient != nil {
		errs = append(errs, t.nonRtClient.Close())
		t.nonRtClient = nil
	}
	if t.nonRtServer != nil {
		errs = append(errs, t.nonRtServer.Close())
		t.nonRtServer = nil
	}
	return errors.Join(errs...)
}

// --- string framing shared by both ends ---

// WriteString stages a length-prefixed UTF-8 string.
func WriteString(w *ringbuf.Buffer, s string) bool {
	if !w.WriteUint32(uint32(len(s))) {
		return false
	}
	if len(s) == 0 {
		return true
	}
	return w.WriteCustomData([]byte(s))
}

// ReadString consumes a length-prefixed string. Lengths above the huge
// stack size are protocol violations.
func ReadString(r *ringbuf.Buffer) (string, bool) {
	n, ok := r.ReadUint32()
	if !ok || n > ringbuf.HugeStackSize {
		return "", false
	}
	if n == 0 {
		return "", true
	}
	buf := make([]byte, n)
	if !r.ReadCustomData(buf) {
		return "", false
	}
	return string(buf), true
}
