//go:build linux

// Package worker is the far end of the bridge transport: it attaches the
// four shared-memory regions named by ENGINE_BRIDGE_SHM_IDS, hosts one
// plugin adapter, answers the non-RT protocol and serves audio cycles
// against the semaphore pair.
package worker

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rackbay/rackbay/internal/bridge"
	"github.com/rackbay/rackbay/internal/errors"
	"github.com/rackbay/rackbay/internal/event"
	"github.com/rackbay/rackbay/internal/plugin"
	"github.com/rackbay/rackbay/internal/ringbuf"
	"github.com/rackbay/rackbay/internal/shmem"
)

// Worker hosts one plugin adapter behind the shared-memory protocol.
type Worker struct {
	adapter plugin.Adapter
	logger  *slog.Logger

	pool        *shmem.AudioPool
	rtRegion    *shmem.Region
	nonRtClient *shmem.Region
	nonRtServer *shmem.Region

	semServer *shmem.Sem
	semClient *shmem.Sem
	timeInfo  *bridge.TimeInfo
	midiOut   []byte

	rtRing  *ringbuf.Buffer
	cliRing *ringbuf.Buffer
	srvRing *ringbuf.Buffer
	srvMu   sync.Mutex

	bufferSize uint32
	sampleRate float64
	counts     plugin.PortCounts

	audioIn  [][]float32
	audioOut [][]float32
	cvIn     [][]float32
	cvOut    [][]float32

	eventIn  event.Buffer
	eventOut event.Buffer

	// uiNotes crosses from the non-RT loop into the RT loop.
	uiNotes chan event.Event

	quit atomic.Bool
}

// Run attaches to the engine's regions and serves until Quit. shmIDs is the
// four concatenated six character suffixes: pool, rt, non-rt client,
// non-rt server.
func Run(shmIDs string, adapter plugin.Adapter, logger *slog.Logger) error {
	if len(shmIDs) != 24 {
		return errors.Newf("malformed shm ids %q", shmIDs).
			Component("bridge-worker").
			Category(errors.CategoryProtocol).
			Build()
	}
	if logger == nil {
		logger = slog.Default().With("service", "bridge-worker")
	}
	w := &Worker{adapter: adapter, logger: logger, uiNotes: make(chan event.Event, 64)}
	if err := w.attach(shmIDs); err != nil {
		return err
	}
	defer w.detach()

	if err := w.handshake(); err != nil {
		w.sendError(err.Error())
		return err
	}
	w.sendSnapshot()
	w.sendReady()

	go w.rtLoop()
	w.nonRtLoop()
	return nil
}

func (w *Worker) attach(shmIDs string) error {
	var err error
	if w.pool, err = shmem.AttachAudioPool(shmIDs[0:6], 0, 0); err != nil {
		return err
	}
	if w.rtRegion, err = shmem.Attach(shmem.RoleRTClient, shmIDs[6:12]); err != nil {
		return err
	}
	if w.nonRtClient, err = shmem.Attach(shmem.RoleNonRTClient, shmIDs[12:18]); err != nil {
		return err
	}
	if w.nonRtServer, err = shmem.Attach(shmem.RoleNonRTServer, shmIDs[18:24]); err != nil {
		return err
	}

	rtMem := w.rtRegion.Bytes()
	w.semServer = shmem.SemAt(rtMem, 0)
	w.semClient = shmem.SemAt(rtMem, shmem.SemSize)
	w.timeInfo = bridge.TimeInfoAt(rtMem)
	w.midiOut = bridge.MidiOutAt(rtMem)

	w.rtRing = ringbuf.At(rtMem[bridge.RTRingOffset():])
	w.cliRing = ringbuf.At(w.nonRtClient.Bytes())
	w.srvRing = ringbuf.At(w.nonRtServer.Bytes())
	return nil
}

func (w *Worker) detach() {
	if w.pool != nil {
		w.pool.Close()
	}
	if w.rtRegion != nil {
		w.rtRegion.Close()
	}
	if w.nonRtClient != nil {
		w.nonRtClient.Close()
	}
	if w.nonRtServer != nil {
		w.nonRtServer.Close()
	}
}

// handshake consumes the engine's initial frame: a null opcode, the three
// ring sizes, then buffer size and sample rate.
func (w *Worker) handshake() error {
	deadline := time.Now().Add(10 * time.Second)
	for !w.cliRing.IsDataAvailableForReading() {
		if !time.Now().Before(deadline) {
			return errors.Newf("no handshake from engine").
				Component("bridge-worker").
				Category(errors.CategoryTimeout).
				Build()
		}
		time.Sleep(time.Millisecond)
	}

	op, ok := w.cliRing.ReadOpcode()
	if !ok || bridge.NonRtClientOpcode(op) != bridge.NonRtClientNull {
		return errors.Newf("bad handshake opcode %d", op).
			Component("bridge-worker").
			Category(errors.CategoryProtocol).
			Build()
	}
	small, ok1 := w.cliRing.ReadUint32()
	big, ok2 := w.cliRing.ReadUint32()
	huge, ok3 := w.cliRing.ReadUint32()
	if !ok1 || !ok2 || !ok3 ||
		small != ringbuf.SmallStackSize || big != ringbuf.BigStackSize || huge != ringbuf.HugeStackSize {
		return errors.Newf("ring size mismatch %d/%d/%d", small, big, huge).
			Component("bridge-worker").
			Category(errors.CategoryProtocol).
			Build()
	}

	// The initial buffer-size and sample-rate opcodes follow immediately.
	for range 2 {
		op, ok := w.cliRing.ReadOpcode()
		if !ok {
			return errors.Newf("truncated handshake").
				Component("bridge-worker").
				Category(errors.CategoryProtocol).
				Build()
		}
		if !w.handleNonRtOpcode(bridge.NonRtClientOpcode(op)) {
			return errors.Newf("bad handshake payload").
				Component("bridge-worker").
				Category(errors.CategoryProtocol).
				Build()
		}
	}

	w.counts = w.adapter.Ports()
	w.rebindPool()
	return nil
}

// rebindPool recomputes the slot slices after a pool or buffer change.
// Slots are input-first: audio-in, cv-in, audio-out, cv-out.
func (w *Worker) rebindPool() {
	if err := w.pool.Remap(w.counts.Total(), w.bufferSize); err != nil {
		w.logger.Error("pool remap failed", "err", err)
		return
	}
	slot := uint32(0)
	bind := func(n uint32) [][]float32 {
		bufs := make([][]float32, n)
		for i := range bufs {
			bufs[i] = w.pool.Slot(slot)
			slot++
		}
		return bufs
	}
	w.audioIn = bind(w.counts.AudioIn)
	w.cvIn = bind(w.counts.CVIn)
	w.audioOut = bind(w.counts.AudioOut)
	w.cvOut = bind(w.counts.CVOut)
}

// --- worker -> engine writers ---

func (w *Worker) writeSrv(fill func(r *ringbuf.Buffer) bool) {
	w.srvMu.Lock()
	defer w.srvMu.Unlock()
	deadline := time.Now().Add(bridge.NonRtWaitTimeout)
	for {
		if fill(w.srvRing) && w.srvRing.CommitWrite() {
			return
		}
		w.srvRing.CommitWrite()
		if !time.Now().Before(deadline) {
			w.logger.Error("server ring full, message dropped")
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func (w *Worker) sendReady() {
	w.writeSrv(func(r *ringbuf.Buffer) bool {
		return r.WriteOpcode(uint32(bridge.NonRtServerReady))
	})
}

func (w *Worker) sendError(msg string) {
	w.writeSrv(func(r *ringbuf.Buffer) bool {
		ok := r.WriteOpcode(uint32(bridge.NonRtServerError))
		return bridge.WriteString(r, msg) && ok
	})
}

// sendSnapshot pushes the full plugin description: identity, counts,
// parameters, programs and latency.
func (w *Worker) sendSnapshot() {
	info := w.adapter.Info()
	counts := w.adapter.Ports()

	w.writeSrv(func(r *ringbuf.Buffer) bool {
		ok := r.WriteOpcode(uint32(bridge.NonRtServerPluginInfo1))
		ok = r.WriteUint32(uint32(info.Category)) && ok
		ok = r.WriteUint32(uint32(w.adapter.Hints())) && ok
		ok = r.WriteLong(info.UniqueID) && ok
		return ok
	})
	w.writeSrv(func(r *ringbuf.Buffer) bool {
		ok := r.WriteOpcode(uint32(bridge.NonRtServerPluginInfo2))
		ok = bridge.WriteString(r, info.RealName) && ok
		ok = bridge.WriteString(r, info.Label) && ok
		ok = bridge.WriteString(r, info.Maker) && ok
		ok = bridge.WriteString(r, info.Copyright) && ok
		return ok
	})
	w.writeSrv(func(r *ringbuf.Buffer) bool {
		ok := r.WriteOpcode(uint32(bridge.NonRtServerAudioCount))
		ok = r.WriteUint32(counts.AudioIn) && ok
		ok = r.WriteUint32(counts.AudioOut) && ok
		ok = r.WriteUint32(counts.CVIn) && ok
		ok = r.WriteUint32(counts.CVOut) && ok
		return ok
	})
	w.writeSrv(func(r *ringbuf.Buffer) bool {
		ok := r.WriteOpcode(uint32(bridge.NonRtServerMidiCount))
		ok = r.WriteUint32(counts.EventIn) && ok
		ok = r.WriteUint32(counts.EventOut) && ok
		return ok
	})

	n := w.adapter.ParameterCount()
	w.writeSrv(func(r *ringbuf.Buffer) bool {
		ok := r.WriteOpcode(uint32(bridge.NonRtServerParameterCount))
		ok = r.WriteUint32(n) && ok
		return ok
	})
	for i := range n {
		data, ranges := w.adapter.ParameterInfo(i)
		w.writeSrv(func(r *ringbuf.Buffer) bool {
			ok := r.WriteOpcode(uint32(bridge.NonRtServerParameterData1))
			ok = r.WriteUint32(i) && ok
			ok = r.WriteUint32(uint32(data.Type)) && ok
			ok = r.WriteUint32(uint32(data.Hints)) && ok
			ok = r.WriteInt(data.RIndex) && ok
			ok = r.WriteByte(data.MidiChannel) && ok
			ok = r.WriteShort(data.MidiCC) && ok
			return ok
		})
		w.writeSrv(func(r *ringbuf.Buffer) bool {
			ok := r.WriteOpcode(uint32(bridge.NonRtServerParameterData2))
			ok = r.WriteUint32(i) && ok
			ok = bridge.WriteString(r, data.Name) && ok
			ok = bridge.WriteString(r, data.Unit) && ok
			return ok
		})
		w.writeSrv(func(r *ringbuf.Buffer) bool {
			ok := r.WriteOpcode(uint32(bridge.NonRtServerParameterRanges1))
			ok = r.WriteUint32(i) && ok
			ok = r.WriteFloat(ranges.Def) && ok
			ok = r.WriteFloat(ranges.Min) && ok
			ok = r.WriteFloat(ranges.Max) && ok
			return ok
		})
		w.writeSrv(func(r *ringbuf.Buffer) bool {
			ok := r.WriteOpcode(uint32(bridge.NonRtServerParameterRanges2))
			ok = r.WriteUint32(i) && ok
			ok = r.WriteFloat(ranges.Step) && ok
			ok = r.WriteFloat(ranges.StepSmall) && ok
			ok = r.WriteFloat(ranges.StepLarge) && ok
			return ok
		})
		w.writeSrv(func(r *ringbuf.Buffer) bool {
			ok := r.WriteOpcode(uint32(bridge.NonRtServerParameterValue))
			ok = r.WriteUint32(i) && ok
			ok = r.WriteFloat(w.adapter.GetParameterValue(i)) && ok
			return ok
		})
	}

	programs := w.adapter.Programs()
	w.writeSrv(func(r *ringbuf.Buffer) bool {
		ok := r.WriteOpcode(uint32(bridge.NonRtServerProgramCount))
		ok = r.WriteUint32(uint32(len(programs))) && ok
		return ok
	})
	for i, prog := range programs {
		w.writeSrv(func(r *ringbuf.Buffer) bool {
			ok := r.WriteOpcode(uint32(bridge.NonRtServerProgramName))
			ok = r.WriteUint32(uint32(i)) && ok
			ok = bridge.WriteString(r, prog.Name) && ok
			return ok
		})
	}

	midiPrograms := w.adapter.MidiPrograms()
	w.writeSrv(func(r *ringbuf.Buffer) bool {
		ok := r.WriteOpcode(uint32(bridge.NonRtServerMidiProgramCount))
		ok = r.WriteUint32(uint32(len(midiPrograms))) && ok
		return ok
	})
	for i, mp := range midiPrograms {
		w.writeSrv(func(r *ringbuf.Buffer) bool {
			ok := r.WriteOpcode(uint32(bridge.NonRtServerMidiProgramData))
			ok = r.WriteUint32(uint32(i)) && ok
			ok = r.WriteUint32(mp.Bank) && ok
			ok = r.WriteUint32(mp.Program) && ok
			ok = bridge.WriteString(r, mp.Name) && ok
			return ok
		})
	}

	w.writeSrv(func(r *ringbuf.Buffer) bool {
		ok := r.WriteOpcode(uint32(bridge.NonRtServerSetLatency))
		ok = r.WriteUint32(w.adapter.Latency()) && ok
		return ok
	})
}

// --- non-RT loop ---

func (w *Worker) nonRtLoop() {
	for !w.quit.Load() {
		progressed := false
		for w.cliRing.IsDataAvailableForReading() {
			op, ok := w.cliRing.ReadOpcode()
			if !ok {
				break
			}
			progressed = true
			if !w.handleNonRtOpcode(bridge.NonRtClientOpcode(op)) {
				w.sendError("protocol violation")
				w.cliRing.SkipPending()
				break
			}
		}
		if !progressed {
			time.Sleep(2 * time.Millisecond)
		}
	}
}

func (w *Worker) handleNonRtOpcode(op bridge.NonRtClientOpcode) bool {
	r := w.cliRing
	switch op {
	case bridge.NonRtClientNull:
		return true

	case bridge.NonRtClientPing:
		w.writeSrv(func(r *ringbuf.Buffer) bool {
			return r.WriteOpcode(uint32(bridge.NonRtServerPong))
		})
		return true

	case bridge.NonRtClientSetAudioPoolSize:
		if _, ok := r.ReadULong(); !ok {
			return false
		}
		w.rebindPool()
		w.sendReady()
		return true

	case bridge.NonRtClientSetBufferSize:
		size, ok := r.ReadUint32()
		if !ok || size == 0 {
			return false
		}
		w.bufferSize = size
		w.adapter.BufferSizeChanged(size)
		if w.counts.Total() > 0 {
			w.rebindPool()
		}
		return true

	case bridge.NonRtClientSetSampleRate:
		rate, ok := r.ReadDouble()
		if !ok || rate <= 0 {
			return false
		}
		w.sampleRate = rate
		w.adapter.SampleRateChanged(rate)
		return true

	case bridge.NonRtClientSetOffline, bridge.NonRtClientSetOnline:
		return true

	case bridge.NonRtClientSetOption:
		_, ok1 := r.ReadUint32()
		_, ok2 := r.ReadBool()
		return ok1 && ok2

	case bridge.NonRtClientSetCtrlChannel:
		_, ok := r.ReadShort()
		return ok

	case bridge.NonRtClientSetParameterValue,
		bridge.NonRtClientUiParameterChange:
		index, ok1 := r.ReadUint32()
		value, ok2 := r.ReadFloat()
		if !ok1 || !ok2 {
			return false
		}
		w.adapter.SetParameterValue(index, value)
		return true

	case bridge.NonRtClientSetParameterMidiChannel:
		_, ok1 := r.ReadUint32()
		_, ok2 := r.ReadByte()
		return ok1 && ok2

	case bridge.NonRtClientSetParameterMidiCC:
		_, ok1 := r.ReadUint32()
		_, ok2 := r.ReadShort()
		return ok1 && ok2

	case bridge.NonRtClientSetProgram, bridge.NonRtClientUiProgramChange:
		index, ok := r.ReadInt()
		if !ok {
			return false
		}
		w.adapter.SetProgram(index)
		return true

	case bridge.NonRtClientSetMidiProgram, bridge.NonRtClientUiMidiProgramChange:
		bank, ok1 := r.ReadUint32()
		program, ok2 := r.ReadUint32()
		if !ok1 || !ok2 {
			return false
		}
		w.adapter.SetMidiProgram(bank, program)
		return true

	case bridge.NonRtClientSetCustomData:
		dtype, ok1 := bridge.ReadString(r)
		key, ok2 := bridge.ReadString(r)
		value, ok3 := bridge.ReadString(r)
		if !ok1 || !ok2 || !ok3 {
			return false
		}
		w.adapter.SetCustomData(dtype, key, value)
		return true

	case bridge.NonRtClientSetChunkDataFile:
		path, ok := bridge.ReadString(r)
		if !ok {
			return false
		}
		w.loadChunkFile(path)
		return true

	case bridge.NonRtClientPrepareForSave:
		w.saveChunkIfAny()
		w.writeSrv(func(r *ringbuf.Buffer) bool {
			return r.WriteOpcode(uint32(bridge.NonRtServerSaved))
		})
		return true

	case bridge.NonRtClientActivate:
		if err := w.adapter.Activate(); err != nil {
			w.sendError(err.Error())
		}
		return true

	case bridge.NonRtClientDeactivate:
		_ = w.adapter.Deactivate()
		return true

	case bridge.NonRtClientShowUI:
		w.adapter.ShowUI(true)
		return true

	case bridge.NonRtClientHideUI:
		w.adapter.ShowUI(false)
		return true

	case bridge.NonRtClientUiNoteOn:
		ch, ok1 := r.ReadByte()
		note, ok2 := r.ReadByte()
		velo, ok3 := r.ReadByte()
		if !ok1 || !ok2 || !ok3 {
			return false
		}
		w.queueUiNote(ch, note, velo)
		return true

	case bridge.NonRtClientUiNoteOff:
		ch, ok1 := r.ReadByte()
		note, ok2 := r.ReadByte()
		if !ok1 || !ok2 {
			return false
		}
		w.queueUiNote(ch, note, 0)
		return true

	case bridge.NonRtClientQuit:
		w.quit.Store(true)
		w.semClient.Post()
		return true

	default:
		return false
	}
}

func (w *Worker) queueUiNote(ch, note, velo uint8) {
	status := byte(event.MidiStatusNoteOn)
	if velo == 0 {
		status = event.MidiStatusNoteOff
	}
	e := event.Event{
		Type:    event.TypeMIDI,
		Channel: ch,
		Midi:    event.Midi{Size: 3, Data: [4]byte{status | ch, note, velo}},
	}
	select {
	case w.uiNotes <- e:
	default:
	}
}

// --- RT loop ---

func (w *Worker) rtLoop() {
	for !w.quit.Load() {
		if !w.semServer.Wait(time.Second) {
			continue
		}
		w.serveRtOpcodes()
	}
}

func (w *Worker) serveRtOpcodes() {
	for w.rtRing.IsDataAvailableForReading() {
		op, ok := w.rtRing.ReadOpcode()
		if !ok {
			return
		}
		switch bridge.RtClientOpcode(op) {
		case bridge.RtClientNull:

		case bridge.RtClientSetAudioPool:
			if _, ok := w.rtRing.ReadULong(); !ok {
				return
			}
			w.rebindPool()

		case bridge.RtClientMidiEvent:
			time_, ok1 := w.rtRing.ReadUint32()
			port, ok2 := w.rtRing.ReadByte()
			size, ok3 := w.rtRing.ReadByte()
			if !ok1 || !ok2 || !ok3 || size == 0 || size > 4 {
				return
			}
			var data [4]byte
			if !w.rtRing.ReadCustomData(data[:size]) {
				return
			}
			w.eventIn.Append(event.Event{
				Time: time_, Type: event.TypeMIDI,
				Channel: data[0] & 0x0F,
				Midi:    event.Midi{Port: port, Size: size, Data: data},
			})

		case bridge.RtClientControlEventParameter,
			bridge.RtClientControlEventMidiBank,
			bridge.RtClientControlEventMidiProgram,
			bridge.RtClientControlEventAllSoundOff,
			bridge.RtClientControlEventAllNotesOff:
			if !w.readRtControlEvent(bridge.RtClientOpcode(op)) {
				return
			}

		case bridge.RtClientProcess:
			frames, ok := w.rtRing.ReadUint32()
			if !ok {
				return
			}
			w.processCycle(frames)
			w.semClient.Post()

		case bridge.RtClientQuit:
			w.quit.Store(true)
			w.semClient.Post()
			return

		default:
			return
		}
	}
}

func (w *Worker) readRtControlEvent(op bridge.RtClientOpcode) bool {
	time_, ok1 := w.rtRing.ReadUint32()
	channel, ok2 := w.rtRing.ReadByte()
	param, ok3 := w.rtRing.ReadUShort()
	if !ok1 || !ok2 || !ok3 {
		return false
	}
	e := event.Event{Time: time_, Channel: channel, Type: event.TypeControl}
	e.Ctrl.Param = param
	switch op {
	case bridge.RtClientControlEventParameter:
		value, ok := w.rtRing.ReadFloat()
		if !ok {
			return false
		}
		e.Ctrl.Subtype = event.CtrlParameter
		e.Ctrl.Value = value
	case bridge.RtClientControlEventMidiBank:
		e.Ctrl.Subtype = event.CtrlMidiBank
	case bridge.RtClientControlEventMidiProgram:
		e.Ctrl.Subtype = event.CtrlMidiProgram
	case bridge.RtClientControlEventAllSoundOff:
		e.Ctrl.Subtype = event.CtrlAllSoundOff
	case bridge.RtClientControlEventAllNotesOff:
		e.Ctrl.Subtype = event.CtrlAllNotesOff
	}
	w.eventIn.Append(e)
	return true
}

func (w *Worker) processCycle(frames uint32) {
	if frames > w.bufferSize {
		frames = w.bufferSize
	}
	for {
		select {
		case e := <-w.uiNotes:
			w.eventIn.Append(e)
			continue
		default:
		}
		break
	}
	w.eventOut.Clear()
	if err := w.adapter.Process(w.audioIn, w.audioOut, w.cvIn, w.cvOut,
		w.eventIn.Events(), &w.eventOut, frames); err != nil {
		for _, buf := range w.audioOut {
			clear(buf[:frames])
		}
		for _, buf := range w.cvOut {
			clear(buf[:frames])
		}
	}
	w.eventIn.Clear()
	w.flushMidiOut()
}

// flushMidiOut serializes the adapter's output events into the shared MIDI
// array: {time u32, port u8, size u8, data}, zero size ends.
func (w *Worker) flushMidiOut() {
	buf := w.midiOut
	i := 0
	var raw [6]byte
	for _, e := range w.eventOut.Events() {
		n := event.ToRawMidi(&e, raw[:])
		if n == 0 || n > 4 {
			continue
		}
		if i+6+n > len(buf) {
			break
		}
		buf[i] = byte(e.Time)
		buf[i+1] = byte(e.Time >> 8)
		buf[i+2] = byte(e.Time >> 16)
		buf[i+3] = byte(e.Time >> 24)
		buf[i+4] = e.Midi.Port
		buf[i+5] = byte(n)
		copy(buf[i+6:], raw[:n])
		i += 6 + n
	}
	if i+5 < len(buf) {
		buf[i+5] = 0
	}
}

// saveChunkIfAny persists chunk state to a temp file advertised through
// SetChunkDataFile.
func (w *Worker) saveChunkIfAny() {
	chunk, ok := w.adapter.Chunk()
	if !ok || len(chunk) == 0 {
		return
	}
	path, err := writeChunkTemp(chunk)
	if err != nil {
		w.logger.Warn("could not persist chunk", "err", err)
		return
	}
	w.writeSrv(func(r *ringbuf.Buffer) bool {
		ok := r.WriteOpcode(uint32(bridge.NonRtServerSetChunkDataFile))
		ok = bridge.WriteString(r, path) && ok
		return ok
	})
}

func (w *Worker) loadChunkFile(path string) {
	data, err := readChunkTemp(path)
	if err != nil {
		w.logger.Warn("could not read chunk file", "path", path, "err", err)
		return
	}
	w.adapter.SetChunk(data)
}
