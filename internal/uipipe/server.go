package uipipe

import (
	"strconv"
	"time"

	"github.com/rackbay/rackbay/internal/errors"
)

// Handler is the engine surface the UI commands drive. Every method runs on
// the idle thread.
type Handler interface {
	SetEngineOption(key, value string) error
	ClearEngineXruns()
	CancelEngineAction()

	LoadFile(path string) error
	LoadProject(path string) error
	SaveProject(path string) error
	ClearProjectFilename()

	PatchbayConnect(srcGroup, srcPort, dstGroup, dstPort uint32) error
	PatchbayDisconnect(connID uint32) error
	PatchbayRefresh() error

	TransportPlay()
	TransportPause()
	TransportBPM(bpm float64)
	TransportRelocate(frame uint64)

	AddPlugin(ptype, filename, label string, uniqueID int64) error
	RemovePlugin(id uint32) error
	RemoveAllPlugins()
	RenamePlugin(id uint32, name string) error
	ClonePlugin(id uint32) error
	ReplacePlugin(id uint32, ptype, filename, label string, uniqueID int64) error
	SwitchPlugins(idA, idB uint32) error

	LoadPluginState(id uint32, path string) error
	SavePluginState(id uint32, path string) error

	SetOption(id uint32, option uint32, on bool) error
	SetActive(id uint32, on bool) error
	SetDryWet(id uint32, value float32) error
	SetVolume(id uint32, value float32) error
	SetBalanceLeft(id uint32, value float32) error
	SetBalanceRight(id uint32, value float32) error
	SetPanning(id uint32, value float32) error
	SetCtrlChannel(id uint32, channel int8) error
	SetParameterValue(id uint32, index int32, value float32) error
	SetParameterMidiChannel(id uint32, index uint32, channel uint8) error
	SetParameterMidiCC(id uint32, index uint32, cc int16) error
	SetParameterTouch(id uint32, index int32, touch bool) error
	SetProgram(id uint32, index int32) error
	SetMidiProgram(id uint32, index int32) error
	SetCustomData(id uint32, dtype, key, value string) error
	SetChunkData(id uint32, chunk string) error

	PrepareForSave(id uint32) error
	ResetParameters(id uint32) error
	RandomizeParameters(id uint32) error
	SendMidiNote(id uint32, channel, note, velocity uint8) error
	ShowCustomUI(id uint32, show bool) error
}

// Server dispatches inbound UI commands against a handler and answers
// failures with the error frame pattern.
type Server struct {
	pipe *Pipe
	h    Handler
}

// NewServer binds a pipe to a command handler.
func NewServer(pipe *Pipe, h Handler) *Server {
	return &Server{pipe: pipe, h: h}
}

// Pipe returns the underlying pipe for emitters.
func (s *Server) Pipe() *Pipe { return s.pipe }

// ProcessCommands drains up to max inbound commands. Returns how many ran.
func (s *Server) ProcessCommands(max int) int {
	n := 0
	for n < max {
		line, ok := s.pipe.ReadLine()
		if !ok {
			break
		}
		if line == "" {
			continue
		}
		if err := s.dispatch(line); err != nil {
			s.emitError(err.Error())
		}
		n++
	}
	return n
}

func (s *Server) emitError(text string) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage("error")
	s.pipe.WriteAndFixMessage(text)
	s.pipe.FlushMessages()
}

// nextLine waits briefly for the next typed parameter line; commands are
// framed as a name line followed by parameter lines.
func (s *Server) nextLine() (string, error) {
	// Buffered lines win over the closed signal: a finished peer may have
	// left complete commands behind.
	select {
	case line := <-s.pipe.lines:
		return line, nil
	default:
	}
	deadline := time.After(200 * time.Millisecond)
	select {
	case line := <-s.pipe.lines:
		return line, nil
	case <-s.pipe.closed:
		select {
		case line := <-s.pipe.lines:
			return line, nil
		default:
		}
		return "", errors.Newf("ui pipe closed mid-command").
			Component("uipipe").Category(errors.CategoryUIPipe).Build()
	case <-deadline:
		return "", errors.Newf("truncated ui command").
			Component("uipipe").Category(errors.CategoryProtocol).Build()
	}
}

func (s *Server) nextString() (string, error) {
	line, err := s.nextLine()
	if err != nil {
		return "", err
	}
	if line == NullValue {
		return "", nil
	}
	return line, nil
}

func (s *Server) nextUint() (uint32, error) {
	line, err := s.nextLine()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(line, 10, 32)
	if err != nil {
		return 0, badParam(line, err)
	}
	return uint32(v), nil
}

func (s *Server) nextInt() (int32, error) {
	line, err := s.nextLine()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(line, 10, 32)
	if err != nil {
		return 0, badParam(line, err)
	}
	return int32(v), nil
}

func (s *Server) nextLong() (int64, error) {
	line, err := s.nextLine()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return 0, badParam(line, err)
	}
	return v, nil
}

func (s *Server) nextULong() (uint64, error) {
	line, err := s.nextLine()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(line, 10, 64)
	if err != nil {
		return 0, badParam(line, err)
	}
	return v, nil
}

func (s *Server) nextFloat() (float64, error) {
	line, err := s.nextLine()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, badParam(line, err)
	}
	return v, nil
}

func (s *Server) nextBool() (bool, error) {
	line, err := s.nextLine()
	if err != nil {
		return false, err
	}
	switch line {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, badParam(line, nil)
}

func badParam(line string, err error) error {
	b := errors.Newf("bad ui parameter %q", line).
		Component("uipipe").
		Category(errors.CategoryProtocol)
	if err != nil {
		b = b.Context("parse_error", err.Error())
	}
	return b.Build()
}

//nolint:gocyclo // one arm per UI command; splitting would only hide the protocol
func (s *Server) dispatch(name string) error {
	switch name {
	case "set_engine_option":
		key, err := s.nextString()
		if err != nil {
			return err
		}
		value, err := s.nextString()
		if err != nil {
			return err
		}
		return s.h.SetEngineOption(key, value)

	case "clear_engine_xruns":
		s.h.ClearEngineXruns()
		return nil

	case "cancel_engine_action":
		s.h.CancelEngineAction()
		return nil

	case "load_file":
		path, err := s.nextString()
		if err != nil {
			return err
		}
		return s.h.LoadFile(path)

	case "load_project":
		path, err := s.nextString()
		if err != nil {
			return err
		}
		return s.h.LoadProject(path)

	case "save_project":
		path, err := s.nextString()
		if err != nil {
			return err
		}
		return s.h.SaveProject(path)

	case "clear_project_filename":
		s.h.ClearProjectFilename()
		return nil

	case "patchbay_connect":
		srcG, err := s.nextUint()
		if err != nil {
			return err
		}
		srcP, err := s.nextUint()
		if err != nil {
			return err
		}
		dstG, err := s.nextUint()
		if err != nil {
			return err
		}
		dstP, err := s.nextUint()
		if err != nil {
			return err
		}
		return s.h.PatchbayConnect(srcG, srcP, dstG, dstP)

	case "patchbay_disconnect":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		return s.h.PatchbayDisconnect(id)

	case "patchbay_refresh":
		return s.h.PatchbayRefresh()

	case "transport_play":
		s.h.TransportPlay()
		return nil

	case "transport_pause":
		s.h.TransportPause()
		return nil

	case "transport_bpm":
		bpm, err := s.nextFloat()
		if err != nil {
			return err
		}
		s.h.TransportBPM(bpm)
		return nil

	case "transport_relocate":
		frame, err := s.nextULong()
		if err != nil {
			return err
		}
		s.h.TransportRelocate(frame)
		return nil

	case "add_plugin":
		ptype, err := s.nextString()
		if err != nil {
			return err
		}
		filename, err := s.nextString()
		if err != nil {
			return err
		}
		label, err := s.nextString()
		if err != nil {
			return err
		}
		uniqueID, err := s.nextLong()
		if err != nil {
			return err
		}
		return s.h.AddPlugin(ptype, filename, label, uniqueID)

	case "remove_plugin":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		return s.h.RemovePlugin(id)

	case "remove_all_plugins":
		s.h.RemoveAllPlugins()
		return nil

	case "rename_plugin":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		name, err := s.nextString()
		if err != nil {
			return err
		}
		return s.h.RenamePlugin(id, name)

	case "clone_plugin":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		return s.h.ClonePlugin(id)

	case "replace_plugin":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		ptype, err := s.nextString()
		if err != nil {
			return err
		}
		filename, err := s.nextString()
		if err != nil {
			return err
		}
		label, err := s.nextString()
		if err != nil {
			return err
		}
		uniqueID, err := s.nextLong()
		if err != nil {
			return err
		}
		return s.h.ReplacePlugin(id, ptype, filename, label, uniqueID)

	case "switch_plugins":
		idA, err := s.nextUint()
		if err != nil {
			return err
		}
		idB, err := s.nextUint()
		if err != nil {
			return err
		}
		return s.h.SwitchPlugins(idA, idB)

	case "load_plugin_state":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		path, err := s.nextString()
		if err != nil {
			return err
		}
		return s.h.LoadPluginState(id, path)

	case "save_plugin_state":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		path, err := s.nextString()
		if err != nil {
			return err
		}
		return s.h.SavePluginState(id, path)

	case "set_option":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		option, err := s.nextUint()
		if err != nil {
			return err
		}
		on, err := s.nextBool()
		if err != nil {
			return err
		}
		return s.h.SetOption(id, option, on)

	case "set_active":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		on, err := s.nextBool()
		if err != nil {
			return err
		}
		return s.h.SetActive(id, on)

	case "set_drywet":
		return s.mixCommand(s.h.SetDryWet)

	case "set_volume":
		return s.mixCommand(s.h.SetVolume)

	case "set_balance_left":
		return s.mixCommand(s.h.SetBalanceLeft)

	case "set_balance_right":
		return s.mixCommand(s.h.SetBalanceRight)

	case "set_panning":
		return s.mixCommand(s.h.SetPanning)

	case "set_ctrl_channel":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		ch, err := s.nextInt()
		if err != nil {
			return err
		}
		return s.h.SetCtrlChannel(id, int8(ch))

	case "set_parameter_value":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		index, err := s.nextInt()
		if err != nil {
			return err
		}
		value, err := s.nextFloat()
		if err != nil {
			return err
		}
		return s.h.SetParameterValue(id, index, float32(value))

	case "set_parameter_midi_channel":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		index, err := s.nextUint()
		if err != nil {
			return err
		}
		ch, err := s.nextUint()
		if err != nil {
			return err
		}
		return s.h.SetParameterMidiChannel(id, index, uint8(ch))

	case "set_parameter_midi_cc":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		index, err := s.nextUint()
		if err != nil {
			return err
		}
		cc, err := s.nextInt()
		if err != nil {
			return err
		}
		return s.h.SetParameterMidiCC(id, index, int16(cc))

	case "set_parameter_touch":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		index, err := s.nextInt()
		if err != nil {
			return err
		}
		touch, err := s.nextBool()
		if err != nil {
			return err
		}
		return s.h.SetParameterTouch(id, index, touch)

	case "set_program":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		index, err := s.nextInt()
		if err != nil {
			return err
		}
		return s.h.SetProgram(id, index)

	case "set_midi_program":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		index, err := s.nextInt()
		if err != nil {
			return err
		}
		return s.h.SetMidiProgram(id, index)

	case "set_custom_data":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		dtype, err := s.nextString()
		if err != nil {
			return err
		}
		key, err := s.nextString()
		if err != nil {
			return err
		}
		value, err := s.nextString()
		if err != nil {
			return err
		}
		return s.h.SetCustomData(id, dtype, key, value)

	case "set_chunk_data":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		chunk, err := s.nextString()
		if err != nil {
			return err
		}
		return s.h.SetChunkData(id, chunk)

	case "prepare_for_save":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		return s.h.PrepareForSave(id)

	case "reset_parameters":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		return s.h.ResetParameters(id)

	case "randomize_parameters":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		return s.h.RandomizeParameters(id)

	case "send_midi_note":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		ch, err := s.nextUint()
		if err != nil {
			return err
		}
		note, err := s.nextUint()
		if err != nil {
			return err
		}
		velo, err := s.nextUint()
		if err != nil {
			return err
		}
		return s.h.SendMidiNote(id, uint8(ch), uint8(note), uint8(velo))

	case "show_custom_ui":
		id, err := s.nextUint()
		if err != nil {
			return err
		}
		show, err := s.nextBool()
		if err != nil {
			return err
		}
		return s.h.ShowCustomUI(id, show)

	default:
		return errors.Newf("unknown ui command %q", name).
			Component("uipipe").
			Category(errors.CategoryProtocol).
			Build()
	}
}

func (s *Server) mixCommand(set func(id uint32, value float32) error) error {
	id, err := s.nextUint()
	if err != nil {
		return err
	}
	value, err := s.nextFloat()
	if err != nil {
		return err
	}
	return set(id, float32(value))
}
