package uipipe

import (
	"fmt"
)

// Emitters compose the engine→UI frame families. Every emitter takes the
// pipe lock, stages its frames and flushes.

// EmitEngineInfo sends the startup info block.
func (s *Server) EmitEngineInfo(oscURLs [2]string, maxPluginNumber uint32, bufferSize uint32, sampleRate float64) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage("osc-urls")
	s.pipe.WriteAndFixMessage(oscURLs[0])
	s.pipe.WriteAndFixMessage(oscURLs[1])
	s.pipe.WriteMessage("max-plugin-number")
	s.pipe.WriteMessage(fmt.Sprintf("%d", maxPluginNumber))
	s.pipe.WriteMessage("buffer-size")
	s.pipe.WriteMessage(fmt.Sprintf("%d", bufferSize))
	s.pipe.WriteMessage("sample-rate")
	s.pipe.WriteMessage(FormatFloat(sampleRate))
	s.pipe.FlushMessages()
}

// EmitOption dumps one engine option with its forced flag.
func (s *Server) EmitOption(index int, forced bool, value string) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage(fmt.Sprintf("ENGINE_OPTION_%d", index))
	s.pipe.WriteMessage(FormatBool(forced))
	s.pipe.WriteAndFixMessage(value)
	s.pipe.FlushMessages()
}

// EmitRuntimeInfo is the per-tick engine load line.
func (s *Server) EmitRuntimeInfo(load float64, xruns uint64) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage("runtime-info")
	s.pipe.WriteMessage(FormatFloat(load))
	s.pipe.WriteMessage(fmt.Sprintf("%d", xruns))
	s.pipe.FlushMessages()
}

// EmitTransport is the per-tick transport line.
func (s *Server) EmitTransport(playing bool, frame uint64, bar, beat int32, tick float64, bpm float64) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage("transport")
	s.pipe.WriteMessage(FormatBool(playing))
	s.pipe.WriteMessage(fmt.Sprintf("%d:%d:%d:%s", frame, bar, beat, FormatFloat(tick)))
	s.pipe.WriteMessage(FormatFloat(bpm))
	s.pipe.FlushMessages()
}

// EmitPeaks sends one plugin's four peak followers.
func (s *Server) EmitPeaks(id uint32, peaks [4]float32) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage(fmt.Sprintf("PEAKS_%d", id))
	s.pipe.WriteMessage(fmt.Sprintf("%s:%s:%s:%s",
		FormatFloat(float64(peaks[0])), FormatFloat(float64(peaks[1])),
		FormatFloat(float64(peaks[2])), FormatFloat(float64(peaks[3]))))
	s.pipe.FlushMessages()
}

// EmitParamVal publishes one parameter value; internal pseudo-parameters
// ride the same frame with their negative index.
func (s *Server) EmitParamVal(id uint32, index int32, value float32) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage(fmt.Sprintf("PARAMVAL_%d:%d", id, index))
	s.pipe.WriteMessage(FormatFloat(float64(value)))
	s.pipe.FlushMessages()
}

// PluginInfoFrame is the PLUGIN_INFO block payload.
type PluginInfoFrame struct {
	Type      string
	Category  uint32
	Hints     uint32
	UniqueID  int64
	Filename  string
	Name      string
	IconName  string
	Maker     string
	Copyright string
	Label     string
	RealName  string
}

// EmitPluginInfo sends the identity block of one plugin.
func (s *Server) EmitPluginInfo(id uint32, info *PluginInfoFrame) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage(fmt.Sprintf("PLUGIN_INFO_%d", id))
	s.pipe.WriteAndFixMessage(info.Type)
	s.pipe.WriteMessage(fmt.Sprintf("%d:%d:%d", info.Category, info.Hints, info.UniqueID))
	s.pipe.WriteAndFixMessage(info.Filename)
	s.pipe.WriteAndFixMessage(info.Name)
	s.pipe.WriteAndFixMessage(info.IconName)
	s.pipe.WriteAndFixMessage(info.Maker)
	s.pipe.WriteAndFixMessage(info.Copyright)
	s.pipe.WriteAndFixMessage(info.Label)
	s.pipe.WriteAndFixMessage(info.RealName)
	s.pipe.FlushMessages()
}

// EmitParameterCount sends a plugin's parameter count.
func (s *Server) EmitParameterCount(id, count uint32) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage(fmt.Sprintf("PARAMETER_COUNT_%d", id))
	s.pipe.WriteMessage(fmt.Sprintf("%d", count))
	s.pipe.FlushMessages()
}

// EmitParameterData sends one parameter's static description.
func (s *Server) EmitParameterData(id uint32, index int32, ptype, hints uint32, midiChannel uint8, midiCC int16, name, unit string) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage(fmt.Sprintf("PARAMETER_DATA_%d:%d", id, index))
	s.pipe.WriteMessage(fmt.Sprintf("%d:%d:%d:%d", ptype, hints, midiChannel, midiCC))
	s.pipe.WriteAndFixMessage(name)
	s.pipe.WriteAndFixMessage(unit)
	s.pipe.FlushMessages()
}

// EmitParameterRanges sends one parameter's value bounds.
func (s *Server) EmitParameterRanges(id uint32, index int32, def, min, max, step, stepSmall, stepLarge float32) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage(fmt.Sprintf("PARAMETER_RANGES_%d:%d", id, index))
	s.pipe.WriteMessage(fmt.Sprintf("%s:%s:%s:%s:%s:%s",
		FormatFloat(float64(def)), FormatFloat(float64(min)), FormatFloat(float64(max)),
		FormatFloat(float64(step)), FormatFloat(float64(stepSmall)), FormatFloat(float64(stepLarge))))
	s.pipe.FlushMessages()
}

// EmitProgramCount sends the preset list size.
func (s *Server) EmitProgramCount(id, count uint32) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage(fmt.Sprintf("PROGRAM_COUNT_%d", id))
	s.pipe.WriteMessage(fmt.Sprintf("%d", count))
	s.pipe.FlushMessages()
}

// EmitProgramName sends one preset name.
func (s *Server) EmitProgramName(id, index uint32, name string) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage(fmt.Sprintf("PROGRAM_NAME_%d:%d", id, index))
	s.pipe.WriteAndFixMessage(name)
	s.pipe.FlushMessages()
}

// EmitMidiProgramCount sends the midi program list size.
func (s *Server) EmitMidiProgramCount(id, count uint32) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage(fmt.Sprintf("MIDI_PROGRAM_COUNT_%d", id))
	s.pipe.WriteMessage(fmt.Sprintf("%d", count))
	s.pipe.FlushMessages()
}

// EmitMidiProgramData sends one bank/program pair.
func (s *Server) EmitMidiProgramData(id, index, bank, program uint32, name string) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage(fmt.Sprintf("MIDI_PROGRAM_DATA_%d:%d", id, index))
	s.pipe.WriteMessage(fmt.Sprintf("%d:%d", bank, program))
	s.pipe.WriteAndFixMessage(name)
	s.pipe.FlushMessages()
}

// EmitCustomData sends one property entry.
func (s *Server) EmitCustomData(id uint32, dtype, key, value string) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage(fmt.Sprintf("CUSTOM_DATA_%d", id))
	s.pipe.WriteAndFixMessage(dtype)
	s.pipe.WriteAndFixMessage(key)
	s.pipe.WriteAndFixMessage(value)
	s.pipe.FlushMessages()
}

// EmitCallback forwards a generic engine callback.
func (s *Server) EmitCallback(opcode int32, pluginID uint32, v1, v2, v3 int32, vf float32, value string) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage(fmt.Sprintf("ENGINE_CALLBACK_%d", opcode))
	s.pipe.WriteMessage(fmt.Sprintf("%d", pluginID))
	s.pipe.WriteMessage(fmt.Sprintf("%d", v1))
	s.pipe.WriteMessage(fmt.Sprintf("%d", v2))
	s.pipe.WriteMessage(fmt.Sprintf("%d", v3))
	s.pipe.WriteMessage(FormatFloat(float64(vf)))
	s.pipe.WriteAndFixMessage(value)
	s.pipe.FlushMessages()
}

// EmitPatchbayNode announces one patchbay group and its ports.
func (s *Server) EmitPatchbayNode(group uint32, name string, ports []string) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage(fmt.Sprintf("PATCHBAY_CLIENT_%d", group))
	s.pipe.WriteAndFixMessage(name)
	s.pipe.WriteMessage(fmt.Sprintf("%d", len(ports)))
	for _, p := range ports {
		s.pipe.WriteAndFixMessage(p)
	}
	s.pipe.FlushMessages()
}

// EmitPatchbayConnection announces one edge.
func (s *Server) EmitPatchbayConnection(connID, srcGroup, srcPort, dstGroup, dstPort uint32) {
	s.pipe.Lock()
	defer s.pipe.Unlock()
	s.pipe.WriteMessage(fmt.Sprintf("PATCHBAY_CONNECTION_%d", connID))
	s.pipe.WriteMessage(fmt.Sprintf("%d:%d:%d:%d", srcGroup, srcPort, dstGroup, dstPort))
	s.pipe.FlushMessages()
}
