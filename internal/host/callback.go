package host

// CallbackOpcode is the flat opcode space of engine-to-frontend callbacks.
// The UI pipe serializes these as ENGINE_CALLBACK_<opcode> frames; internal
// code passes them through the Callback function type below.
type CallbackOpcode int32

const (
	CallbackDebug CallbackOpcode = iota
	CallbackPluginAdded
	CallbackPluginRemoved
	CallbackPluginRenamed
	CallbackPluginUnavailable
	CallbackParameterValueChanged
	CallbackParameterDefaultChanged
	CallbackParameterMidiChannelChanged
	CallbackParameterMidiCCChanged
	CallbackProgramChanged
	CallbackMidiProgramChanged
	CallbackOptionChanged
	CallbackUIStateChanged
	CallbackNoteOn
	CallbackNoteOff
	CallbackUpdate
	CallbackReloadInfo
	CallbackReloadParameters
	CallbackReloadPrograms
	CallbackReloadAll
	CallbackPatchbayClientAdded
	CallbackPatchbayClientRemoved
	CallbackPatchbayClientRenamed
	CallbackPatchbayPortAdded
	CallbackPatchbayPortRemoved
	CallbackPatchbayConnectionAdded
	CallbackPatchbayConnectionRemoved
	CallbackEngineStarted
	CallbackEngineStopped
	CallbackProcessModeChanged
	CallbackTransportModeChanged
	CallbackBufferSizeChanged
	CallbackSampleRateChanged
	CallbackCancelableActionChanged
	CallbackProjectLoadFinished
	CallbackError
	CallbackQuit
)

// Callback delivers one engine event to the frontend. pluginID is ^uint32(0)
// for engine-level events.
type Callback func(op CallbackOpcode, pluginID uint32, v1, v2, v3 int32, vf float32, s string)

// InvalidPluginID marks engine-level callbacks.
const InvalidPluginID = ^uint32(0)
