// Package bridge implements the shared-memory transport between the engine
// and an out-of-process plugin worker: four regions, two semaphores, and
// the opcode protocol that crosses them.
//
// The engine side is Transport; the worker side lives in the worker
// subpackage. Non-RT opcodes are committed under a mutex and consumed at
// the worker's leisure; RT opcodes are posted inside the audio cycle and
// answered through the client semaphore.
package bridge

// NonRtClientOpcode flows engine -> worker outside the audio cycle.
type NonRtClientOpcode uint32

const (
	NonRtClientNull NonRtClientOpcode = iota
	NonRtClientSetAudioPoolSize
	NonRtClientSetBufferSize
	NonRtClientSetSampleRate
	NonRtClientSetOffline
	NonRtClientSetOnline
	NonRtClientSetOption
	NonRtClientSetCtrlChannel
	NonRtClientSetParameterValue
	NonRtClientSetParameterMidiChannel
	NonRtClientSetParameterMidiCC
	NonRtClientSetProgram
	NonRtClientSetMidiProgram
	NonRtClientSetCustomData
	NonRtClientSetChunkDataFile
	NonRtClientPrepareForSave
	NonRtClientActivate
	NonRtClientDeactivate
	NonRtClientShowUI
	NonRtClientHideUI
	NonRtClientPing
	NonRtClientUiParameterChange
	NonRtClientUiProgramChange
	NonRtClientUiMidiProgramChange
	NonRtClientUiNoteOn
	NonRtClientUiNoteOff
	NonRtClientQuit
)

// RtClientOpcode flows engine -> worker inside the audio cycle.
type RtClientOpcode uint32

const (
	RtClientNull RtClientOpcode = iota
	RtClientSetAudioPool
	RtClientMidiEvent
	RtClientControlEventParameter
	RtClientControlEventMidiBank
	RtClientControlEventMidiProgram
	RtClientControlEventAllSoundOff
	RtClientControlEventAllNotesOff
	RtClientProcess
	RtClientQuit
)

// NonRtServerOpcode flows worker -> engine outside the audio cycle.
type NonRtServerOpcode uint32

const (
	NonRtServerNull NonRtServerOpcode = iota
	NonRtServerPong
	NonRtServerPluginInfo1
	NonRtServerPluginInfo2
	NonRtServerAudioCount
	NonRtServerMidiCount
	NonRtServerParameterCount
	NonRtServerProgramCount
	NonRtServerMidiProgramCount
	NonRtServerParameterData1
	NonRtServerParameterData2
	NonRtServerParameterRanges1
	NonRtServerParameterRanges2
	NonRtServerParameterValue
	NonRtServerDefaultValue
	NonRtServerCurrentProgram
	NonRtServerCurrentMidiProgram
	NonRtServerProgramName
	NonRtServerMidiProgramData
	NonRtServerSetCustomData
	NonRtServerSetChunkDataFile
	NonRtServerSetLatency
	NonRtServerUiClosed
	NonRtServerReady
	NonRtServerSaved
	NonRtServerError
)
