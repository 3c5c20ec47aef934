// Package plugin models a loaded plugin inside the engine: identity, port
// topology, parameters, programs, custom data and per-plugin mix controls.
// Two concrete variants share the model: InProcess calls a format adapter
// directly, Bridged proxies every operation through the bridge transport.
package plugin

// Type identifies a plugin format.
type Type uint8

const (
	TypeNone Type = iota
	TypeInternal
	TypeLADSPA
	TypeDSSI
	TypeLV2
	TypeVST2
	TypeVST3
	TypeAU
	TypeGIG
	TypeSF2
	TypeSFZ
)

var typeNames = map[Type]string{
	TypeNone:     "none",
	TypeInternal: "internal",
	TypeLADSPA:   "ladspa",
	TypeDSSI:     "dssi",
	TypeLV2:      "lv2",
	TypeVST2:     "vst2",
	TypeVST3:     "vst3",
	TypeAU:       "au",
	TypeGIG:      "gig",
	TypeSF2:      "sf2",
	TypeSFZ:      "sfz",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

// TypeFromString parses a plugin type name.
func TypeFromString(s string) Type {
	for t, name := range typeNames {
		if name == s {
			return t
		}
	}
	return TypeNone
}

// Category is a coarse plugin classification for the UI.
type Category uint8

const (
	CategoryNone Category = iota
	CategorySynth
	CategoryDelay
	CategoryEQ
	CategoryFilter
	CategoryDistortion
	CategoryDynamics
	CategoryModulator
	CategoryUtility
	CategoryOther
)

// HintFlags is the plugin capability bitset.
type HintFlags uint32

const (
	HintIsBridge HintFlags = 1 << iota
	HintHasCustomUI
	HintNeedsUIMainThread
	HintCanDryWet
	HintCanVolume
	HintCanBalance
	HintNeedsFixedBuffers
	HintUsesChunks
	HintIsSynth
)

// ExtraHintFlags extends HintFlags with traits computed on reload.
type ExtraHintFlags uint32

const (
	ExtraHintHasMidiIn ExtraHintFlags = 1 << iota
	ExtraHintHasMidiOut
	ExtraHintCanRunRack
)

// OptionFlags are per-plugin behavior switches.
type OptionFlags uint32

const (
	OptionFixedBuffers OptionFlags = 1 << iota
	OptionForceStereo
	OptionMapProgramChanges
	OptionUseChunks
	OptionSendControlChanges
	OptionSendAllSoundOff
	OptionSendProgramChanges
	OptionSkipSendingNotes
)

// Info is the plugin's identity block.
type Info struct {
	Type      Type
	Category  Category
	UniqueID  int64
	Filename  string
	Name      string
	IconName  string
	Maker     string
	Copyright string
	Label     string
	RealName  string
}

// PortCounts is the port topology of one plugin.
type PortCounts struct {
	AudioIn  uint32
	AudioOut uint32
	CVIn     uint32
	CVOut    uint32
	EventIn  uint32
	EventOut uint32
}

// Total returns the audio+cv slot count, the audio pool sizing unit.
func (p PortCounts) Total() uint32 {
	return p.AudioIn + p.AudioOut + p.CVIn + p.CVOut
}

// CanRunRack reports whether the topology fits the fixed-stereo rack:
// both audio sides at most 2 and equal, or one side absent.
func (p PortCounts) CanRunRack() bool {
	if p.AudioIn > 2 || p.AudioOut > 2 {
		return false
	}
	return p.AudioIn == p.AudioOut || p.AudioIn == 0 || p.AudioOut == 0
}

// Port is one named port with its stable rindex.
type Port struct {
	Name   string
	RIndex uint32
}

// ParamType classifies a parameter.
type ParamType uint8

const (
	ParamInput ParamType = iota
	ParamOutput
	ParamSpecial
)

// ParamHints is the parameter behavior bitset.
type ParamHints uint32

const (
	ParamHintBoolean ParamHints = 1 << iota
	ParamHintInteger
	ParamHintLogarithmic
	ParamHintAutomable
	ParamHintUsesSampleRate
	ParamHintUsesScalePoints
	ParamHintEnabled
)

// ParamData is the static description of one parameter.
type ParamData struct {
	Type        ParamType
	Hints       ParamHints
	Index       int32
	RIndex      int32
	MidiChannel uint8 // 0..15
	MidiCC      int16 // -1..119
	Name        string
	Unit        string
}

// ParamRanges bounds one parameter's value space.
type ParamRanges struct {
	Def       float32
	Min       float32
	Max       float32
	Step      float32
	StepSmall float32
	StepLarge float32
}

// Program is one named preset.
type Program struct {
	Name string
}

// MidiProgram is one bank/program pair.
type MidiProgram struct {
	Bank    uint32
	Program uint32
	Name    string
}

// CustomDataTypeProperty marks custom-data entries surfaced to the UI.
const CustomDataTypeProperty = "Property"

// CustomData is one opaque key/value entry kept with the plugin state.
type CustomData struct {
	Type  string
	Key   string
	Value string
}

// Internal pseudo-parameter indices. Negative indices address the built-in
// mix controls through the same set-parameter surface real parameters use.
// Volume sits at -3: the UI protocol publishes volume as PARAMVAL_<id>:-3.
const (
	ParameterNull         int32 = -1
	ParameterActive       int32 = -2
	ParameterVolume       int32 = -3
	ParameterDryWet       int32 = -4
	ParameterBalanceLeft  int32 = -5
	ParameterBalanceRight int32 = -6
	ParameterPanning      int32 = -7
	ParameterCtrlChannel  int32 = -8
	ParameterMax          int32 = -9
)

// Mix control bounds.
const (
	VolumeMax = 1.27
)

// MIDI CC numbers addressing built-in controls on the ctrl channel.
const (
	midiCCBreath  = 0x02 // dry/wet
	midiCCVolume  = 0x07
	midiCCBalance = 0x08
	midiCCPan     = 0x0A
)
