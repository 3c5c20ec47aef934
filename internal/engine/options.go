package engine

import (
	"strconv"
	"strings"

	"github.com/rackbay/rackbay/internal/conf"
	"github.com/rackbay/rackbay/internal/plugin"
)

// Mode selects the graph implementation. Immutable after init.
type Mode uint8

const (
	ModeRack Mode = iota
	ModePatchbay
)

func (m Mode) String() string {
	if m == ModePatchbay {
		return "patchbay"
	}
	return "rack"
}

// TransportMode selects who owns the transport clock. The embedded build is
// host-driven and freezes this at init.
type TransportMode uint8

const (
	TransportHost TransportMode = iota
	TransportInternal
)

// Options is the per-instance option snapshot taken at init.
type Options struct {
	ProcessMode   Mode
	TransportMode TransportMode

	ForceStereo         bool
	PreferPluginBridges bool
	PreferUIBridges     bool
	UIsAlwaysOnTop      bool
	MaxParameters       uint32
	UIBridgesTimeout    uint32 // milliseconds
	PreventBadBehaviour bool
	FrontendWinID       uint64

	// PluginPaths maps each format to its search path list.
	PluginPaths map[plugin.Type]string

	BinaryDir   string
	ResourceDir string
}

// OptionsFromSettings snapshots the viper-backed settings into the frozen
// engine option set.
func OptionsFromSettings(s *conf.Settings) Options {
	mode := ModeRack
	if s.Engine.ProcessMode == conf.ProcessModePatchbay {
		mode = ModePatchbay
	}
	return Options{
		ProcessMode:         mode,
		ForceStereo:         s.Engine.ForceStereo,
		PreferPluginBridges: s.Engine.PreferPluginBridges,
		PreferUIBridges:     s.Engine.PreferUIBridges,
		UIsAlwaysOnTop:      s.Engine.UIsAlwaysOnTop,
		MaxParameters:       s.Engine.MaxParameters,
		UIBridgesTimeout:    s.Engine.UIBridgesTimeout,
		PreventBadBehaviour: s.Engine.PreventBadBehaviour,
		FrontendWinID:       s.Engine.FrontendWinID,
		PluginPaths: map[plugin.Type]string{
			plugin.TypeLADSPA: s.Paths.LADSPA,
			plugin.TypeDSSI:   s.Paths.DSSI,
			plugin.TypeLV2:    s.Paths.LV2,
			plugin.TypeVST2:   s.Paths.VST2,
			plugin.TypeVST3:   s.Paths.VST3,
			plugin.TypeAU:     s.Paths.AU,
			plugin.TypeGIG:    s.Paths.GIG,
			plugin.TypeSF2:    s.Paths.SF2,
			plugin.TypeSFZ:    s.Paths.SFZ,
		},
		BinaryDir:   s.Paths.BinaryDir,
		ResourceDir: s.Paths.ResourceDir,
	}
}

// EnvMirror renders every option as ENGINE_OPTION_* environment variables
// for bridge workers.
func (o *Options) EnvMirror() map[string]string {
	env := map[string]string{
		"ENGINE_OPTION_PROCESS_MODE":          o.ProcessMode.String(),
		"ENGINE_OPTION_FORCE_STEREO":          strconv.FormatBool(o.ForceStereo),
		"ENGINE_OPTION_PREFER_PLUGIN_BRIDGES": strconv.FormatBool(o.PreferPluginBridges),
		"ENGINE_OPTION_PREFER_UI_BRIDGES":     strconv.FormatBool(o.PreferUIBridges),
		"ENGINE_OPTION_UIS_ALWAYS_ON_TOP":     strconv.FormatBool(o.UIsAlwaysOnTop),
		"ENGINE_OPTION_MAX_PARAMETERS":        strconv.FormatUint(uint64(o.MaxParameters), 10),
		"ENGINE_OPTION_UI_BRIDGES_TIMEOUT":    strconv.FormatUint(uint64(o.UIBridgesTimeout), 10),
		"ENGINE_OPTION_PREVENT_BAD_BEHAVIOUR": strconv.FormatBool(o.PreventBadBehaviour),
		"ENGINE_OPTION_FRONTEND_WIN_ID":       strconv.FormatUint(o.FrontendWinID, 10),
		"ENGINE_OPTION_PATH_BINARIES":         o.BinaryDir,
		"ENGINE_OPTION_PATH_RESOURCES":        o.ResourceDir,
	}
	for t, path := range o.PluginPaths {
		env["ENGINE_OPTION_PLUGIN_PATH_"+strings.ToUpper(t.String())] = path
	}
	return env
}
