package conf

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// setDefaultConfig initializes viper with default values for all settings.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "rackbay")
	viper.SetDefault("main.logdir", "logs")

	viper.SetDefault("engine.processmode", ProcessModeRack)
	viper.SetDefault("engine.buffersize", 512)
	viper.SetDefault("engine.samplerate", 48000.0)
	viper.SetDefault("engine.forcestereo", false)
	viper.SetDefault("engine.preferpluginbridges", false)
	viper.SetDefault("engine.preferuibridges", true)
	viper.SetDefault("engine.uisalwaysontop", false)
	viper.SetDefault("engine.maxparameters", 200)
	viper.SetDefault("engine.uibridgestimeout", 4000)
	viper.SetDefault("engine.preventbadbehaviour", false)
	viper.SetDefault("engine.frontendwinid", 0)

	home, _ := os.UserHomeDir()
	viper.SetDefault("paths.ladspa", defaultPath(home, ".ladspa", "/usr/lib/ladspa"))
	viper.SetDefault("paths.dssi", defaultPath(home, ".dssi", "/usr/lib/dssi"))
	viper.SetDefault("paths.lv2", defaultPath(home, ".lv2", "/usr/lib/lv2"))
	viper.SetDefault("paths.vst2", defaultPath(home, ".vst", "/usr/lib/vst"))
	viper.SetDefault("paths.vst3", defaultPath(home, ".vst3", "/usr/lib/vst3"))
	viper.SetDefault("paths.au", "")
	viper.SetDefault("paths.gig", filepath.Join(home, ".sounds", "gig"))
	viper.SetDefault("paths.sf2", filepath.Join(home, ".sounds", "sf2"))
	viper.SetDefault("paths.sfz", filepath.Join(home, ".sounds", "sfz"))
	viper.SetDefault("paths.binarydir", "")
	viper.SetDefault("paths.resourcedir", "")

	viper.SetDefault("scan.cachettlminutes", 30)
	viper.SetDefault("scan.cachefile", "")
	viper.SetDefault("scan.watch", false)

	viper.SetDefault("standalone.device", "")
	viper.SetDefault("standalone.channels", 2)
	viper.SetDefault("standalone.metricsaddr", "")
}

func defaultPath(home, userDir, systemDir string) string {
	if home == "" {
		return systemDir
	}
	return filepath.Join(home, userDir) + string(os.PathListSeparator) + systemDir
}
