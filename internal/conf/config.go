// Package conf handles the host configuration: engine options, plugin search
// paths and standalone-mode settings, loaded through viper with environment
// override. The embedded build snapshots these into engine options at init;
// afterwards the snapshot is immutable for the engine instance's lifetime.
package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// ProcessModeName values accepted by the settings file.
const (
	ProcessModeRack     = "rack"
	ProcessModePatchbay = "patchbay"
)

// Settings mirrors the engine options plus host-side concerns.
type Settings struct {
	Debug bool // true to enable debug logging

	Main struct {
		Name   string // instance name, shown to the UI
		LogDir string // directory for log files
	}

	Engine struct {
		ProcessMode         string // "rack" or "patchbay"
		BufferSize          uint32 // preferred buffer size in frames
		SampleRate          float64
		ForceStereo         bool // rack only: coerce mono plugins to a stereo pair
		PreferPluginBridges bool
		PreferUIBridges     bool
		UIsAlwaysOnTop      bool
		MaxParameters       uint32 // upper bound on parameters exposed per plugin
		UIBridgesTimeout    uint32 // milliseconds before a UI helper is considered dead
		PreventBadBehaviour bool
		FrontendWinID       uint64
	}

	Paths struct {
		LADSPA string
		DSSI   string
		LV2    string
		VST2   string
		VST3   string
		AU     string
		GIG    string
		SF2    string
		SFZ    string

		BinaryDir   string // bridge and UI helper binaries
		ResourceDir string
	}

	Scan struct {
		CacheTTLMinutes int    // in-memory descriptor cache lifetime
		CacheFile       string // on-disk descriptor cache (yaml)
		Watch           bool   // watch search paths for changes
	}

	Standalone struct {
		Device      string // audio device name, empty for default
		Channels    int
		MetricsAddr string // prometheus listen address, empty to disable
	}
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration, applying defaults, file values and
// environment overrides in that order.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	setDefaultConfig()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	settingsInstance = settings
	return settingsInstance, nil
}

func initViper() error {
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")

	viper.SetEnvPrefix("RACKBAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	configPaths := configPaths()
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// No config file is fine; defaults plus environment apply.
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

func configPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "rackbay"))
	}
	return paths
}

// Setting returns the current settings instance, loading it if necessary.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
