//go:build linux

package engine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rackbay/rackbay/internal/bridge"
	"github.com/rackbay/rackbay/internal/logging"
	"github.com/rackbay/rackbay/internal/plugin"
)

// bridgeBinaryName is the worker executable next to the host binary or in
// the configured binary dir.
const bridgeBinaryName = "rackbay-bridge"

// DefaultBridgeLauncher spawns the stock worker binary for a plugin. Wire
// it with SetBridgeLauncher; the embedded build may substitute its own.
func DefaultBridgeLauncher(e *Engine, id uint32, ptype plugin.Type, filename, label string, uniqueID int64) (plugin.Handle, error) {
	binDir := e.opts.BinaryDir
	if binDir == "" {
		if exe, err := os.Executable(); err == nil {
			binDir = filepath.Dir(exe)
		}
	}

	cfg := bridge.LaunchConfig{
		BinaryPath:      filepath.Join(binDir, bridgeBinaryName),
		PluginType:      ptype.String(),
		Filename:        filename,
		Label:           label,
		UniqueID:        uniqueID,
		BufferSize:      e.BufferSize(),
		SampleRate:      e.SampleRate(),
		EngineOptionEnv: e.opts.EnvMirror(),
		WineExec:        isWindowsBinary(filename),
		Offline:         e.IsOffline,
		TimeoutTicks:    e.opts.UIBridgesTimeout / 30, // idle ticks at ~30ms
		Logger:          logging.ForService("bridge"),
	}

	info := plugin.Info{
		Type:     ptype,
		Filename: filename,
		Label:    label,
		Name:     label,
		UniqueID: uniqueID,
	}
	return plugin.NewBridged(e, id, info, cfg)
}

func isWindowsBinary(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".dll") || strings.HasSuffix(lower, ".exe")
}
