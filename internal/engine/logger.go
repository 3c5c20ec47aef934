// Package engine owns the plugin table, the graph, transport state and the
// outer-host-facing lifecycle, and drives the UI pipe from its idle tick.
package engine

import (
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/rackbay/rackbay/internal/logging"
)

// Package-level logger for engine operations
var (
	logger         *slog.Logger
	loggerInitOnce sync.Once
	levelVar       = new(slog.LevelVar)
	closeLogger    func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "engine.log")
	levelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "engine", levelVar)
	if err != nil {
		log.Printf("Failed to initialize engine file logger at %s: %v. Engine logs will be discarded.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: levelVar})
		logger = slog.New(fbHandler).With("service", "engine")
		closeLogger = func() error { return nil }
	}
}

// GetLogger returns the package logger.
func GetLogger() *slog.Logger {
	loggerInitOnce.Do(func() {
		if logger == nil {
			logger = slog.Default().With("service", "engine")
		}
	})
	return logger
}

// CloseLogger closes the log file and releases resources.
func CloseLogger() error {
	if closeLogger != nil {
		return closeLogger()
	}
	return nil
}
