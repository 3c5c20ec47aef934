// Package standalone runs the engine against a real audio device.
package standalone

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/spf13/cobra"

	"github.com/rackbay/rackbay/internal/adapters"
	"github.com/rackbay/rackbay/internal/conf"
	"github.com/rackbay/rackbay/internal/engine"
	"github.com/rackbay/rackbay/internal/logging"
	"github.com/rackbay/rackbay/internal/plugin"
	standalonehost "github.com/rackbay/rackbay/internal/standalone"
)

// Command creates the standalone device host command.
func Command(settings *conf.Settings) *cobra.Command {
	var plugins []string

	cmd := &cobra.Command{
		Use:   "standalone",
		Short: "Run the host against a duplex audio device",
		Long: "Runs the same engine the embedded build uses, but against a real " +
			"capture/playback device. Internal plugins can be chained with --plugin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStandalone(settings, plugins)
		},
	}
	cmd.Flags().StringSliceVar(&plugins, "plugin", nil, "internal plugin labels to load, in chain order")
	return cmd
}

func runStandalone(settings *conf.Settings, plugins []string) error {
	logger := logging.ForService("standalone")
	if logger == nil {
		logger = slog.Default()
	}

	e := engine.New(engine.OptionsFromSettings(settings), settings.Engine.BufferSize, settings.Engine.SampleRate)
	e.SetAdapterFactory(adapters.Factory)
	defer e.Close()

	for _, label := range plugins {
		id, err := e.AddPlugin(plugin.TypeInternal, "", label, 0)
		if err != nil {
			return err
		}
		e.Plugin(id).SetActive(true, false)
	}

	hostDev, err := standalonehost.NewDeviceHost(e, settings.Standalone.Channels, logger)
	if err != nil {
		return err
	}
	defer hostDev.Close()

	if addr := settings.Standalone.MetricsAddr; addr != "" {
		go serveMetrics(e, addr)
	}
	go logSystemLoad(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("rackbay standalone running, ctrl-c to stop")
	return hostDev.Run(ctx)
}

func serveMetrics(e *engine.Engine, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.Metrics().Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Error("metrics server failed", "err", err)
	}
}

// logSystemLoad samples whole-system CPU use periodically; the engine's own
// DSP load rides the UI pipe instead.
func logSystemLoad(logger *slog.Logger) {
	for {
		time.Sleep(30 * time.Second)
		percents, err := cpu.Percent(0, false)
		if err != nil || len(percents) == 0 {
			continue
		}
		logger.Info("system load", "cpu_percent", percents[0])
	}
}
