// Package render processes a WAV file through the engine offline.
package render

import (
	"github.com/spf13/cobra"

	"github.com/rackbay/rackbay/internal/adapters"
	"github.com/rackbay/rackbay/internal/conf"
	"github.com/rackbay/rackbay/internal/engine"
	"github.com/rackbay/rackbay/internal/plugin"
	"github.com/rackbay/rackbay/internal/standalone"
)

// Command creates the offline render command.
func Command(settings *conf.Settings) *cobra.Command {
	var plugins []string
	var output string

	cmd := &cobra.Command{
		Use:   "render [input.wav]",
		Short: "Render a WAV file through the plugin chain offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
			return standalone.RenderWAV(e, args[0], output)
		},
	}
	cmd.Flags().StringSliceVar(&plugins, "plugin", nil, "internal plugin labels to load, in chain order")
	cmd.Flags().StringVarP(&output, "output", "o", "out.wav", "output file")
	return cmd
}
