// Package cmd assembles the rackbay CLI.
package cmd

import (
	"log"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rackbay/rackbay/cmd/render"
	"github.com/rackbay/rackbay/cmd/scan"
	"github.com/rackbay/rackbay/cmd/standalone"
	"github.com/rackbay/rackbay/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rackbay",
		Short: "rackbay plugin host CLI",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		log.Printf("error setting up flags: %v\n", err)
	}

	rootCmd.AddCommand(
		standalone.Command(settings),
		render.Command(settings),
		scan.Command(settings),
	)
	return rootCmd
}

// setupFlags configures the global flags shared by every subcommand.
// Flag names accept both dashes and underscores, matching the config keys.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	cmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	cmd.PersistentFlags().StringVar(&settings.Engine.ProcessMode, "mode", viper.GetString("engine.processmode"), "Process mode: rack or patchbay")
	cmd.PersistentFlags().Uint32Var(&settings.Engine.BufferSize, "buffer-size", uint32(viper.GetUint("engine.buffersize")), "Audio buffer size in frames")
	cmd.PersistentFlags().Float64Var(&settings.Engine.SampleRate, "sample-rate", viper.GetFloat64("engine.samplerate"), "Sample rate in Hz")

	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		return err
	}
	return nil
}
