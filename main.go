package main

import (
	"fmt"
	"os"

	"github.com/rackbay/rackbay/cmd"
	"github.com/rackbay/rackbay/internal/conf"
	"github.com/rackbay/rackbay/internal/logging"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(settings.Main.LogDir)

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "command error: %v\n", err)
		os.Exit(1)
	}
}
