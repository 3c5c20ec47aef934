// Package scan lists the plugins found on the configured search paths.
package scan

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rackbay/rackbay/internal/conf"
	"github.com/rackbay/rackbay/internal/engine"
	scanner "github.com/rackbay/rackbay/internal/scan"
)

// Command creates the search-path scan command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan the plugin search paths and list what was found",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.OptionsFromSettings(settings)
			s := scanner.New(opts.PluginPaths,
				time.Duration(settings.Scan.CacheTTLMinutes)*time.Minute,
				settings.Scan.CacheFile)
			if err := s.LoadCacheFile(); err != nil {
				return err
			}

			all, err := s.ScanAll()
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Println("no plugins found on the configured search paths")
				return nil
			}
			for format, found := range all {
				fmt.Printf("%s (%d):\n", format, len(found))
				for _, d := range found {
					fmt.Printf("  %-24s %s\n", d.Label, d.Filename)
				}
			}
			return nil
		},
	}
}
