// Command tilecanvas is the node binary: it loads configuration,
// wires structured logging, and mounts the tile and discovery
// introspection command groups onto a cobra root.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tilecanvas/cmd/cli"
	"tilecanvas/pkg/config"
)

func main() {
	// Run the root's persistent pre-run (config + logging) before each
	// command group's own persistent pre-run instead of being shadowed
	// by it.
	cobra.EnableTraverseRunHooks = true

	root := &cobra.Command{
		Use:   "tilecanvas",
		Short: "Event-sourced, content-addressed tile canvas storage and discovery",
	}

	var env string
	root.PersistentFlags().StringVar(&env, "env", "", "Optional config overlay name (e.g. dev, prod)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(env); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		configureLogging(config.AppConfig.Logging.Level, config.AppConfig.Logging.File)
		return nil
	}

	root.AddCommand(cli.TileRoute, cli.DiscoveryRoute)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func configureLogging(level, file string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.JSONFormatter{})

	if file == "" {
		return
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logrus.WithError(err).Warn("tilecanvas: falling back to stderr logging")
		return
	}
	logrus.SetOutput(f)
}
