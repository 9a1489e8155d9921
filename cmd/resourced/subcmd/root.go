// Package subcmd holds the resourced commands.
package subcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/resourcekit/config"
	"github.com/vinayprograms/resourcekit/logging"
)

// Version is set at build time.
var Version = "dev"

// RootCmd is the resourced entry point.
var RootCmd = &cobra.Command{
	Use:           "resourced",
	Short:         "Hot-swappable resource registry daemon",
	Version:       Version,
	SilenceUsage: true,
}

var globalOpts struct {
	ConfigPath string
	LogLevel   string
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&globalOpts.ConfigPath, "config", "c", "", "path to resourced.toml (default: search standard paths)")
	RootCmd.PersistentFlags().StringVar(&globalOpts.LogLevel, "log-level", "", "override log.level")
}

// loadConfig reads the configured file, or the first one found on the
// standard paths, and builds the logger it asks for.
func loadConfig(path, levelOverride string) (*config.Config, *logging.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, path, err = config.LoadDefault()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	levelName := cfg.Log.Level
	if levelOverride != "" {
		levelName = levelOverride
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, nil, err
	}

	log := logging.New().WithComponent("resourced")
	log.SetLevel(level)
	if path != "" {
		log.Debug("config loaded", map[string]interface{}{"path": path})
	} else {
		log.Debug("no config file found, using defaults")
	}
	return cfg, log, nil
}
