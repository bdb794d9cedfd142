// Command carenest runs the CareNest dispatch server and its tooling.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gaurav-seth/carenest-helper/config"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// load reads the config file, overlays the environment, then the log
// flags, and validates the result.
func (f *rootFlags) load() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	config.FromEnv(&cfg)
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:          "carenest",
		Short:        "CareNest job dispatch",
		Long:         "CareNest matches care jobs to helpers: patients post jobs, every helper hears about them, and exactly one helper wins each job.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", os.Getenv("CARENEST_CONFIG"), "Config file (.json, .yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format: text|json")

	root.AddCommand(
		newServeCmd(flags),
		newMigrateCmd(flags),
		newHelperCmd(flags),
		newSimulateCmd(flags),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "carenest:", err)
		os.Exit(1)
	}
}
