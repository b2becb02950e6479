// Package cli implements the upkeep command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sirex/upkeep/internal/config"
	"github.com/sirex/upkeep/internal/errors"
)

// Persistent flags
var (
	configFlag  string
	verboseFlag bool
)

// exitCode is the process exit code when no error occurred. Task failures
// set it so the shell sees the failing task's exit code.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "upkeep",
	Short: "Idempotent server provisioning over SSH",
	Long: `upkeep runs provisioning and maintenance tasks on remote Ubuntu servers.

Instances (deployment targets) and tasks are declared in .upkeep.yaml.
On the command line, naming an instance switches the target for every
task that follows it:

  upkeep run staging deploy
  upkeep run staging deploy production deploy
  upkeep run setup migrate    # uses the default instance

Helpers are idempotent: creating a user, installing a package, or adding
an SSH host key is safe to run twice.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits the process.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "path to config file (default: .upkeep.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "show connection attempts and executed commands")
}

// loadConfig finds, loads, and validates the configuration.
func loadConfig() (*config.Config, error) {
	path, err := config.Find(configFlag)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.New(errors.ErrConfig,
			"No config file found",
			"Run 'upkeep init' to create a .upkeep.yaml config file")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
