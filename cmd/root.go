// Package cmd wires the CLI: the run loop, checkpoint administration, and
// global configuration flags.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ikoma-ai/ikoma/internal/config"
	"github.com/ikoma-ai/ikoma/internal/logger"
)

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

var (
	flagVerbose bool

	settings *config.Settings
)

var rootCmd = &cobra.Command{
	Use:     "ikoma",
	Short:   "Local plan-execute-reflect agent",
	Long:    "ikoma runs a goal through a plan-execute-reflect loop against a local or hosted LLM,\nwith checkpointing, vector memory, and cited web research.",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load()
		if err != nil {
			return err
		}
		settings = s
		logger.Setup(flagVerbose || s.Verbose)
		logger.SetVersion(Version)
		logger.SetCommand(cmd.Name())
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the CLI and returns the process exit code: 0 on success,
// 1 on runtime errors, 2 on usage errors.
func Execute() int {
	cmd, err := rootCmd.ExecuteC()
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if cmd != nil && !cmd.DisableFlagParsing && isUsageError(err) {
		fmt.Fprintln(os.Stderr, cmd.UsageString())
		return 2
	}
	return 1
}

func isUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"unknown command", "unknown flag", "unknown shorthand flag", "invalid argument", "accepts ", "requires "} {
		if len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
