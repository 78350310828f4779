package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// Exit codes
const (
	ExitSuccess    = 0
	ExitError      = 1
	ExitUsageError = 2
)

var rootCmd = &cobra.Command{
	Use:   "revmux",
	Short: "Multi-model git code review",
	Long: "Revmux assembles a code-review prompt from a git diff plus optional context\n" +
		"files and dispatches it to several language models in parallel through the\n" +
		"llm CLI.",
}

// Run executes the root command and returns a process exit code.
func Run() int {
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(initConfigCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}

	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// fail prints the error and marks the run as failed.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	exitCode = ExitError
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print revmux version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "revmux version %s\n", version)
	},
}
