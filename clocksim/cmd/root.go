// Package cmd provides the command-line interface of clocksim.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "clocksim",
	Short: "Simulate an asynchronous distributed system with Lamport clocks.",
	Long: `clocksim runs a group of machines that tick at different rates and ` +
		`exchange logical clock values over UDP. Every machine writes a trace ` +
		`that can be checked with the verify command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
