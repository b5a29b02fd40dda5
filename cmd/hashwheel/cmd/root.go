// Package cmd holds the hashwheel command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "hashwheel",
	Short: "Hashed timing wheel scheduler",
	Long: `hashwheel runs one-shot delayed tasks on a single level hashed timing wheel.

Use "hashwheel serve" to expose the wheel over HTTP, or "hashwheel load" to
push a batch of synthetic tasks through an in-process wheel.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "",
		"config file (default: ./configs/hashwheel.yaml or ./hashwheel.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(versionCmd)
}
