package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "lwaproc",
	Short: "Containerized processing pipelines for LWA solar observations",
	Long: "lwaproc runs CASA, DP3, and WSClean inside containers over\n" +
		"measurement sets: single quick-proc runs, directory-wide batches,\n" +
		"self-calibration loops, and a realtime one-shot mode.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(selfcalCmd)
	rootCmd.AddCommand(realtimeCmd)
	rootCmd.AddCommand(flagavgCmd)
	rootCmd.AddCommand(gaincalCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.Version = version
}

func main() {
	err := rootCmd.Execute()
	if logClose != nil {
		logClose.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
