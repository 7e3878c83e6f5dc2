package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lwaproc/internal/container"
	"lwaproc/internal/logging"
)

// globalFlags are shared across subcommands.
var globalFlags struct {
	runtime  string
	logLevel string
	logFile  string
}

// logClose tears down the --log-file tee; main defers it.
var logClose io.Closer

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.runtime, "runtime", "podman", "Container runtime (podman, docker)")
	pf.StringVar(&globalFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&globalFlags.logFile, "log-file", "", "Also append process logs to this file")
	rootCmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		level := logging.ParseLevel(globalFlags.logLevel)
		if globalFlags.logFile != "" {
			var err error
			logClose, err = logging.InitWithFile(level, "text", globalFlags.logFile)
			return err
		}
		logging.Init(level, "text", os.Stderr)
		return nil
	}
}

// newRuntime resolves the --runtime flag.
func newRuntime() (container.Runtime, error) {
	return container.New(globalFlags.runtime)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM so a ^C
// stops the containers instead of orphaning them.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
