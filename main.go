// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// exitInterrupted follows the shell convention for SIGINT.
const exitInterrupted = 130

type rootOptions struct {
	ConfigPath string
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "areasync",
		Short:         "Mirror the administrative-division tree from the district API into MySQL",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to config.yaml (default: ./config.yaml or ./config/config.yaml)")

	cmd.AddCommand(newRunCmd(&opts))
	cmd.AddCommand(newSchemaCmd(&opts))
	cmd.AddCommand(newCheckpointCmd(&opts))
	cmd.AddCommand(newExportCmd(&opts))
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(os.Stderr, "interrupted, progress checkpoint kept")
		return exitInterrupted
	default:
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
}
