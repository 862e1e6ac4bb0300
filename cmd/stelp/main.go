// stelp pipes lines and structured records through small user scripts:
// filters, transforms and derivations composed on the command line in
// the order the flags appear.
//
// Usage:
//
//	stelp -e '<expr>' [files...]
//	stelp --filter '<expr>' -e '<expr>' access.log
//	stelp -f jsonl -d 'latency_ms = int(duration * 1000)' events.jsonl
//	stelp --chunk-start '^BEGIN' -e 'line.upper()' trace.log
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exitCode := 0
	root := newRootCmd(&exitCode)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "stelp:", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

func newRootCmd(exitCode *int) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "stelp [files...]",
		Short:        "Script-driven stream processing of lines and records",
		Long:         "stelp reads lines or structured records from files or stdin,\nruns them through user scripts and writes the survivors out.",
		Version:      version,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := opts.run(cmd.Context(), args, os.Args[1:])
			if err != nil {
				return err
			}
			*exitCode = code
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}
