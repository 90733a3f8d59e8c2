package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lensbus/host/trace"
)

var (
	cmdTrace = &cobra.Command{
		Use:   "trace",
		Short: "Inspect frame traces",
	}
	cmdTraceDump = &cobra.Command{
		Use:   "dump <file>",
		Short: "Print every frame of a trace",
		Args:  cobra.ExactArgs(1),
		RunE:  runTraceDump,
	}
)

func init() {
	rootCmd.AddCommand(cmdTrace)
	cmdTrace.AddCommand(cmdTraceDump)
}

func runTraceDump(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := trace.Dump(cmd.OutOrStdout(), f)
	if err != nil {
		return fmt.Errorf("after %d frames: %w", n, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d frames\n", n)
	return nil
}
