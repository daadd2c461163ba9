package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func NewDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <dir>",
		Short: "Save the readable memory of the process to a directory",
		Long: `Save the readable memory of the process to a directory.

The dump can be searched later with --from <dir>.`,
		Args: cobra.ExactArgs(1),
		RunE: runDump,
	}
}

func runDump(cmd *cobra.Command, args []string) error {
	dir := args[0]
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	proc, err := openProcess(cmd)
	if err != nil {
		return err
	}
	defer proc.Close()

	if err := proc.UpdateMemoryMap(); err != nil {
		return fmt.Errorf("update memory map: %w", err)
	}
	if err := proc.Save(dir); err != nil {
		return fmt.Errorf("save dump: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved process %d to %s\n", proc.GetPID(), dir)
	return nil
}
