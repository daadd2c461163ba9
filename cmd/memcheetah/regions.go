package main

import (
	"fmt"

	"memcheetah/scanner"

	"github.com/spf13/cobra"
)

func NewRegionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regions",
		Short: "List the memory regions that would be scanned",
		Args:  cobra.NoArgs,
		RunE:  runRegions,
	}

	cmd.Flags().Bool("all", false, "List every mapped region, not only scannable ones")
	cmd.Flags().Bool("read-only", false, "Include read-only regions, as pattern searches do")

	return cmd
}

func runRegions(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	proc, err := openProcess(cmd)
	if err != nil {
		return err
	}
	defer proc.Close()

	if err := proc.UpdateMemoryMap(); err != nil {
		return fmt.Errorf("update memory map: %w", err)
	}
	regions, err := proc.GetMemoryMap()
	if err != nil {
		return err
	}

	all, _ := cmd.Flags().GetBool("all")
	if !all {
		readOnly, _ := cmd.Flags().GetBool("read-only")
		regions = scanner.Filter(regions, scanner.FilterOptions{
			ExcludePrefixes: cfg.ExcludePrefixes,
			IncludeReadOnly: readOnly,
		})
	}

	printRegions(cmd.OutOrStdout(), regions)
	return nil
}
