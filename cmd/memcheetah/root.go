package main

import (
	"errors"
	"fmt"
	"strings"

	"memcheetah/coloransi"
	"memcheetah/config"
	"memcheetah/process"
	"memcheetah/process_blob"
	"memcheetah/process_linux"

	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "memcheetah",
		Short:         "Search and edit the memory of a running process",
		Long:          `Find values in another process, narrow them down while it runs, then overwrite or freeze them.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			noColor, _ := cmd.Flags().GetBool("no-color")
			coloransi.Enabled = !noColor
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)

	rootCmd.AddCommand(
		NewRegionsCmd(),
		NewScanCmd(),
		NewConsoleCmd(),
		NewDumpCmd(),
		NewPeekCmd(),
	)

	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "YAML config file")
	cmd.PersistentFlags().Int("pid", 0, "Process ID to attach to")
	cmd.PersistentFlags().String("name", "", "Attach to the process with this name")
	cmd.PersistentFlags().String("from", "", "Use a saved dump directory instead of a live process")
	cmd.PersistentFlags().Int("workers", 0, "Parallel scan workers (default from config)")
	cmd.PersistentFlags().Int("max-results", -1, "Hits kept in memory per search (default from config)")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
}

// loadConfig reads --config and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("workers") {
		cfg.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("max-results") {
		cfg.MaxResults, _ = cmd.Flags().GetInt("max-results")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openProcess resolves --from, --pid or --name to an accessor.
func openProcess(cmd *cobra.Command) (process.Process, error) {
	from, _ := cmd.Flags().GetString("from")
	pid, _ := cmd.Flags().GetInt("pid")
	name, _ := cmd.Flags().GetString("name")

	switch {
	case from != "":
		dump, err := process_blob.LoadDump(from)
		if err != nil {
			return nil, fmt.Errorf("load dump %s: %w", from, err)
		}
		return dump, nil
	case pid != 0:
		return process_linux.NewWithPID(process.ProcessID(pid))
	case name != "":
		found, err := process_linux.NewProcessFinder().FindProcessByName(name)
		if err != nil {
			return nil, err
		}
		switch len(found) {
		case 0:
			return nil, fmt.Errorf("no process named %q", name)
		case 1:
			return process_linux.NewWithPID(found[0].PID)
		}
		pids := make([]string, len(found))
		for i, p := range found {
			pids[i] = fmt.Sprint(p.PID)
		}
		return nil, fmt.Errorf("%d processes named %q (%s), use --pid", len(found), name, strings.Join(pids, ", "))
	}
	return nil, errors.New("one of --pid, --name or --from is required")
}
