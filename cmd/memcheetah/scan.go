package main

import (
	"fmt"
	"strings"

	"memcheetah/search"
	"memcheetah/session"
	"memcheetah/value"

	"github.com/spf13/cobra"
)

func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <type> <value>",
		Short: "Run a single search and print the hits",
		Long: `Run a single search and print the hits.

Types: byte, short, int, int64, float, double, string, string:N, unknown, aob.
Patterns are hex bytes with ?? wildcards, e.g. "48 8B ?? 05".`,
		Args: cobra.MinimumNArgs(2),
		RunE: runScan,
	}

	cmd.Flags().Int("limit", 50, "Hits to print, 0 for all")
	cmd.Flags().Bool("progress", false, "Report progress on stderr")

	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	typ, err := value.ParseType(args[0], cfg.UnknownMinWidth, cfg.UnknownMaxWidth)
	if err != nil {
		return err
	}
	proc, err := openProcess(cmd)
	if err != nil {
		return err
	}

	sess := session.New(proc, cfg)
	defer sess.Close()

	var opts []search.Option
	if progress, _ := cmd.Flags().GetBool("progress"); progress {
		opts = append(opts, search.WithProgress(progressPrinter(cmd.ErrOrStderr())))
	}

	h, result, err := sess.StartSearch(cmd.Context(), typ, strings.Join(args[1:], " "), opts...)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	tab, err := sess.Tab(h)
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	out := cmd.OutOrStdout()
	printSearchResult(out, result)
	printHits(out, tab.Hits(), limit)
	return nil
}
