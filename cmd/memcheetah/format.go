package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"memcheetah/coloransi"
	"memcheetah/process/memory_map"
	"memcheetah/resultset"
	"memcheetah/search"
	"memcheetah/value"
)

func parseAddress(s string) (uint64, error) {
	addr, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return addr, nil
}

func printRegions(w io.Writer, regions []memory_map.MemoryMapItem) {
	var total uint64
	for _, region := range regions {
		fmt.Fprintf(w, "  %016x - %016x %s %10d %s\n",
			region.Address, region.Address+uint64(region.Size), region.Perms, region.Size, region.Path)
		total += uint64(region.Size)
	}
	fmt.Fprintf(w, "%d regions, %d bytes\n", len(regions), total)
}

func printSearchResult(w io.Writer, result *search.Result) {
	fmt.Fprintf(w, "%d hits in %d/%d regions", result.TotalHits, result.Completed, result.TotalRegions)
	if result.Truncated() {
		fmt.Fprintf(w, ", %d kept", len(result.Hits))
	}
	if result.Cancelled {
		fmt.Fprint(w, ", cancelled")
	}
	if len(result.Failed) > 0 {
		fmt.Fprintf(w, ", %d unreadable", len(result.Failed))
	}
	fmt.Fprintln(w)
}

func printHits(w io.Writer, hits []resultset.Hit, limit int) {
	for i, h := range hits {
		if limit > 0 && i == limit {
			fmt.Fprintf(w, "  ... %d more\n", len(hits)-limit)
			return
		}
		line := fmt.Sprintf("  %s  %-24s", coloransi.Foreground(coloransi.Cyan, fmt.Sprintf("0x%012x", h.Address)), h.Value())
		if !h.Candidates.IsConcrete() {
			line += " " + h.Candidates.String()
		}
		if h.Frozen {
			width, _ := h.Candidates.Widest()
			line += " " + coloransi.Foreground(coloransi.ColorOrange, "frozen "+value.Format(h.Pinned, width))
		}
		fmt.Fprintln(w, line)
	}
}

func printStats(w io.Writer, st resultset.Stats) {
	fmt.Fprintf(w, "%s search, %s, %d hits", st.Type.String(), st.State.String(), st.Hits)
	if st.Truncated {
		fmt.Fprintf(w, " of %d", st.TotalHits)
	}
	fmt.Fprintf(w, ", %d undo, %d frozen\n", st.UndoDepth, st.Frozen)
}

// progressPrinter rewrites one status line on w.
func progressPrinter(w io.Writer) func(search.Progress) {
	return func(p search.Progress) {
		fmt.Fprintf(w, "\rscanning %d/%d regions, %d hits", p.CompletedRegions, p.TotalRegions, p.TotalHits)
		if p.CompletedRegions == p.TotalRegions {
			fmt.Fprintln(w)
		}
	}
}
