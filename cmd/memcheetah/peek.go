package main

import (
	"fmt"
	"io"

	"memcheetah/hexdump"
	"memcheetah/process"
	"memcheetah/process/memory_map"

	"github.com/spf13/cobra"
)

func NewPeekCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peek <addr>",
		Short: "Hex dump memory around an address",
		Args:  cobra.ExactArgs(1),
		RunE:  runPeek,
	}

	cmd.Flags().Int("size", 128, "Bytes to dump from the address on")
	cmd.Flags().Int("before", 32, "Bytes to include before the address")

	return cmd
}

func runPeek(cmd *cobra.Command, args []string) error {
	addr, err := parseAddress(args[0])
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

	size, _ := cmd.Flags().GetInt("size")
	before, _ := cmd.Flags().GetInt("before")
	return peek(cmd.OutOrStdout(), proc, addr, before, size, 1)
}

// peek dumps from before bytes ahead of addr to size bytes past it, highlighting mark bytes
// at addr. The window is clamped to the region containing addr.
func peek(w io.Writer, proc process.Process, addr uint64, before, size, mark int) error {
	if before < 0 || size <= 0 {
		return fmt.Errorf("invalid window")
	}
	mm, err := proc.GetMemoryMap()
	if err != nil {
		return err
	}
	memory_map.Sort(mm)
	region := memory_map.FindRegion(addr, mm)
	if region == nil {
		return fmt.Errorf("0x%x: %w", addr, process.ErrAddressNotMapped)
	}

	start := max(region.Address, addr-min(uint64(before), addr))
	end := min(region.End(), addr+uint64(size))

	data, err := proc.ReadMemory(process.ProcessMemoryAddress(start), process.ProcessMemorySize(end-start))
	if err != nil {
		return fmt.Errorf("read 0x%x: %w", start, err)
	}

	opts := hexdump.DefaultOptions()
	opts.Address = start
	opts.HighlightStart = int(addr - start)
	opts.HighlightLen = mark
	opts.MemoryMap = mm
	hexdump.DumpToWriter(w, data, opts)
	return nil
}
