//go:build linux

package process_linux

import (
	"fmt"

	"memcheetah/process"
	"memcheetah/process_blob"
)

// Save saves the process memory and metadata to a directory in the format read by
// process_blob.ProcessDump.Load
func (p *LinuxProcess) Save(dirname string) error {
	pid := p.GetPID()
	if pid == 0 {
		return process.ErrProcessNotOpen
	}

	if err := p.UpdateMemoryMap(); err != nil {
		return fmt.Errorf("failed to update memory map: %w", err)
	}

	mm, err := p.GetMemoryMap()
	if err != nil {
		return err
	}

	p.log.Infoln("Saving process to directory:", dirname)

	stats, err := process_blob.WriteDump(dirname, process_blob.Metadata{PID: pid, Name: p.Name()}, mm, p)
	if err != nil {
		return err
	}

	p.log.Infoln("Process dump saved:", stats.Saved, "regions saved,", stats.ReadErrors, "read errors,",
		stats.SkippedUnreadable, "unreadable,", stats.SkippedTooLarge, "too large")

	return nil
}
