//go:build linux

package process_linux

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"memcheetah/process"
)

// LinuxProcessFinder implements the process.ProcessFinder interface
type LinuxProcessFinder struct{}

// NewProcessFinder creates a new LinuxProcessFinder
func NewProcessFinder() process.ProcessFinder {
	return &LinuxProcessFinder{}
}

// FindProcessByPID finds a process by its PID
func (f *LinuxProcessFinder) FindProcessByPID(pid process.ProcessID) (*process.ProcessInfo, error) {
	return findProcessByPID(pid)
}

// FindProcessByName returns all processes whose comm or exe basename equals name, skipping ourselves
func (f *LinuxProcessFinder) FindProcessByName(name string) ([]process.ProcessInfo, error) {
	if name == "" {
		return nil, fmt.Errorf("empty name")
	}

	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("failed to read /proc: %w", err)
	}

	self := os.Getpid()
	var results []process.ProcessInfo

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 || pid == self {
			continue
		}

		info, err := findProcessByPID(process.ProcessID(pid))
		if err != nil {
			// Process may have terminated while we were reading
			continue
		}

		if info.Name == name || (info.Exe != "" && filepath.Base(info.Exe) == name) {
			results = append(results, *info)
		}
	}

	return results, nil
}

// Helper function to find a process by PID
func findProcessByPID(pid process.ProcessID) (*process.ProcessInfo, error) {
	procPath := filepath.Join("/proc", strconv.Itoa(int(pid)))

	if _, err := os.Stat(procPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("process with PID %d does not exist", pid)
	}

	commData, err := os.ReadFile(filepath.Join(procPath, "comm"))
	if err != nil {
		return nil, fmt.Errorf("failed to read process name: %w", err)
	}

	// Some processes don't have an exe (e.g., kernel threads)
	exe, _ := os.Readlink(filepath.Join(procPath, "exe"))

	var cmdline []string
	if raw, err := os.ReadFile(filepath.Join(procPath, "cmdline")); err == nil && len(raw) > 0 {
		raw = bytes.TrimSuffix(raw, []byte{0})
		for _, arg := range bytes.Split(raw, []byte{0}) {
			cmdline = append(cmdline, string(arg))
		}
	}

	return &process.ProcessInfo{
		PID:     pid,
		Name:    strings.TrimSpace(string(commData)),
		Exe:     exe,
		Cmdline: cmdline,
	}, nil
}
