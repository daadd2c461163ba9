//go:build linux

package memory_map

import (
	"fmt"
	"os"
)

// LinuxMemoryMap reads /proc/<pid>/maps
type LinuxMemoryMap struct{}

func NewLinuxMemoryMap() *LinuxMemoryMap {
	return &LinuxMemoryMap{}
}

// ReadMemoryMap returns the regions of pid in file order, which is ascending address order
func (l *LinuxMemoryMap) ReadMemoryMap(pid int) ([]MemoryMapItem, error) {
	file, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, fmt.Errorf("maps of pid %d: %w", pid, err)
	}
	defer file.Close()

	return Parse(file)
}
