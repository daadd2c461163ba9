package process

import (
	"memcheetah/process/memory_map"
)

// Process is the interface that defines operations for interacting with a system process.
// Implementations must be safe for concurrent use: scan workers and the freeze loop
// share one handle.
type Process interface {
	// Open opens a process with the given PID for memory operations
	Open(pid ProcessID) error

	// Close closes the process and releases resources
	Close() error

	// GetPID returns the process ID
	GetPID() ProcessID

	// IsAlive reports whether the target process still exists
	IsAlive() bool

	// UpdateMemoryMap refreshes the memory map for the process
	UpdateMemoryMap() error

	// IsValidAddress checks if the given memory address is valid and readable
	IsValidAddress(addr ProcessMemoryAddress) bool

	// GetMemoryMap returns a copy of the current memory map
	GetMemoryMap() ([]memory_map.MemoryMapItem, error)

	// ReadMemory reads memory from the process at the specified address
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)

	// WriteMemory writes data to the process memory at the specified address
	WriteMemory(addr ProcessMemoryAddress, data []byte) error

	// Save saves the process memory and metadata to a directory
	Save(dirname string) error
}

// MemoryReader is the read-only subset used by scanners.
type MemoryReader interface {
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)
}

// MemoryWriter is the write-only subset used by the freeze loop.
type MemoryWriter interface {
	WriteMemory(addr ProcessMemoryAddress, data []byte) error
}
