// Package process provides interfaces and types for reading and writing the memory of another process
package process

import (
	"errors"
	"fmt"
)

// This file holds the error taxonomy shared by every accessor implementation.
// The remaining types live in:
// - types.go: ProcessID, ProcessInfo
// - memory_types.go: ProcessMemoryAddress, ProcessMemorySize, AOB
// - process_interface.go: Process interface
// - process_finder.go: ProcessFinder interface

var (
	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = errors.New("process not open")

	// ErrProcessGone is returned when the target process exited while attached.
	ErrProcessGone = errors.New("process no longer exists")

	// ErrNotWritable is returned when a write targets a region without write permission.
	ErrNotWritable = errors.New("memory region not writable")

	// ErrShortTransfer is returned when fewer bytes than requested were read or written.
	ErrShortTransfer = errors.New("short transfer")
)

// AttachError reports that the target process cannot be attached or has disappeared.
// It invalidates the whole session.
type AttachError struct {
	PID ProcessID
	Err error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("attach pid %d: %v", e.PID, e.Err)
}

func (e *AttachError) Unwrap() error { return e.Err }

// ReadError reports a failed read of Size bytes at Address.
type ReadError struct {
	Address ProcessMemoryAddress
	Size    ProcessMemorySize
	Err     error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %d bytes at %s: %v", e.Size, e.Address.ToString(), e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError reports a failed write at Address.
type WriteError struct {
	Address ProcessMemoryAddress
	Size    ProcessMemorySize
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %d bytes at %s: %v", e.Size, e.Address.ToString(), e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsAttachError reports whether err invalidates the target process identity.
func IsAttachError(err error) bool {
	var ae *AttachError
	return errors.As(err, &ae)
}
