//go:build linux

package process_linux

import (
	"errors"

	"memcheetah/process"
	"memcheetah/process/memory_map"

	"golang.org/x/sys/unix"
)

// process_vm_writev copies data to remoteAddr of pid and returns the bytes written
func process_vm_writev(pid process.ProcessID, data []byte, remoteAddr process.ProcessMemoryAddress) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	local := []unix.Iovec{{Base: &data[0]}}
	local[0].SetLen(len(data))
	remote := []unix.RemoteIovec{{Base: uintptr(remoteAddr), Len: len(data)}}

	return unix.ProcessVMWritev(int(pid), local, remote, 0)
}

// WriteMemory writes data to the process memory at the specified address
func (p *LinuxProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	size := process.ProcessMemorySize(len(data))

	p.mu.Lock()
	pid := p.pid
	var region *memory_map.MemoryMapItem
	if pid != 0 && p.isValidAddressInternal(addr) {
		if r := memory_map.FindRegion(uint64(addr), p.mm); r != nil {
			copied := *r
			region = &copied
		}
	}
	// Release the lock before the system call
	p.mu.Unlock()

	if pid == 0 {
		return process.ErrProcessNotOpen
	}

	if region == nil || !region.Contains(uint64(addr), uint(size)) {
		return &process.WriteError{Address: addr, Size: size, Err: process.ErrAddressNotMapped}
	}

	if !region.IsWritable() {
		return &process.WriteError{Address: addr, Size: size, Err: process.ErrNotWritable}
	}

	// Create a copy of the data to avoid potential modification during the write
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	written, err := process_vm_writev(pid, dataCopy, addr)
	if err != nil {
		if errors.Is(err, unix.ESRCH) {
			return &process.AttachError{PID: pid, Err: process.ErrProcessGone}
		}
		return &process.WriteError{Address: addr, Size: size, Err: err}
	}

	if written != len(data) {
		return &process.WriteError{Address: addr, Size: size, Err: process.ErrShortTransfer}
	}

	return nil
}
