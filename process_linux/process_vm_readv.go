//go:build linux

package process_linux

import (
	"errors"
	"fmt"

	"memcheetah/process"

	"golang.org/x/sys/unix"
)

// process_vm_readv copies size bytes at remoteAddr of pid into a fresh buffer
func process_vm_readv(pid process.ProcessID, remoteAddr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	buf := make([]byte, size)
	if size == 0 {
		return buf, nil
	}

	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(len(buf))
	remote := []unix.RemoteIovec{{Base: uintptr(remoteAddr), Len: len(buf)}}

	n, err := unix.ProcessVMReadv(int(pid), local, remote, 0)
	if err != nil {
		return nil, err
	}
	if n != len(buf) {
		return buf[:n], fmt.Errorf("%w: %d of %d bytes", process.ErrShortTransfer, n, size)
	}
	return buf, nil
}

// ReadMemory reads memory from the process at the specified address
func (p *LinuxProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	p.mu.Lock()
	pid := p.pid
	valid := pid != 0 && p.isValidAddressInternal(addr)
	// Release the lock before the system call
	p.mu.Unlock()

	if pid == 0 {
		return nil, process.ErrProcessNotOpen
	}

	if !valid {
		return nil, &process.ReadError{Address: addr, Size: size, Err: process.ErrAddressNotMapped}
	}

	data, err := process_vm_readv(pid, addr, size)
	if err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil, &process.AttachError{PID: pid, Err: process.ErrProcessGone}
		}
		return nil, &process.ReadError{Address: addr, Size: size, Err: err}
	}

	return data, nil
}
