package process

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// ResolvePath follows a pointer path and returns the final address. Starting at base, each
// offset but the last is added and a 64-bit pointer is read there; the last offset is added
// to the final pointer. With no offsets the result is base.
func ResolvePath(r MemoryReader, base ProcessMemoryAddress, offsets ...ProcessMemorySize) (ProcessMemoryAddress, error) {
	addr := base
	for i := 0; i < len(offsets)-1; i++ {
		ptrAddr := addr + ProcessMemoryAddress(offsets[i])
		b, err := r.ReadMemory(ptrAddr, 8)
		if err != nil {
			return 0, fmt.Errorf("read pointer %d at 0x%x: %w", i, ptrAddr, err)
		}
		ptr := binary.LittleEndian.Uint64(b)
		if ptr == 0 {
			return 0, fmt.Errorf("pointer %d at 0x%x is null", i, ptrAddr)
		}
		addr = ProcessMemoryAddress(ptr)
	}

	if len(offsets) > 0 {
		addr += ProcessMemoryAddress(offsets[len(offsets)-1])
	}
	return addr, nil
}

// Read copies a fixed-size value of type T out of process memory.
func Read[T any](r MemoryReader, addr ProcessMemoryAddress) (T, error) {
	var t T
	size := int(unsafe.Sizeof(t))
	if size == 0 {
		return t, nil
	}

	data, err := r.ReadMemory(addr, ProcessMemorySize(size))
	if err != nil {
		return t, err
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&t)), size), data)
	return t, nil
}
