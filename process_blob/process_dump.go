package process_blob

import (
	"fmt"
	"sync"

	"memcheetah/process"
	"memcheetah/process/memory_map"
)

// ProcessDump implements process.Process over memory held in this process: either a dump
// loaded from disk or regions added directly. Writes are applied to the in-memory copy,
// which makes it usable as a stand-in target.
type ProcessDump struct {
	mu        sync.RWMutex
	pid       process.ProcessID
	name      string
	memoryMap []memory_map.MemoryMapItem
	blobs     map[uint64][]byte // Address -> Data
	alive     bool
}

var _ process.Process = (*ProcessDump)(nil)

// NewProcessDump creates a new, empty ProcessDump instance
func NewProcessDump() *ProcessDump {
	return &ProcessDump{
		blobs: make(map[uint64][]byte),
		alive: true,
	}
}

// AddRegion maps a region at addr. A nil data slice leaves the region mapped but
// without backing bytes, so every read from it fails.
func (p *ProcessDump) AddRegion(addr uint64, size uint, perms string, path string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.memoryMap = append(p.memoryMap, memory_map.MemoryMapItem{
		Address: addr,
		Size:    size,
		Perms:   perms,
		Path:    path,
	})
	memory_map.Sort(p.memoryMap)

	if data != nil {
		buf := make([]byte, size)
		copy(buf, data)
		p.blobs[addr] = buf
	}
}

// Unmap removes the region starting at addr, as if the target freed it
func (p *ProcessDump) Unmap(addr uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, item := range p.memoryMap {
		if item.Address == addr {
			p.memoryMap = append(p.memoryMap[:i], p.memoryMap[i+1:]...)
			break
		}
	}
	delete(p.blobs, addr)
}

// SetAlive marks the dump as a running or exited process
func (p *ProcessDump) SetAlive(alive bool) {
	p.mu.Lock()
	p.alive = alive
	p.mu.Unlock()
}

// SetIdentity sets the pid and name reported by the dump
func (p *ProcessDump) SetIdentity(pid process.ProcessID, name string) {
	p.mu.Lock()
	p.pid = pid
	p.name = name
	p.mu.Unlock()
}

func (p *ProcessDump) Open(pid process.ProcessID) error {
	return fmt.Errorf("Open not supported for ProcessDump, use Load")
}

func (p *ProcessDump) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blobs = make(map[uint64][]byte)
	p.memoryMap = nil
	return nil
}

func (p *ProcessDump) GetPID() process.ProcessID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pid
}

// Name returns the process name recorded in the dump
func (p *ProcessDump) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

func (p *ProcessDump) IsAlive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.alive
}

func (p *ProcessDump) UpdateMemoryMap() error {
	if !p.IsAlive() {
		return &process.AttachError{PID: p.GetPID(), Err: process.ErrProcessGone}
	}
	return nil // Memory map is static in a dump
}

func (p *ProcessDump) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return memory_map.IsValidAddress(uint64(addr), p.memoryMap)
}

func (p *ProcessDump) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make([]memory_map.MemoryMapItem, len(p.memoryMap))
	copy(result, p.memoryMap)
	return result, nil
}

// locate returns the backing bytes for [addr, addr+size); the caller holds p.mu
func (p *ProcessDump) locate(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) (*memory_map.MemoryMapItem, []byte, error) {
	if !p.alive {
		return nil, nil, &process.AttachError{PID: p.pid, Err: process.ErrProcessGone}
	}

	region := memory_map.FindRegion(uint64(addr), p.memoryMap)
	if region == nil {
		return nil, nil, process.ErrAddressNotMapped
	}

	data, ok := p.blobs[region.Address]
	if !ok {
		return nil, nil, fmt.Errorf("no data for region 0x%x", region.Address)
	}

	offset := uint64(addr) - region.Address
	if offset+uint64(size) > uint64(len(data)) {
		return nil, nil, fmt.Errorf("%w: read size %d exceeds region data bounds", process.ErrShortTransfer, size)
	}

	return region, data[offset : offset+uint64(size)], nil
}

func (p *ProcessDump) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	region, data, err := p.locate(addr, size)
	if err != nil {
		if process.IsAttachError(err) {
			return nil, err
		}
		return nil, &process.ReadError{Address: addr, Size: size, Err: err}
	}
	if !region.IsReadable() {
		return nil, &process.ReadError{Address: addr, Size: size, Err: process.ErrAddressNotMapped}
	}

	result := make([]byte, size)
	copy(result, data)
	return result, nil
}

func (p *ProcessDump) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	size := process.ProcessMemorySize(len(data))

	p.mu.Lock()
	defer p.mu.Unlock()

	region, dst, err := p.locate(addr, size)
	if err != nil {
		if process.IsAttachError(err) {
			return err
		}
		return &process.WriteError{Address: addr, Size: size, Err: err}
	}
	if !region.IsWritable() {
		return &process.WriteError{Address: addr, Size: size, Err: process.ErrNotWritable}
	}

	copy(dst, data)
	return nil
}

// Save writes the dump to dirname in the same layout LinuxProcess.Save produces
func (p *ProcessDump) Save(dirname string) error {
	mm, _ := p.GetMemoryMap()
	_, err := WriteDump(dirname, Metadata{PID: p.GetPID(), Name: p.Name()}, mm, p)
	return err
}
