package process_blob

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"memcheetah/process"
	"memcheetah/process/memory_map"
)

const (
	metadataFile  = "metadata.json"
	memoryMapFile = "process_memory_map.json"

	// MaxDumpRegionSize bounds the size of a single region written to a dump
	MaxDumpRegionSize = 100 * 1024 * 1024
)

// Metadata identifies the process a dump was taken from
type Metadata struct {
	PID  process.ProcessID `json:"pid"`
	Name string            `json:"name"`
}

// DumpStats summarises a WriteDump call
type DumpStats struct {
	Saved             int
	SkippedUnreadable int
	SkippedTooLarge   int
	ReadErrors        int
}

func blobFilename(dirname string, region memory_map.MemoryMapItem) string {
	return filepath.Join(dirname, fmt.Sprintf("blob_0x%x_%d.bin", region.Address, region.Size))
}

// WriteDump stores metadata, the memory map, and one file per readable region.
// Unreadable regions are recorded in the map but get no blob file.
func WriteDump(dirname string, meta Metadata, mm []memory_map.MemoryMapItem, reader process.MemoryReader) (DumpStats, error) {
	var stats DumpStats

	if err := os.MkdirAll(dirname, 0755); err != nil {
		return stats, fmt.Errorf("failed to create directory: %w", err)
	}

	metadataJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return stats, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dirname, metadataFile), metadataJSON, 0644); err != nil {
		return stats, fmt.Errorf("failed to write metadata file: %w", err)
	}

	memoryMapJSON, err := json.MarshalIndent(mm, "", "  ")
	if err != nil {
		return stats, fmt.Errorf("failed to marshal memory map: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dirname, memoryMapFile), memoryMapJSON, 0644); err != nil {
		return stats, fmt.Errorf("failed to write memory map file: %w", err)
	}

	for _, region := range mm {
		if !region.IsReadable() {
			stats.SkippedUnreadable++
			continue
		}
		if region.Size > MaxDumpRegionSize {
			stats.SkippedTooLarge++
			continue
		}

		data, err := reader.ReadMemory(process.ProcessMemoryAddress(region.Address), process.ProcessMemorySize(region.Size))
		if err != nil {
			if process.IsAttachError(err) {
				return stats, err
			}
			stats.ReadErrors++
			continue
		}

		if err := os.WriteFile(blobFilename(dirname, region), data, 0644); err != nil {
			return stats, fmt.Errorf("failed to write region 0x%x: %w", region.Address, err)
		}
		stats.Saved++
	}

	return stats, nil
}

// Load replaces the dump's contents with a dump directory written by WriteDump
func (p *ProcessDump) Load(dirname string) error {
	metadataBytes, err := os.ReadFile(filepath.Join(dirname, metadataFile))
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	mmBytes, err := os.ReadFile(filepath.Join(dirname, memoryMapFile))
	if err != nil {
		return fmt.Errorf("failed to read memory map: %w", err)
	}

	var mm []memory_map.MemoryMapItem
	if err := json.Unmarshal(mmBytes, &mm); err != nil {
		return fmt.Errorf("failed to unmarshal memory map: %w", err)
	}
	memory_map.Sort(mm)

	blobs := make(map[uint64][]byte)
	for _, region := range mm {
		data, err := os.ReadFile(blobFilename(dirname, region))
		if errors.Is(err, os.ErrNotExist) {
			continue // Blob not saved (e.g. too large or not readable)
		}
		if err != nil {
			return fmt.Errorf("failed to read blob for region 0x%x: %w", region.Address, err)
		}
		blobs[region.Address] = data
	}

	p.mu.Lock()
	p.pid = metadata.PID
	p.name = metadata.Name
	p.memoryMap = mm
	p.blobs = blobs
	p.alive = true
	p.mu.Unlock()

	return nil
}

// LoadDump is a convenience wrapper around NewProcessDump and Load
func LoadDump(dirname string) (*ProcessDump, error) {
	dump := NewProcessDump()
	if err := dump.Load(dirname); err != nil {
		return nil, err
	}
	return dump, nil
}
