package scanner

import (
	"errors"
	"fmt"

	"memcheetah/process"
	"memcheetah/process/memory_map"
	"memcheetah/value"
)

// DefaultChunkSize bounds a single read.
const DefaultChunkSize = 50 * 1024 * 1024

// ErrRegionRead wraps accessor failures for one chunk.
var ErrRegionRead = errors.New("region read failed")

// Chunk is one read-and-scan unit. It spans Size bytes but only owns hits starting in the
// first Owned bytes; the tail overlaps the next chunk of the same region so matches crossing
// the boundary are seen whole.
type Chunk struct {
	Address uint64
	Size    uint
	Owned   uint
	Region  int // index into the region slice passed to Chunks
}

// Overlap is the number of bytes consecutive chunks must share for target.
// Text searches keep one more byte so the boundary check can see past the match.
func Overlap(target *value.Target) uint {
	n := target.MaxLen()
	if n == 0 {
		return 0
	}
	if target.Type.Kind == value.KindString {
		return uint(n)
	}
	return uint(n - 1)
}

// Chunks splits regions into blocks of at most maxBlock owned bytes. maxBlock is rounded
// down to a multiple of 8 so chunk starts keep the alignment of their region.
func Chunks(regions []memory_map.MemoryMapItem, maxBlock, overlap uint) []Chunk {
	maxBlock &^= 7
	if maxBlock == 0 {
		maxBlock = DefaultChunkSize
	}

	var chunks []Chunk
	for i, region := range regions {
		for off := uint(0); off < region.Size; off += maxBlock {
			owned := min(maxBlock, region.Size-off)
			size := min(owned+overlap, region.Size-off)
			chunks = append(chunks, Chunk{
				Address: region.Address + uint64(off),
				Size:    size,
				Owned:   owned,
				Region:  i,
			})
		}
	}
	return chunks
}

// ScanChunk reads c and scans it. Read failures come back wrapped in ErrRegionRead.
func ScanChunk(r process.MemoryReader, c Chunk, target *value.Target) ([]Hit, error) {
	data, err := r.ReadMemory(process.ProcessMemoryAddress(c.Address), process.ProcessMemorySize(c.Size))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegionRead, err)
	}

	hits := ScanBuffer(data, c.Address, target)

	owned := hits[:0]
	for _, hit := range hits {
		if hit.Address-c.Address < uint64(c.Owned) {
			owned = append(owned, hit)
		}
	}
	return owned, nil
}
