package process

import (
	"bytes"
	"fmt"
)

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

// AOB (Array of Bytes) represents a pattern to search for in memory
type AOB struct {
	Pattern []byte // The byte pattern to search for
	Mask    []byte // Optional mask where 0xFF means exact match and 0x00 means wildcard
}

// IsValid checks if the AOB pattern is valid
func (aob AOB) IsValid() bool {
	return len(aob.Pattern) > 0 && len(aob.Pattern) == len(aob.Mask)
}

// Literal returns the longest run of fully masked bytes and its offset in the pattern.
// Scanners use it as the anchor for substring search before verifying wildcards.
func (aob AOB) Literal() (offset int, literal []byte) {
	best, bestLen := 0, 0
	start := -1
	for i := 0; i <= len(aob.Mask); i++ {
		if i < len(aob.Mask) && aob.Mask[i] == 0xFF {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start > bestLen {
			best, bestLen = start, i-start
		}
		start = -1
	}
	return best, aob.Pattern[best : best+bestLen]
}

// Match reports whether data starts with the masked pattern.
func (aob AOB) Match(data []byte) bool {
	if len(data) < len(aob.Pattern) {
		return false
	}
	for j := range aob.Pattern {
		if data[j]&aob.Mask[j] != aob.Pattern[j]&aob.Mask[j] {
			return false
		}
	}
	return true
}

func NewAOB(pattern, mask []byte) (AOB, error) {
	if len(pattern) == 0 {
		return AOB{}, fmt.Errorf("empty pattern")
	}
	if len(mask) == 0 {
		mask = bytes.Repeat([]byte{0xFF}, len(pattern))
	}
	if len(pattern) != len(mask) {
		return AOB{}, fmt.Errorf("pattern and mask must be of the same length")
	}
	return AOB{Pattern: pattern, Mask: mask}, nil
}
