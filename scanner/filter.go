// Package scanner finds target values inside blocks of process memory.
package scanner

import (
	"strings"

	"memcheetah/process/memory_map"
)

const (
	vsyscallAddress = 0xffffffffff600000
	userSpaceLimit  = 0x7fffffffffff
)

// DefaultExcludePrefixes are backing paths that hold libraries and devices rather than game state.
var DefaultExcludePrefixes = []string{"/usr/", "/lib/", "/lib64/", "/dev/", "/proc/", "/sys/"}

var pseudoRegions = map[string]bool{
	"[vvar]":        true,
	"[vvar_vclock]": true,
	"[vdso]":        true,
	"[vsyscall]":    true,
}

// FilterOptions tunes which regions are worth scanning.
type FilterOptions struct {
	// ExcludePrefixes drops regions backed by files under these paths; nil means DefaultExcludePrefixes.
	ExcludePrefixes []string

	// IncludeReadOnly keeps readable regions without write permission, e.g. code for byte patterns.
	IncludeReadOnly bool
}

// Filter returns the regions likely to hold mutable program data. Dropping a real data
// region is acceptable; keeping an unreadable one is not.
func Filter(regions []memory_map.MemoryMapItem, opts FilterOptions) []memory_map.MemoryMapItem {
	prefixes := opts.ExcludePrefixes
	if prefixes == nil {
		prefixes = DefaultExcludePrefixes
	}

	var out []memory_map.MemoryMapItem
	for _, region := range regions {
		if skipRegion(region, prefixes, opts.IncludeReadOnly) {
			continue
		}
		out = append(out, region)
	}
	return out
}

func skipRegion(region memory_map.MemoryMapItem, prefixes []string, includeReadOnly bool) bool {
	if region.Address == vsyscallAddress || region.Size == 0 {
		return true
	}
	if !region.IsReadable() {
		return true
	}
	if !region.IsWritable() && !includeReadOnly {
		return true
	}
	if region.Address > userSpaceLimit {
		return true
	}
	if pseudoRegions[region.Path] {
		return true
	}
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(region.Path, prefix) {
			return true
		}
	}
	return false
}
