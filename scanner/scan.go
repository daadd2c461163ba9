package scanner

import (
	"bytes"
	"encoding/binary"
	"sort"

	"memcheetah/value"
)

// Hit is a match at Address. Raw holds the bytes covering every candidate width.
type Hit struct {
	Address    uint64
	Raw        []byte
	Candidates value.Candidates
}

// ScanBuffer finds target in data, which was read from base.
func ScanBuffer(data []byte, base uint64, target *value.Target) []Hit {
	if w, ok := target.Candidates.Width(); ok {
		switch {
		case w.IsInteger():
			return scanExact(data, base, target.Bytes(w), w.Size(), w)
		case w.IsFloat():
			return scanFloat(data, base, target, w)
		case w == value.Str:
			return scanString(data, base, target)
		case w == value.Raw:
			return scanPattern(data, base, target)
		}
	}
	return scanUnknown(data, base, target)
}

func newHit(data []byte, base uint64, off, size int, cands value.Candidates) Hit {
	return Hit{
		Address:    base + uint64(off),
		Raw:        bytes.Clone(data[off : off+size]),
		Candidates: cands,
	}
}

// scanExact finds needle at offsets that are multiples of stride.
func scanExact(data []byte, base uint64, needle []byte, stride int, w value.Width) []Hit {
	var hits []Hit
	forEachIndex(data, needle, func(pos int) {
		if pos%stride == 0 {
			hits = append(hits, newHit(data, base, pos, len(needle), value.Concrete(w)))
		}
	})
	return hits
}

func scanFloat(data []byte, base uint64, target *value.Target, w value.Width) []Hit {
	var hits []Hit
	size := w.Size()
	for off := 0; off+size <= len(data); off += size {
		if value.MatchTarget(data[off:off+size], w, target) {
			hits = append(hits, newHit(data, base, off, size, value.Concrete(w)))
		}
	}
	return hits
}

// scanUnknown tries every candidate width at every byte offset and keeps the widths that match.
func scanUnknown(data []byte, base uint64, target *value.Target) []Hit {
	widths := target.Candidates.Widths()
	if len(widths) == 0 {
		return nil
	}

	// Integer encodings of one number share their low byte, so without float
	// candidates the scan can jump between occurrences of that byte.
	var lead []byte
	hasFloat := false
	for _, w := range widths {
		if w.IsFloat() {
			hasFloat = true
		} else if lead == nil {
			lead = target.Bytes(w)[:1]
		}
	}

	var hits []Hit
	for off := 0; off < len(data); off++ {
		if !hasFloat {
			j := bytes.IndexByte(data[off:], lead[0])
			if j < 0 {
				break
			}
			off += j
		}

		var passed value.Candidates
		size := 0
		for _, w := range widths {
			if off+w.Size() > len(data) {
				continue
			}
			if value.MatchTarget(data[off:off+w.Size()], w, target) {
				passed |= value.Concrete(w)
				size = max(size, w.Size())
			}
		}
		if !passed.IsEmpty() {
			hits = append(hits, newHit(data, base, off, size, passed))
		}
	}
	return hits
}

func isASCIIPrintable(b uint16) bool {
	return (b >= 0x20 && b <= 0x7E) || b == '\t' || b == '\r' || b == '\n'
}

func isBoundary(b byte) bool { return b == 0 || !isASCIIPrintable(uint16(b)) }

func isBoundary16(u uint16) bool { return u == 0 || !isASCIIPrintable(u) }

// scanString finds UTF-8 and even aligned UTF-16LE occurrences that are not part of a
// longer printable run.
func scanString(data []byte, base uint64, target *value.Target) []Hit {
	var hits []Hit

	needle := target.Bytes(value.Str)
	forEachIndex(data, needle, func(pos int) {
		end := pos + len(needle)
		okPrev := pos == 0 || isBoundary(data[pos-1])
		okNext := end >= len(data) || isBoundary(data[end])
		if okPrev && okNext {
			hits = append(hits, newHit(data, base, pos, len(needle), value.Concrete(value.Str)))
		}
	})

	wide := target.UTF16
	if len(wide) >= 2 {
		forEachIndex(data, wide, func(pos int) {
			if pos%2 != 0 {
				return
			}
			end := pos + len(wide)
			okPrev := pos < 2 || isBoundary16(binary.LittleEndian.Uint16(data[pos-2:]))
			okNext := end+1 >= len(data) || isBoundary16(binary.LittleEndian.Uint16(data[end:]))
			if okPrev && okNext {
				hits = append(hits, newHit(data, base, pos, len(wide), value.Concrete(value.Str)))
			}
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Address < hits[j].Address })
	return hits
}

// scanPattern anchors on the longest literal run of the pattern, then verifies the mask.
func scanPattern(data []byte, base uint64, target *value.Target) []Hit {
	aob := target.AOB
	n := len(aob.Pattern)

	var hits []Hit
	litOff, literal := aob.Literal()

	forEachIndex(data, literal, func(pos int) {
		start := pos - litOff
		if start < 0 || start+n > len(data) {
			return
		}
		if aob.Match(data[start:]) {
			hits = append(hits, newHit(data, base, start, n, value.Concrete(value.Raw)))
		}
	})
	return hits
}

// forEachIndex calls fn for every, possibly overlapping, occurrence of needle.
func forEachIndex(data, needle []byte, fn func(pos int)) {
	if len(needle) == 0 {
		return
	}
	for i := 0; i+len(needle) <= len(data); {
		j := bytes.Index(data[i:], needle)
		if j < 0 {
			return
		}
		fn(i + j)
		i += j + 1
	}
}
