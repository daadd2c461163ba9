// Package hexdump renders process memory around an address.
package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"unicode"

	"memcheetah/coloransi"
	"memcheetah/process/memory_map"
)

// Options defines options for customizing the hexdump output
type Options struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// Address is the address of data[0], printed in the offset column
	Address uint64

	// HighlightStart and HighlightLen mark a byte range to emphasise, usually a hit
	HighlightStart int
	HighlightLen   int

	// MemoryMap, when set, annotates 8-byte aligned values that point into a mapped region
	MemoryMap []memory_map.MemoryMapItem

	OffsetColor    coloransi.ColorCode
	HexColor       coloransi.ColorCode
	ZeroColor      coloransi.ColorCode
	HighlightColor coloransi.ColorCode
	PointerColor   coloransi.ColorCode
}

// DefaultOptions returns the default hexdump options
func DefaultOptions() Options {
	return Options{
		BytesPerLine:   16,
		OffsetColor:    coloransi.Cyan,
		HexColor:       coloransi.Green,
		ZeroColor:      coloransi.BrightBlack,
		HighlightColor: coloransi.ColorOrange,
		PointerColor:   coloransi.Yellow,
	}
}

// Dump creates a hex dump of the given data with specified options
func Dump(data []byte, options Options) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpToWriter writes a hex dump of the given data to the specified writer
func DumpToWriter(writer io.Writer, data []byte, options Options) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	memory_map.Sort(options.MemoryMap)

	for offset := 0; offset < len(data); offset += options.BytesPerLine {
		end := min(offset+options.BytesPerLine, len(data))
		formatLine(writer, data[offset:end], offset, options)
	}
}

func (o Options) highlighted(i int) bool {
	return o.HighlightLen > 0 && i >= o.HighlightStart && i < o.HighlightStart+o.HighlightLen
}

// formatLine formats a single line of the hex dump; offset is the index of line[0] in the dump
func formatLine(writer io.Writer, line []byte, offset int, options Options) {
	fmt.Fprint(writer, coloransi.Foreground(options.OffsetColor, fmt.Sprintf("%012x", options.Address+uint64(offset))), "  ")

	for i := 0; i < options.BytesPerLine; i++ {
		if i == options.BytesPerLine/2 {
			fmt.Fprint(writer, " ")
		}
		if i >= len(line) {
			fmt.Fprint(writer, "   ")
			continue
		}

		b := line[i]
		hex := fmt.Sprintf("%02x", b)
		switch {
		case options.highlighted(offset + i):
			hex = coloransi.Color(coloransi.Black, options.HighlightColor, hex)
		case b == 0:
			hex = coloransi.Foreground(options.ZeroColor, hex)
		default:
			hex = coloransi.Foreground(options.HexColor, hex)
		}
		fmt.Fprint(writer, hex, " ")
	}

	fmt.Fprint(writer, " |")
	for _, b := range line {
		c := rune(b)
		if b < 0x80 && unicode.IsPrint(c) {
			fmt.Fprint(writer, string(c))
		} else {
			fmt.Fprint(writer, ".")
		}
	}
	fmt.Fprint(writer, strings.Repeat(" ", options.BytesPerLine-len(line)), "|")

	if len(options.MemoryMap) > 0 {
		var ptrs []string
		for i := 0; i+8 <= len(line); i += 8 {
			if (options.Address+uint64(offset+i))%8 != 0 {
				continue
			}
			ptr := binary.LittleEndian.Uint64(line[i:])
			if region := memory_map.FindRegion(ptr, options.MemoryMap); region != nil {
				ptrs = append(ptrs, coloransi.Foreground(options.PointerColor, fmt.Sprintf("0x%x", ptr)))
			}
		}
		if len(ptrs) > 0 {
			fmt.Fprint(writer, " ", strings.Join(ptrs, " "))
		}
	}

	fmt.Fprintln(writer)
}
