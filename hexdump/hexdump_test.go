package hexdump

import (
	"encoding/binary"
	"strings"
	"testing"

	"memcheetah/coloransi"
	"memcheetah/process/memory_map"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDump(t *testing.T) {
	coloransi.Enabled = false
	defer func() { coloransi.Enabled = true }()

	data := []byte("Hello, memory!\x00\x01tail")
	opts := DefaultOptions()
	opts.Address = 0x1000
	out := Dump(data, opts)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "000000001000  48 65 6c 6c"))
	assert.True(t, strings.HasSuffix(lines[0], "|Hello, memory!..|"))
	assert.True(t, strings.HasPrefix(lines[1], "000000001010  74 61 69 6c"))
	assert.Equal(t, len(lines[0]), len(lines[1]), "short lines are padded")
}

func TestDumpPointers(t *testing.T) {
	coloransi.Enabled = false
	defer func() { coloransi.Enabled = true }()

	data := make([]byte, 16)
	binary.LittleEndian.PutUint64(data, 0x5000)
	binary.LittleEndian.PutUint64(data[8:], 0x9000)

	opts := DefaultOptions()
	opts.MemoryMap = []memory_map.MemoryMapItem{{Address: 0x5000, Size: 0x1000, Perms: "rw-p"}}
	out := Dump(data, opts)
	assert.Contains(t, out, "| 0x5000")
	assert.NotContains(t, out, "0x9000")
}

func TestDumpHighlight(t *testing.T) {
	opts := DefaultOptions()
	opts.HighlightStart = 2
	opts.HighlightLen = 1
	out := Dump([]byte{1, 2, 3, 4}, opts)
	assert.Contains(t, out, coloransi.Color(coloransi.Black, opts.HighlightColor, "03"))
}
