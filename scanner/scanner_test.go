package scanner

import (
	"encoding/binary"
	"testing"

	"memcheetah/process"
	"memcheetah/process/memory_map"
	"memcheetah/process_blob"
	"memcheetah/value"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, text string, typ value.Type) *value.Target {
	t.Helper()
	target, err := value.Parse(text, typ)
	require.NoError(t, err)
	return target
}

func addresses(hits []Hit) []uint64 {
	out := make([]uint64, len(hits))
	for i, h := range hits {
		out[i] = h.Address
	}
	return out
}

func TestFilter(t *testing.T) {
	regions := []memory_map.MemoryMapItem{
		{Address: 0x1000, Size: 0x1000, Perms: "rw-p", Path: "[heap]"},
		{Address: 0x2000, Size: 0x1000, Perms: "r--p", Path: "/home/user/game"},
		{Address: 0x3000, Size: 0x1000, Perms: "rw-p", Path: "/usr/lib/libc.so.6"},
		{Address: 0x4000, Size: 0x1000, Perms: "-w-p"},
		{Address: 0x5000, Size: 0, Perms: "rw-p"},
		{Address: 0x6000, Size: 0x1000, Perms: "rw-p", Path: "[vvar]"},
		{Address: 0x7000, Size: 0x1000, Perms: "rw-p"},
		{Address: 0xffffffffff600000, Size: 0x1000, Perms: "rw-p"},
		{Address: 0x800000000000, Size: 0x1000, Perms: "rw-p"},
	}

	kept := Filter(regions, FilterOptions{})
	require.Len(t, kept, 2)
	assert.Equal(t, uint64(0x1000), kept[0].Address)
	assert.Equal(t, uint64(0x7000), kept[1].Address)

	kept = Filter(regions, FilterOptions{IncludeReadOnly: true, ExcludePrefixes: []string{}})
	assert.Len(t, kept, 4)
}

func TestChunks(t *testing.T) {
	regions := []memory_map.MemoryMapItem{
		{Address: 0x10000, Size: 100},
		{Address: 0x20000, Size: 16},
	}

	chunks := Chunks(regions, 40, 3)
	require.Len(t, chunks, 4)
	assert.Equal(t, Chunk{Address: 0x10000, Size: 43, Owned: 40, Region: 0}, chunks[0])
	assert.Equal(t, Chunk{Address: 0x10028, Size: 43, Owned: 40, Region: 0}, chunks[1])
	assert.Equal(t, Chunk{Address: 0x10050, Size: 20, Owned: 20, Region: 0}, chunks[2])
	assert.Equal(t, Chunk{Address: 0x20000, Size: 16, Owned: 16, Region: 1}, chunks[3])

	// rounded down to keep 8 byte alignment
	chunks = Chunks(regions[:1], 30, 0)
	assert.Equal(t, uint(24), chunks[0].Owned)
}

func TestScanInt(t *testing.T) {
	data := make([]byte, 32)
	binary.LittleEndian.PutUint32(data[8:], 100)
	binary.LittleEndian.PutUint32(data[21:], 100) // unaligned, ignored

	hits := ScanBuffer(data, 0x1000, mustParse(t, "100", value.Int))
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(0x1008), hits[0].Address)
	assert.Equal(t, []byte{100, 0, 0, 0}, hits[0].Raw)
	assert.Equal(t, value.Concrete(value.I32), hits[0].Candidates)
}

func TestScanFloat(t *testing.T) {
	data := make([]byte, 24)
	binary.LittleEndian.PutUint64(data[8:], 0x4059000000000000) // 100.0

	hits := ScanBuffer(data, 0, mustParse(t, "100.4", value.Double))
	assert.Equal(t, []uint64{8}, addresses(hits))

	hits = ScanBuffer(data, 0, mustParse(t, "102", value.Double))
	assert.Empty(t, hits)
}

func TestScanUnknown(t *testing.T) {
	data := []byte{7, 7, 42, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF, 0, 0}

	hits := ScanBuffer(data, 0x1000, mustParse(t, "42", value.Unknown(1, 8)))
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(0x1002), hits[0].Address)
	assert.Equal(t, value.Set(value.I8, value.I16, value.I32), hits[0].Candidates)
	assert.Len(t, hits[0].Raw, 4)

	// two byte minimum drops the byte view
	hits = ScanBuffer(data, 0x1000, mustParse(t, "42", value.Unknown(2, 8)))
	require.Len(t, hits, 1)
	assert.Equal(t, value.Set(value.I16, value.I32), hits[0].Candidates)
}

func TestScanString(t *testing.T) {
	data := []byte("\x00Hero\x00xHeroes\x00\x00\x00")
	data = append(data, 'H', 0, 'e', 0, 'r', 0, 'o', 0, 0, 0)

	hits := ScanBuffer(data, 0, mustParse(t, "Hero", value.String(0)))
	require.Len(t, hits, 2)
	assert.Equal(t, uint64(1), hits[0].Address)
	assert.Equal(t, []byte("Hero"), hits[0].Raw)
	assert.Equal(t, uint64(16), hits[1].Address)
	assert.Len(t, hits[1].Raw, 8)
}

func TestScanPattern(t *testing.T) {
	data := []byte{0x90, 0x48, 0x8B, 0x11, 0x05, 0x48, 0x8B, 0x22, 0x06, 0x48, 0x8B}

	hits := ScanBuffer(data, 0x400000, mustParse(t, "48 8B ?? 05", value.Pattern))
	assert.Equal(t, []uint64{0x400001}, addresses(hits))

	hits = ScanBuffer(data, 0x400000, mustParse(t, "48 8B ??", value.Pattern))
	assert.Equal(t, []uint64{0x400001, 0x400005}, addresses(hits))
}

func TestScanChunkBoundary(t *testing.T) {
	dump := process_blob.NewProcessDump()
	data := make([]byte, 64)
	binary.LittleEndian.PutUint32(data[28:], 0xCAFE)
	copy(data[37:], "Hero") // crosses the first chunk end
	copy(data[44:], "Hero") // inside the overlap tail of the first chunk
	dump.AddRegion(0x1000, 64, "rw-p", "", data)

	regions, err := dump.GetMemoryMap()
	require.NoError(t, err)

	var found []uint64
	target := mustParse(t, "Hero", value.String(0))
	for _, c := range Chunks(regions, 40, Overlap(target)) {
		hits, err := ScanChunk(dump, c, target)
		require.NoError(t, err)
		found = append(found, addresses(hits)...)
	}
	assert.Equal(t, []uint64{0x1000 + 37, 0x1000 + 44}, found, "each hit is owned by exactly one chunk")

	found = nil
	target = mustParse(t, "0xCAFE", value.Int)
	for _, c := range Chunks(regions, 16, Overlap(target)) {
		hits, err := ScanChunk(dump, c, target)
		require.NoError(t, err)
		found = append(found, addresses(hits)...)
	}
	assert.Equal(t, []uint64{0x1000 + 28}, found)
}

func TestScanChunkReadError(t *testing.T) {
	dump := process_blob.NewProcessDump()
	dump.AddRegion(0x1000, 64, "rw-p", "", nil)

	_, err := ScanChunk(dump, Chunk{Address: 0x1000, Size: 64, Owned: 64}, mustParse(t, "1", value.Int))
	assert.ErrorIs(t, err, ErrRegionRead)
	var re *process.ReadError
	assert.ErrorAs(t, err, &re)
}
