package process_test

import (
	"encoding/binary"
	"testing"

	"memcheetah/process"
	"memcheetah/process_blob"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	data := make([]byte, 0x100)
	binary.LittleEndian.PutUint64(data[0x10:], 0x1080) // base+0x10 -> 0x1080
	binary.LittleEndian.PutUint64(data[0x88:], 0x10c0) // 0x1080+8 -> 0x10c0
	binary.LittleEndian.PutUint32(data[0xc4:], 777)

	dump := process_blob.NewProcessDump()
	dump.AddRegion(0x1000, 0x100, "rw-p", "[heap]", data)

	addr, err := process.ResolvePath(dump, 0x1000, 0x10, 0x8, 0x4)
	require.NoError(t, err)
	assert.Equal(t, process.ProcessMemoryAddress(0x10c4), addr)

	v, err := process.Read[int32](dump, addr)
	require.NoError(t, err)
	assert.Equal(t, int32(777), v)

	addr, err = process.ResolvePath(dump, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, process.ProcessMemoryAddress(0x1000), addr)

	_, err = process.ResolvePath(dump, 0x1000, 0x20, 0)
	assert.ErrorContains(t, err, "null")

	_, err = process.ResolvePath(dump, 0x9000, 0, 0)
	assert.ErrorIs(t, err, process.ErrAddressNotMapped)
}
