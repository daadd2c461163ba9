package session

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"memcheetah/config"
	"memcheetah/process"
	"memcheetah/process_blob"
	"memcheetah/resultset"
	"memcheetah/value"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T) (*Session, *process_blob.ProcessDump) {
	t.Helper()
	dump := process_blob.NewProcessDump()
	dump.SetIdentity(1234, "game")
	data := make([]byte, 0x1000)
	binary.LittleEndian.PutUint32(data[0x40:], 100)
	copy(data[0x200:], "\x00PlayerOne\x00")
	dump.AddRegion(0x10000, 0x1000, "rw-p", "[heap]", data)
	dump.AddRegion(0x7f0000000000, 0x1000, "rw-p", "/usr/lib/libgame.so", data)

	cfg := config.DefaultConfig()
	cfg.Workers = 2
	cfg.FreezeInterval = 5 * time.Millisecond
	s := New(dump, cfg)
	t.Cleanup(func() { s.Close() })
	return s, dump
}

func readInt(t *testing.T, s *Session, addr uint64) int32 {
	t.Helper()
	v, err := process.Read[int32](s.Process(), process.ProcessMemoryAddress(addr))
	require.NoError(t, err)
	return v
}

func TestSessionSearchRefineFreeze(t *testing.T) {
	ctx := context.Background()
	s, dump := newSession(t)

	h, result, err := s.StartSearch(ctx, value.Int, "100")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.TotalHits, "library mappings are skipped")

	require.NoError(t, dump.WriteMemory(0x10040, binary.LittleEndian.AppendUint32(nil, 90)))
	report, err := s.Refine(ctx, h, value.Decreased, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Kept)

	report, err = s.Refine(ctx, h, value.EqualTo, "90")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Kept)

	_, err = s.Refine(ctx, h, value.EqualTo, "ninety")
	var pe *value.ParseError
	assert.ErrorAs(t, err, &pe)

	require.NoError(t, s.Freeze(h, 0x10040, "90"))
	s.Start(ctx)

	require.NoError(t, dump.WriteMemory(0x10040, binary.LittleEndian.AppendUint32(nil, 5)))
	assert.Eventually(t, func() bool {
		return readInt(t, s, 0x10040) == 90
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Unfreeze(h, 0x10040))
	require.NoError(t, s.Undo(h))

	tab, err := s.Tab(h)
	require.NoError(t, err)
	assert.Equal(t, 1, tab.Stats().UndoDepth)
}

func TestSessionStrings(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t)

	_, _, err := s.StartSearch(ctx, value.String(0), "Pl")
	var pe *value.ParseError
	require.ErrorAs(t, err, &pe)

	h, result, err := s.StartSearch(ctx, value.String(0), "PlayerOne")
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, uint64(0x10201), result.Hits[0].Address)

	result, err = s.Rescan(ctx, h, "Nobody")
	require.NoError(t, err)
	assert.Empty(t, result.Hits)
}

func TestSessionProcessExit(t *testing.T) {
	ctx := context.Background()
	s, dump := newSession(t)

	h, _, err := s.StartSearch(ctx, value.Int, "100")
	require.NoError(t, err)
	tab, err := s.Tab(h)
	require.NoError(t, err)
	require.NoError(t, s.CheckAlive())

	dump.SetAlive(false)
	assert.ErrorIs(t, s.CheckAlive(), ErrSessionInvalid)
	assert.Equal(t, resultset.Closed, tab.State())
	assert.Empty(t, s.Tabs())

	_, err = s.Refine(ctx, h, value.Changed, "")
	assert.ErrorIs(t, err, ErrSessionInvalid)
	_, _, err = s.StartSearch(ctx, value.Int, "1")
	assert.ErrorIs(t, err, ErrSessionInvalid)
	assert.ErrorIs(t, s.Freeze(h, 0x10040, "1"), ErrSessionInvalid)
}

func TestSessionRefineNoticesProcessLoss(t *testing.T) {
	ctx := context.Background()
	s, dump := newSession(t)

	h, _, err := s.StartSearch(ctx, value.Int, "100")
	require.NoError(t, err)

	dump.SetAlive(false)
	_, err = s.Refine(ctx, h, value.Unchanged, "")
	assert.ErrorIs(t, err, ErrSessionInvalid)
	assert.Error(t, s.Err())
}

func TestSessionTabs(t *testing.T) {
	ctx := context.Background()
	s, _ := newSession(t)

	h1, _, err := s.StartSearch(ctx, value.Int, "100")
	require.NoError(t, err)
	h2, _, err := s.StartSearch(ctx, value.Short, "100")
	require.NoError(t, err)
	assert.Equal(t, []Handle{h1, h2}, s.Tabs())

	require.NoError(t, s.CloseTab(h1))
	_, err = s.Tab(h1)
	assert.ErrorIs(t, err, ErrUnknownTab)
	assert.ErrorIs(t, s.CloseTab(h1), ErrUnknownTab)
	assert.Equal(t, []Handle{h2}, s.Tabs())
}

func TestSessionFreezeLoopNoticesProcessLoss(t *testing.T) {
	ctx := context.Background()
	s, dump := newSession(t)

	h, _, err := s.StartSearch(ctx, value.Int, "100")
	require.NoError(t, err)
	tab, err := s.Tab(h)
	require.NoError(t, err)
	require.NoError(t, s.Freeze(h, 0x10040, "90"))

	dump.SetAlive(false)
	assert.Equal(t, 0, s.Loop().Tick())

	assert.ErrorIs(t, s.Err(), process.ErrProcessGone)
	assert.Empty(t, s.Tabs())
	assert.Equal(t, resultset.Closed, tab.State())
	select {
	case n := <-s.Notices():
		t.Fatalf("process loss must not be reported as an unfreeze: %v", n)
	default:
	}
}

// brokenMaps is a process whose memory map cannot be refreshed.
type brokenMaps struct {
	*process_blob.ProcessDump
}

func (brokenMaps) UpdateMemoryMap() error { return errors.New("maps unreadable") }

func TestSessionFailedSearchDropsTab(t *testing.T) {
	ctx := context.Background()
	dump := process_blob.NewProcessDump()
	dump.AddRegion(0x10000, 0x100, "rw-p", "[heap]", make([]byte, 0x100))
	s := New(brokenMaps{dump}, config.DefaultConfig())
	t.Cleanup(func() { s.Close() })

	h, result, err := s.StartSearch(ctx, value.Int, "0")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionInvalid)
	assert.Equal(t, Handle(0), h)
	assert.Nil(t, result)
	assert.Empty(t, s.Tabs())
	assert.NoError(t, s.Err())
}
