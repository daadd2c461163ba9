package resultset

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"memcheetah/freeze"
	"memcheetah/process"
	"memcheetah/process_blob"
	"memcheetah/search"
	"memcheetah/value"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, text string, typ value.Type) *value.Target {
	t.Helper()
	target, err := value.Parse(text, typ)
	require.NoError(t, err)
	return target
}

func putInt(t *testing.T, dump *process_blob.ProcessDump, addr uint64, n int32) {
	t.Helper()
	b := binary.LittleEndian.AppendUint32(nil, uint32(n))
	require.NoError(t, dump.WriteMemory(process.ProcessMemoryAddress(addr), b))
}

func readInt(t *testing.T, dump *process_blob.ProcessDump, addr uint64) int32 {
	t.Helper()
	b, err := dump.ReadMemory(process.ProcessMemoryAddress(addr), 4)
	require.NoError(t, err)
	return int32(binary.LittleEndian.Uint32(b))
}

func newDump() *process_blob.ProcessDump {
	dump := process_blob.NewProcessDump()
	dump.AddRegion(0x1000, 0x100, "rw-p", "[heap]", make([]byte, 0x100))
	return dump
}

func TestIntScenario(t *testing.T) {
	ctx := context.Background()
	dump := newDump()
	putInt(t, dump, 0x1000, 100)

	rs := New(dump, value.Int, Options{})
	assert.Equal(t, Empty, rs.State())

	result, err := rs.StartSearch(ctx, parse(t, "100", value.Int))
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.TotalHits)
	assert.Equal(t, HasInitialResults, rs.State())
	hits := rs.Hits()
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(0x1000), hits[0].Address)

	putInt(t, dump, 0x1000, 90)

	report, err := rs.Refine(ctx, value.Comparator{Op: value.Decreased})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Kept)
	assert.Equal(t, HasRefinedResults, rs.State())
	assert.Equal(t, "90", rs.Hits()[0].Value())

	report, err = rs.Refine(ctx, value.Comparator{Op: value.EqualTo, Target: parse(t, "90", value.Int)})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Kept)

	require.NoError(t, rs.Freeze(0x1000, "90"))
	assert.Equal(t, int32(90), readInt(t, dump, 0x1000), "freeze has no immediate effect")

	loop := freeze.NewLoop(dump, 0)
	loop.Add(rs)

	putInt(t, dump, 0x1000, 5)
	assert.Equal(t, 1, loop.Tick())
	assert.Equal(t, int32(90), readInt(t, dump, 0x1000))

	hits = rs.Hits()
	assert.True(t, hits[0].Frozen)
	assert.Equal(t, []byte{90, 0, 0, 0}, hits[0].Pinned)

	require.NoError(t, rs.Unfreeze(0x1000))
	putInt(t, dump, 0x1000, 5)
	assert.Equal(t, 0, loop.Tick())
	assert.Equal(t, int32(5), readInt(t, dump, 0x1000))
	assert.ErrorIs(t, rs.Unfreeze(0x1000), ErrNotFrozen)
}

func TestUnknownScenario(t *testing.T) {
	ctx := context.Background()
	dump := newDump()
	require.NoError(t, dump.WriteMemory(0x1010, []byte{42, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF}))

	typ := value.Unknown(1, 8)
	rs := New(dump, typ, Options{})
	_, err := rs.StartSearch(ctx, parse(t, "42", typ))
	require.NoError(t, err)

	hits := rs.Hits()
	require.Len(t, hits, 1)
	assert.Equal(t, uint64(0x1010), hits[0].Address)
	assert.Equal(t, value.Set(value.I8, value.I16, value.I32), hits[0].Candidates)

	// none of the integer views can be 42.5
	report, err := rs.Refine(ctx, value.Comparator{Op: value.EqualTo, Target: parse(t, "42.5", typ)})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Dropped)
	assert.Empty(t, rs.Hits())

	require.NoError(t, rs.Undo())
	require.Len(t, rs.Hits(), 1)

	// only the byte view changes
	require.NoError(t, dump.WriteMemory(0x1011, []byte{1}))
	report, err = rs.Refine(ctx, value.Comparator{Op: value.Unchanged})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Narrowed)
	hits = rs.Hits()
	require.Len(t, hits, 1)
	w, ok := hits[0].Candidates.Width()
	require.True(t, ok, "collapsed to a concrete width")
	assert.Equal(t, value.I8, w)
	assert.Len(t, hits[0].Raw, 1)
}

func TestUnknownFloatNarrowing(t *testing.T) {
	ctx := context.Background()
	dump := newDump()
	f := binary.LittleEndian.AppendUint32(nil, 0x422A0000) // 42.5f
	require.NoError(t, dump.WriteMemory(0x1040, f))

	typ := value.Unknown(2, 8)
	rs := New(dump, typ, Options{})
	_, err := rs.StartSearch(ctx, parse(t, "42", typ))
	require.NoError(t, err)

	var found *Hit
	for _, h := range rs.Hits() {
		if h.Address == 0x1040 {
			found = &h
		}
	}
	require.NotNil(t, found, "42.5f is within tolerance of 42")
	assert.True(t, found.Candidates.Has(value.F32))

	_, err = rs.Refine(ctx, value.Comparator{Op: value.EqualTo, Target: parse(t, "42.5", typ)})
	require.NoError(t, err)
	hits := rs.Hits()
	require.Len(t, hits, 1)
	assert.Equal(t, value.Concrete(value.F32), hits[0].Candidates)
}

func TestUndoRestoresExactHits(t *testing.T) {
	ctx := context.Background()
	dump := newDump()
	for i := uint64(0); i < 8; i++ {
		putInt(t, dump, 0x1000+i*16, 7)
	}

	rs := New(dump, value.Int, Options{UndoLimit: 2})
	_, err := rs.StartSearch(ctx, parse(t, "7", value.Int))
	require.NoError(t, err)
	assert.ErrorIs(t, rs.Undo(), ErrNothingToUndo)

	before := rs.Hits()
	require.Len(t, before, 8)

	putInt(t, dump, 0x1000, 8)
	putInt(t, dump, 0x1010, 9)
	_, err = rs.Refine(ctx, value.Comparator{Op: value.Changed})
	require.NoError(t, err)
	changed := rs.Hits()
	require.Len(t, changed, 2)

	_, err = rs.Refine(ctx, value.Comparator{Op: value.Unchanged})
	require.NoError(t, err)
	_, err = rs.Refine(ctx, value.Comparator{Op: value.Unchanged})
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Stats().UndoDepth, "bounded by the limit")

	require.NoError(t, rs.Undo())
	require.NoError(t, rs.Undo())
	assert.Equal(t, changed, rs.Hits())
	assert.Equal(t, HasInitialResults, rs.State())
	assert.ErrorIs(t, rs.Undo(), ErrNothingToUndo)
}

func TestUnchangedKeepsOnlyStableHits(t *testing.T) {
	ctx := context.Background()
	dump := newDump()
	for i := uint64(0); i < 4; i++ {
		putInt(t, dump, 0x1000+i*8, 3)
	}

	rs := New(dump, value.Int, Options{Workers: 2})
	_, err := rs.StartSearch(ctx, parse(t, "3", value.Int))
	require.NoError(t, err)

	putInt(t, dump, 0x1008, 4)
	report, err := rs.Refine(ctx, value.Comparator{Op: value.Unchanged})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Kept)
	for _, h := range rs.Hits() {
		assert.NotEqual(t, uint64(0x1008), h.Address)
		assert.Equal(t, "3", h.Value())
	}
}

func TestRefineDropsUnmapped(t *testing.T) {
	ctx := context.Background()
	dump := newDump()
	dump.AddRegion(0x2000, 0x100, "rw-p", "", make([]byte, 0x100))
	putInt(t, dump, 0x1000, 11)
	putInt(t, dump, 0x2000, 11)

	rs := New(dump, value.Int, Options{})
	_, err := rs.StartSearch(ctx, parse(t, "11", value.Int))
	require.NoError(t, err)
	require.Len(t, rs.Hits(), 2)

	dump.Unmap(0x2000)
	report, err := rs.Refine(ctx, value.Comparator{Op: value.Unchanged})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ReadFailures)
	assert.Equal(t, 1, report.Kept)
}

func TestRefineProcessGone(t *testing.T) {
	ctx := context.Background()
	dump := newDump()
	putInt(t, dump, 0x1000, 11)

	rs := New(dump, value.Int, Options{})
	_, err := rs.StartSearch(ctx, parse(t, "11", value.Int))
	require.NoError(t, err)

	dump.SetAlive(false)
	_, err = rs.Refine(ctx, value.Comparator{Op: value.Unchanged})
	assert.True(t, process.IsAttachError(err))
	assert.Equal(t, HasInitialResults, rs.State())
	assert.Len(t, rs.Hits(), 1)
	assert.Equal(t, 0, rs.Stats().UndoDepth)
}

func TestRefineErrors(t *testing.T) {
	ctx := context.Background()
	rs := New(newDump(), value.Int, Options{})

	_, err := rs.Refine(ctx, value.Comparator{Op: value.Changed})
	assert.ErrorIs(t, err, ErrNoResults)

	_, err = rs.StartSearch(ctx, parse(t, "0", value.Int))
	require.NoError(t, err)
	_, err = rs.Refine(ctx, value.Comparator{Op: value.EqualTo})
	assert.ErrorIs(t, err, ErrNeedsValue)

	rs.Close()
	assert.Equal(t, Closed, rs.State())
	_, err = rs.Refine(ctx, value.Comparator{Op: value.Changed})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = rs.StartSearch(ctx, parse(t, "0", value.Int))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSetValue(t *testing.T) {
	ctx := context.Background()
	dump := newDump()
	dump.AddRegion(0x3000, 0x10, "rw-p", "", make([]byte, 0x10))
	putInt(t, dump, 0x1000, 100)
	putInt(t, dump, 0x3000, 100)

	rs := New(dump, value.Int, Options{})
	_, err := rs.StartSearch(ctx, parse(t, "100", value.Int))
	require.NoError(t, err)

	require.NoError(t, rs.SetValue(0x1000, "250"))
	assert.Equal(t, int32(250), readInt(t, dump, 0x1000))
	assert.Equal(t, "250", rs.Hits()[0].Value())

	var pe *value.ParseError
	assert.ErrorAs(t, rs.SetValue(0x1000, "lots"), &pe)
	assert.ErrorIs(t, rs.SetValue(0x1004, "1"), ErrUnknownAddress)

	dump.Unmap(0x3000)
	var we *process.WriteError
	assert.ErrorAs(t, rs.SetValue(0x3000, "1"), &we)
	assert.Len(t, rs.Hits(), 1, "failed write drops the hit")
}

func TestFreezeAutoUnfreeze(t *testing.T) {
	ctx := context.Background()
	dump := newDump()
	dump.AddRegion(0x3000, 0x10, "rw-p", "", make([]byte, 0x10))
	putInt(t, dump, 0x1000, 1)
	putInt(t, dump, 0x3000, 1)

	rs := New(dump, value.Int, Options{})
	_, err := rs.StartSearch(ctx, parse(t, "1", value.Int))
	require.NoError(t, err)
	require.NoError(t, rs.Freeze(0x1000, "50"))
	require.NoError(t, rs.Freeze(0x3000, "60"))

	loop := freeze.NewLoop(dump, 0)
	loop.Add(rs)

	dump.Unmap(0x3000)
	assert.Equal(t, 1, loop.Tick())

	select {
	case n := <-loop.Notices():
		assert.Equal(t, uint64(0x3000), n.Address)
		assert.Error(t, n.Err)
	default:
		t.Fatal("expected a notice")
	}

	frozen := rs.Frozen()
	require.Len(t, frozen, 1)
	assert.Equal(t, uint64(0x1000), frozen[0].Address)
	assert.Equal(t, int32(50), readInt(t, dump, 0x1000))

	// a new search drops every pin
	_, err = rs.StartSearch(ctx, parse(t, "50", value.Int))
	require.NoError(t, err)
	assert.Empty(t, rs.Frozen())
}

func TestFreezeUnknownUsesWidestCandidate(t *testing.T) {
	ctx := context.Background()
	dump := newDump()
	require.NoError(t, dump.WriteMemory(0x1020, []byte{42, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF}))

	typ := value.Unknown(1, 8)
	rs := New(dump, typ, Options{})
	_, err := rs.StartSearch(ctx, parse(t, "42", typ))
	require.NoError(t, err)

	require.NoError(t, rs.Freeze(0x1020, "1000"))
	frozen := rs.Frozen()
	require.Len(t, frozen, 1)
	assert.Equal(t, []byte{0xE8, 0x03, 0, 0}, frozen[0].Bytes)
}

func TestUndoKeepsExactTotalOfCappedSearch(t *testing.T) {
	ctx := context.Background()
	dump := newDump()
	for addr := uint64(0x1000); addr < 0x1100; addr += 4 {
		putInt(t, dump, addr, 7)
	}

	rs := New(dump, value.Int, Options{})
	result, err := rs.StartSearch(ctx, parse(t, "7", value.Int), search.WithMaxResults(5))
	require.NoError(t, err)
	assert.Equal(t, int64(64), result.TotalHits)

	st := rs.Stats()
	assert.Equal(t, 5, st.Hits)
	assert.Equal(t, int64(64), st.TotalHits)
	assert.True(t, st.Truncated)

	_, err = rs.Refine(ctx, value.Comparator{Op: value.Unchanged})
	require.NoError(t, err)
	st = rs.Stats()
	assert.Equal(t, int64(5), st.TotalHits)
	assert.False(t, st.Truncated)

	require.NoError(t, rs.Undo())
	st = rs.Stats()
	assert.Equal(t, 5, st.Hits)
	assert.Equal(t, int64(64), st.TotalHits)
	assert.True(t, st.Truncated)
}

func TestFailedRefineLeavesUndoStack(t *testing.T) {
	dump := newDump()
	putInt(t, dump, 0x1000, 7)

	rs := New(dump, value.Int, Options{UndoLimit: 1})
	_, err := rs.StartSearch(context.Background(), parse(t, "7", value.Int))
	require.NoError(t, err)
	_, err = rs.Refine(context.Background(), value.Comparator{Op: value.Unchanged})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = rs.Refine(ctx, value.Comparator{Op: value.Unchanged})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, rs.Stats().UndoDepth)
	assert.Equal(t, HasRefinedResults, rs.State())
}

func TestFailedRescanKeepsPins(t *testing.T) {
	ctx := context.Background()
	dump := newDump()
	putInt(t, dump, 0x1000, 7)

	rs := New(dump, value.Int, Options{})
	_, err := rs.StartSearch(ctx, parse(t, "7", value.Int))
	require.NoError(t, err)
	require.NoError(t, rs.Freeze(0x1000, "9"))

	// a target without candidate widths is rejected by the search
	_, err = rs.StartSearch(ctx, &value.Target{Type: value.Int})
	require.Error(t, err)
	assert.Len(t, rs.Frozen(), 1)
	assert.Len(t, rs.Hits(), 1)
}

// Run with -race: the freeze loop snapshots pins while the tab is mutated.
func TestFreezeLoopConcurrentWithMutations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dump := newDump()
	putInt(t, dump, 0x1000, 90)
	putInt(t, dump, 0x1010, 90)

	rs := New(dump, value.Int, Options{Workers: 2})
	_, err := rs.StartSearch(ctx, parse(t, "90", value.Int))
	require.NoError(t, err)

	loop := freeze.NewLoop(dump, time.Millisecond)
	loop.Add(rs)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		loop.Run(ctx)
	}()

	equal90 := value.Comparator{Op: value.EqualTo, Target: parse(t, "90", value.Int)}
	for i := 0; i < 200; i++ {
		require.NoError(t, rs.Freeze(0x1000, "90"))
		_, err := rs.Refine(ctx, equal90)
		require.NoError(t, err)
		_ = rs.Frozen()
		require.NoError(t, rs.Undo())
		require.NoError(t, rs.Unfreeze(0x1000))
		if i%20 == 0 {
			_, err := rs.StartSearch(ctx, parse(t, "90", value.Int))
			require.NoError(t, err)
		}
	}

	require.NoError(t, rs.Freeze(0x1010, "90"))
	putInt(t, dump, 0x1010, 5)
	assert.Eventually(t, func() bool {
		v, err := process.Read[int32](dump, 0x1010)
		return err == nil && v == 90
	}, time.Second, time.Millisecond)

	cancel()
	wg.Wait()
}
