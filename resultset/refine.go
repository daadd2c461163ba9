package resultset

import (
	"bytes"
	"context"
	"fmt"

	"memcheetah/process"
	"memcheetah/value"

	"golang.org/x/sync/errgroup"
)

// batchSpan is the largest address range covered by one read during refinement.
const batchSpan = 4096

// RefineReport counts what a refinement did.
type RefineReport struct {
	Before       int
	Kept         int
	Narrowed     int // hits left with fewer candidate widths
	Dropped      int // failed the comparison
	ReadFailures int // could not be read any more
}

func (r RefineReport) String() string {
	return fmt.Sprintf("%d -> %d hits (%d narrowed, %d dropped, %d unreadable)",
		r.Before, r.Kept, r.Narrowed, r.Dropped, r.ReadFailures)
}

// Refine re-reads every hit and keeps those that pass c for at least one candidate width,
// narrowing the candidates to the passing ones. The previous hits are pushed to the undo
// stack on success. On cancellation or loss of the process the hits are left untouched.
func (s *ResultSet) Refine(ctx context.Context, c value.Comparator) (RefineReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.State()
	switch prev {
	case Closed:
		return RefineReport{}, ErrClosed
	case Empty:
		return RefineReport{}, ErrNoResults
	}
	if c.Op == value.EqualTo && c.Target == nil {
		return RefineReport{}, ErrNeedsValue
	}

	snap := s.snapshot()
	s.setState(Refining)

	hits, report, err := refineHits(ctx, s.proc, s.hits, c, s.opts.Workers)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.setState(prev)
		return RefineReport{}, err
	}

	s.pushUndo(snap)
	s.hits = hits
	s.totalHits = int64(len(hits))
	s.setState(HasRefinedResults)
	return report, nil
}

// readSize is the number of bytes needed to evaluate c on h.
func readSize(h Hit, c value.Comparator) int {
	n := max(len(h.Raw), h.Candidates.MaxSize())
	if c.Op == value.EqualTo && c.Target != nil && !h.Candidates.Intersect(value.Set(value.Str, value.Raw)).IsEmpty() {
		n = max(n, c.Target.MaxLen())
	}
	return n
}

// keepLen is the length of cur to store after h passed c.
func keepLen(h Hit, cur []byte, cands value.Candidates, c value.Comparator) int {
	if cands.Has(value.Str) && c.Op == value.EqualTo {
		if enc := c.Target.Bytes(value.Str); bytes.HasPrefix(cur, enc) {
			return len(enc)
		}
		return len(c.Target.UTF16)
	}
	if cands.Has(value.Str) || cands.Has(value.Raw) {
		return min(len(h.Raw), len(cur))
	}
	return cands.MaxSize()
}

type batch struct {
	start, end uint64
	hits       []Hit
}

// batches groups address sorted hits whose reads fit in one batchSpan window.
func batches(hits []Hit, c value.Comparator) []batch {
	var out []batch
	for _, h := range hits {
		end := h.Address + uint64(readSize(h, c))
		if n := len(out); n > 0 && end-out[n-1].start <= batchSpan {
			b := &out[n-1]
			b.hits = append(b.hits, h)
			b.end = max(b.end, end)
			continue
		}
		out = append(out, batch{start: h.Address, end: end, hits: []Hit{h}})
	}
	return out
}

type batchResult struct {
	kept     []Hit
	narrowed int
	dropped  int
	failed   int
}

func refineHits(ctx context.Context, r process.MemoryReader, hits []Hit, c value.Comparator, workers int) ([]Hit, RefineReport, error) {
	groups := batches(hits, c)
	results := make([]batchResult, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, b := range groups {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := refineBatch(r, b, c)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, RefineReport{}, err
	}

	report := RefineReport{Before: len(hits)}
	var kept []Hit
	for _, res := range results {
		kept = append(kept, res.kept...)
		report.Narrowed += res.narrowed
		report.Dropped += res.dropped
		report.ReadFailures += res.failed
	}
	report.Kept = len(kept)
	return kept, report, nil
}

// refineBatch reads the batch window once, falling back to one read per hit when the
// window is not readable as a whole.
func refineBatch(r process.MemoryReader, b batch, c value.Comparator) (batchResult, error) {
	var res batchResult

	window, err := r.ReadMemory(process.ProcessMemoryAddress(b.start), process.ProcessMemorySize(b.end-b.start))
	if err != nil && process.IsAttachError(err) {
		return res, err
	}

	for _, h := range b.hits {
		n := readSize(h, c)

		var cur []byte
		if window != nil {
			off := h.Address - b.start
			cur = window[off : off+uint64(n)]
		} else {
			cur, err = r.ReadMemory(process.ProcessMemoryAddress(h.Address), process.ProcessMemorySize(n))
			if err != nil {
				if process.IsAttachError(err) {
					return res, err
				}
				res.failed++
				continue
			}
		}

		passed := value.Narrow(h.Raw, cur, h.Candidates, c)
		if passed.IsEmpty() {
			res.dropped++
			continue
		}
		if passed != h.Candidates {
			res.narrowed++
		}

		res.kept = append(res.kept, Hit{
			Address:    h.Address,
			Raw:        bytes.Clone(cur[:keepLen(h, cur, passed, c)]),
			Candidates: passed,
		})
	}
	return res, nil
}
