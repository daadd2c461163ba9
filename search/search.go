// Package search runs a scanner over many regions on a worker pool.
package search

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"memcheetah/process"
	"memcheetah/process/memory_map"
	"memcheetah/scanner"
	"memcheetah/value"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxResults is the number of hits materialized before the result is truncated.
const DefaultMaxResults = 100000

// Searcher holds configuration for the search
type Searcher struct {
	Workers    int
	MaxResults int
	ChunkSize  uint
	OnProgress func(Progress)
}

// Option is a function that configures a Searcher
type Option func(*Searcher)

func WithWorkers(n int) Option {
	return func(s *Searcher) {
		s.Workers = n
	}
}

// WithMaxResults caps the materialized hits; counting continues past the cap.
func WithMaxResults(n int) Option {
	return func(s *Searcher) {
		s.MaxResults = n
	}
}

func WithChunkSize(size uint) Option {
	return func(s *Searcher) {
		s.ChunkSize = size
	}
}

// WithProgress registers fn to be called after each chunk. Calls are serialized and the
// reported counters never decrease.
func WithProgress(fn func(Progress)) Option {
	return func(s *Searcher) {
		s.OnProgress = fn
	}
}

// WithProgressChannel delivers progress to ch, dropping updates the reader is not ready for.
func WithProgressChannel(ch chan<- Progress) Option {
	return WithProgress(func(p Progress) {
		select {
		case ch <- p:
		default:
		}
	})
}

// Progress is a snapshot of a running search.
type Progress struct {
	CompletedRegions int
	TotalRegions     int
	Materialized     int
	TotalHits        int64
}

// RegionFailure records a chunk that could not be read.
type RegionFailure struct {
	Address uint64
	Size    uint
	Err     error
}

// Result is the outcome of a search. Hits are in completion order, not address order.
type Result struct {
	Hits         []scanner.Hit
	TotalHits    int64
	TotalRegions int
	Completed    int
	Cancelled    bool
	Failed       []RegionFailure
}

// Truncated reports whether more hits were found than materialized.
func (r *Result) Truncated() bool {
	return r.TotalHits > int64(len(r.Hits))
}

func defaults() *Searcher {
	return &Searcher{
		Workers:    runtime.NumCPU(),
		MaxResults: DefaultMaxResults,
		ChunkSize:  scanner.DefaultChunkSize,
	}
}

var log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "search"))

// Search scans regions of r for target. Cancelling ctx stops the search between chunks
// and returns the partial result with Cancelled set and a nil error. Only a failure that
// invalidates the process itself is returned as an error.
func Search(ctx context.Context, r process.MemoryReader, regions []memory_map.MemoryMapItem, target *value.Target, options ...Option) (*Result, error) {
	s := defaults()
	for _, opt := range options {
		opt(s)
	}
	if s.Workers <= 0 {
		s.Workers = 1
	}

	if target == nil || target.Candidates.IsEmpty() {
		return nil, fmt.Errorf("no search target specified")
	}

	chunks := scanner.Chunks(regions, s.ChunkSize, scanner.Overlap(target))

	// chunks left per region, a region completes when its count reaches zero
	remaining := make([]atomic.Int32, len(regions))
	for _, c := range chunks {
		remaining[c.Region].Add(1)
	}

	var (
		completed    atomic.Int64
		totalHits    atomic.Int64
		materialized atomic.Int64
		scanned      atomic.Int64 // chunks actually scanned

		mu     sync.Mutex
		result = &Result{TotalRegions: len(regions)}
	)

	// regions without chunks count as done
	for i := range regions {
		if remaining[i].Load() == 0 {
			completed.Add(1)
		}
	}

	report := func() {
		// called with mu held so successive loads are ordered
		if s.OnProgress == nil {
			return
		}
		s.OnProgress(Progress{
			CompletedRegions: int(completed.Load()),
			TotalRegions:     len(regions),
			Materialized:     int(materialized.Load()),
			TotalHits:        totalHits.Load(),
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Workers)

	for _, c := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			hits, err := scanner.ScanChunk(r, c, target)
			if err != nil && process.IsAttachError(err) {
				return err
			}

			scanned.Add(1)
			totalHits.Add(int64(len(hits)))
			if remaining[c.Region].Add(-1) == 0 {
				completed.Add(1)
			}

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				log.Debugln("chunk", fmt.Sprintf("0x%x", c.Address), "size", c.Size, "skipped:", err)
				result.Failed = append(result.Failed, RegionFailure{Address: c.Address, Size: c.Size, Err: err})
			}

			room := s.MaxResults - len(result.Hits)
			if s.MaxResults <= 0 {
				room = len(hits)
			}
			if room > 0 {
				take := min(room, len(hits))
				result.Hits = append(result.Hits, hits[:take]...)
				materialized.Add(int64(take))
			}

			report()
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	result.TotalHits = totalHits.Load()
	result.Completed = int(completed.Load())
	// a context cancelled after the last chunk does not make the result partial
	result.Cancelled = scanned.Load() < int64(len(chunks))
	if result.Cancelled {
		result.Hits = completedOnly(result.Hits, regions, remaining)
	}

	log.Infoln("search", target.Type.String(), fmt.Sprintf("%q", target.Text), "found", result.TotalHits,
		"materialized", len(result.Hits), "failed chunks", len(result.Failed), "cancelled", result.Cancelled)

	return result, nil
}

// completedOnly drops hits from regions that were only partially scanned.
func completedOnly(hits []scanner.Hit, regions []memory_map.MemoryMapItem, remaining []atomic.Int32) []scanner.Hit {
	done := make([]memory_map.MemoryMapItem, 0, len(regions))
	for i, region := range regions {
		if remaining[i].Load() == 0 {
			done = append(done, region)
		}
	}
	if len(done) == len(regions) {
		return hits
	}
	memory_map.Sort(done)

	kept := hits[:0]
	for _, hit := range hits {
		if memory_map.FindRegion(hit.Address, done) != nil {
			kept = append(kept, hit)
		}
	}
	return kept
}

// IsCancelled reports whether err came from a cancelled context.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
