// Package resultset holds one search tab: its hits, their refinement history and the
// values frozen from it.
package resultset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"memcheetah/freeze"
	"memcheetah/process"
	"memcheetah/scanner"
	"memcheetah/search"
	"memcheetah/value"
)

// State is the position of a ResultSet in its lifecycle.
type State int32

const (
	Empty State = iota
	HasInitialResults
	Refining
	HasRefinedResults
	Closed
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case HasInitialResults:
		return "searched"
	case Refining:
		return "refining"
	case HasRefinedResults:
		return "refined"
	case Closed:
		return "closed"
	}
	return "invalid"
}

// DefaultUndoLimit is the number of refinements that can be undone.
const DefaultUndoLimit = 16

var (
	ErrClosed         = errors.New("result set closed")
	ErrNoResults      = errors.New("no search has been run")
	ErrNothingToUndo  = errors.New("nothing to undo")
	ErrUnknownAddress = errors.New("address is not a hit of this search")
	ErrNotFrozen      = errors.New("address is not frozen")
	ErrNeedsValue     = errors.New("comparison needs a value")
)

// Hit is an address found by a search together with the bytes last read there.
type Hit struct {
	Address    uint64
	Raw        []byte
	Candidates value.Candidates
	Frozen     bool
	Pinned     []byte
}

// Value decodes Raw under the widest remaining candidate.
func (h Hit) Value() string {
	w, ok := h.Candidates.Widest()
	if !ok {
		return "??"
	}
	return value.Format(h.Raw, w)
}

func (h Hit) clone() Hit {
	h.Raw = append([]byte(nil), h.Raw...)
	if h.Pinned != nil {
		h.Pinned = append([]byte(nil), h.Pinned...)
	}
	return h
}

func cloneHits(hits []Hit) []Hit {
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = h.clone()
	}
	return out
}

// Options configures a ResultSet.
type Options struct {
	UndoLimit int
	Workers   int // parallel reads during Refine
	Filter    scanner.FilterOptions
	Search    []search.Option
}

// Stats summarises a ResultSet for display.
type Stats struct {
	State     State
	Type      value.Type
	Hits      int
	TotalHits int64
	Truncated bool
	UndoDepth int
	Frozen    int
}

// ResultSet is one search tab. Every mutation holds mu for its whole duration; pins have
// their own lock so the freeze loop never waits for a refinement.
type ResultSet struct {
	mu    sync.Mutex
	proc  process.Process
	typ   value.Type
	opts  Options
	state atomic.Int32

	hits      []Hit // sorted by address
	totalHits int64
	undo      []snapshot

	pinMu sync.RWMutex
	pins  map[uint64][]byte
}

var _ freeze.Source = (*ResultSet)(nil)

func New(proc process.Process, typ value.Type, opts Options) *ResultSet {
	if opts.UndoLimit <= 0 {
		opts.UndoLimit = DefaultUndoLimit
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &ResultSet{
		proc: proc,
		typ:  typ,
		opts: opts,
		pins: make(map[uint64][]byte),
	}
}

func (s *ResultSet) State() State      { return State(s.state.Load()) }
func (s *ResultSet) setState(st State) { s.state.Store(int32(st)) }

func (s *ResultSet) Type() value.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typ
}

// StartSearch replaces the hits with a fresh scan of the process for target and clears the
// undo history and any frozen values. A cancelled scan keeps its partial hits.
func (s *ResultSet) StartSearch(ctx context.Context, target *value.Target, options ...search.Option) (*search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == Closed {
		return nil, ErrClosed
	}

	if err := s.proc.UpdateMemoryMap(); err != nil {
		return nil, err
	}
	mm, err := s.proc.GetMemoryMap()
	if err != nil {
		return nil, err
	}

	filter := s.opts.Filter
	if target.Type.Kind == value.KindPattern {
		filter.IncludeReadOnly = true
	}
	regions := scanner.Filter(mm, filter)

	opts := append(append([]search.Option(nil), s.opts.Search...), options...)
	result, err := search.Search(ctx, s.proc, regions, target, opts...)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(result.Hits))
	for i, h := range result.Hits {
		hits[i] = Hit{Address: h.Address, Raw: h.Raw, Candidates: h.Candidates}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Address < hits[j].Address })

	s.clearPins()
	s.typ = target.Type
	s.hits = hits
	s.totalHits = result.TotalHits
	s.undo = nil
	s.setState(HasInitialResults)

	return result, nil
}

// Undo restores the hits as they were before the last refinement.
func (s *ResultSet) Undo() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case Closed:
		return ErrClosed
	case Empty:
		return ErrNothingToUndo
	}
	if len(s.undo) == 0 {
		return ErrNothingToUndo
	}

	last := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.hits = last.hits
	s.totalHits = last.totalHits
	if len(s.undo) == 0 {
		s.setState(HasInitialResults)
	} else {
		s.setState(HasRefinedResults)
	}
	return nil
}

// snapshot is one undo entry. totalHits keeps the exact count of a capped search.
type snapshot struct {
	hits      []Hit
	totalHits int64
}

func (s *ResultSet) snapshot() snapshot {
	return snapshot{hits: cloneHits(s.hits), totalHits: s.totalHits}
}

func (s *ResultSet) pushUndo(snap snapshot) {
	s.undo = append(s.undo, snap)
	if over := len(s.undo) - s.opts.UndoLimit; over > 0 {
		s.undo = append([]snapshot(nil), s.undo[over:]...)
	}
}

func (s *ResultSet) find(addr uint64) int {
	i := sort.Search(len(s.hits), func(i int) bool { return s.hits[i].Address >= addr })
	if i < len(s.hits) && s.hits[i].Address == addr {
		return i
	}
	return -1
}

func (s *ResultSet) drop(i int) {
	s.hits = append(s.hits[:i], s.hits[i+1:]...)
	s.totalHits = int64(len(s.hits))
}

// encodeFor turns text into the bytes to store at hit. An ambiguous hit is written with its
// widest candidate that can hold the value.
func (s *ResultSet) encodeFor(hit Hit, text string) ([]byte, error) {
	if w, ok := hit.Candidates.Width(); ok {
		return value.EncodeText(text, w)
	}

	target, err := value.Parse(text, s.typ)
	if err != nil {
		return nil, err
	}
	w, ok := hit.Candidates.Intersect(target.Candidates).Widest()
	if !ok {
		return nil, &value.ParseError{Text: text, Type: s.typ, Err: fmt.Errorf("fits none of %s", hit.Candidates)}
	}
	return target.Bytes(w), nil
}

// SetValue writes text to addr once. A failed write drops the hit.
func (s *ResultSet) SetValue(addr uint64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == Closed {
		return ErrClosed
	}
	i := s.find(addr)
	if i < 0 {
		return ErrUnknownAddress
	}

	b, err := s.encodeFor(s.hits[i], text)
	if err != nil {
		return err
	}

	if err := s.proc.WriteMemory(process.ProcessMemoryAddress(addr), b); err != nil {
		if !process.IsAttachError(err) {
			s.drop(i)
		}
		return err
	}

	raw := s.hits[i].Raw
	if len(b) > len(raw) {
		raw = append(raw, make([]byte, len(b)-len(raw))...)
	}
	copy(raw, b)
	s.hits[i].Raw = raw
	return nil
}

// Freeze pins text at addr. Nothing is written until the freeze loop runs.
func (s *ResultSet) Freeze(addr uint64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == Closed {
		return ErrClosed
	}
	i := s.find(addr)
	if i < 0 {
		return ErrUnknownAddress
	}

	b, err := s.encodeFor(s.hits[i], text)
	if err != nil {
		return err
	}

	s.pinMu.Lock()
	s.pins[addr] = b
	s.pinMu.Unlock()
	return nil
}

func (s *ResultSet) Unfreeze(addr uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pinMu.Lock()
	defer s.pinMu.Unlock()
	if _, ok := s.pins[addr]; !ok {
		return ErrNotFrozen
	}
	delete(s.pins, addr)
	return nil
}

// Frozen returns a snapshot of the pinned values ordered by address.
func (s *ResultSet) Frozen() []freeze.Pin {
	s.pinMu.RLock()
	defer s.pinMu.RUnlock()

	pins := make([]freeze.Pin, 0, len(s.pins))
	for addr, b := range s.pins {
		pins = append(pins, freeze.Pin{Address: addr, Bytes: append([]byte(nil), b...)})
	}
	sort.Slice(pins, func(i, j int) bool { return pins[i].Address < pins[j].Address })
	return pins
}

// AutoUnfreeze is called by the freeze loop after a failed write.
func (s *ResultSet) AutoUnfreeze(addr uint64, err error) {
	s.pinMu.Lock()
	defer s.pinMu.Unlock()
	delete(s.pins, addr)
}

func (s *ResultSet) clearPins() {
	s.pinMu.Lock()
	defer s.pinMu.Unlock()
	clear(s.pins)
}

// Hits returns a copy of the current hits.
func (s *ResultSet) Hits() []Hit {
	s.mu.Lock()
	hits := cloneHits(s.hits)
	s.mu.Unlock()

	s.pinMu.RLock()
	defer s.pinMu.RUnlock()
	for i := range hits {
		if b, ok := s.pins[hits[i].Address]; ok {
			hits[i].Frozen = true
			hits[i].Pinned = append([]byte(nil), b...)
		}
	}
	return hits
}

func (s *ResultSet) Stats() Stats {
	s.mu.Lock()
	st := Stats{
		State:     s.State(),
		Type:      s.typ,
		Hits:      len(s.hits),
		TotalHits: s.totalHits,
		Truncated: s.totalHits > int64(len(s.hits)),
		UndoDepth: len(s.undo),
	}
	s.mu.Unlock()

	s.pinMu.RLock()
	st.Frozen = len(s.pins)
	s.pinMu.RUnlock()
	return st
}

// Close discards hits, history and pins. Further operations fail with ErrClosed.
func (s *ResultSet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setState(Closed)
	s.hits = nil
	s.undo = nil
	s.clearPins()
}
