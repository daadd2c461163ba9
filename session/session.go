// Package session ties an attached process to its search tabs and the freeze loop.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"

	"memcheetah/config"
	"memcheetah/freeze"
	"memcheetah/process"
	"memcheetah/process_linux"
	"memcheetah/resultset"
	"memcheetah/search"
	"memcheetah/value"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

var (
	// ErrSessionInvalid is returned by every operation once the process is gone.
	ErrSessionInvalid = errors.New("session invalid")
	ErrUnknownTab     = errors.New("unknown search tab")
)

// Handle identifies a search tab within a Session.
type Handle int

// Session owns one attached process and every search tab opened on it.
type Session struct {
	proc process.Process
	cfg  *config.Config
	loop *freeze.Loop
	log  *logger.Logger

	mu      sync.Mutex
	tabs    map[Handle]*resultset.ResultSet
	next    Handle
	invalid error
	cancel  context.CancelFunc
	done    chan struct{}
}

// New wraps an already opened process.
func New(proc process.Process, cfg *config.Config) *Session {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Session{
		proc: proc,
		cfg:  cfg,
		loop: freeze.NewLoop(proc, cfg.FreezeInterval),
		log:  logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("session-%d", proc.GetPID()))),
		tabs: make(map[Handle]*resultset.ResultSet),
		next: 1,
	}
	s.loop.OnAttachError = s.invalidate
	return s
}

// Attach opens pid on Linux and starts a session for it.
func Attach(pid process.ProcessID, cfg *config.Config) (*Session, error) {
	proc, err := process_linux.NewWithPID(pid)
	if err != nil {
		return nil, err
	}
	return New(proc, cfg), nil
}

// Start runs the freeze loop in the background until Close.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.loop.Run(ctx)
	}()
}

func (s *Session) Process() process.Process { return s.proc }
func (s *Session) Config() *config.Config   { return s.cfg }
func (s *Session) Loop() *freeze.Loop       { return s.loop }

// Notices reports frozen addresses that were dropped after a failed write.
func (s *Session) Notices() <-chan freeze.Notice {
	return s.loop.Notices()
}

// Err returns the reason the session became invalid, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalid
}

func (s *Session) invalidErr() error {
	return fmt.Errorf("%w: %v", ErrSessionInvalid, s.invalid)
}

// check turns attach failures into an invalid session.
func (s *Session) check(err error) error {
	if err == nil || !process.IsAttachError(err) {
		return err
	}
	s.invalidate(err)
	return fmt.Errorf("%w: %w", ErrSessionInvalid, err)
}

func (s *Session) invalidate(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalid != nil {
		return
	}

	s.log.Warn("process lost, closing all tabs: ", cause)
	s.invalid = cause
	for h, tab := range s.tabs {
		s.loop.Remove(tab)
		tab.Close()
		delete(s.tabs, h)
	}
}

// CheckAlive invalidates the session if the process has exited.
func (s *Session) CheckAlive() error {
	if err := s.Err(); err != nil {
		return s.invalidErr()
	}
	if s.proc.IsAlive() {
		return nil
	}
	return s.check(&process.AttachError{PID: s.proc.GetPID(), Err: process.ErrProcessGone})
}

// Tab returns the result set behind h.
func (s *Session) Tab(h Handle) (*resultset.ResultSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalid != nil {
		return nil, s.invalidErr()
	}
	tab, ok := s.tabs[h]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTab, h)
	}
	return tab, nil
}

// Tabs lists the open handles in creation order.
func (s *Session) Tabs() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	handles := make([]Handle, 0, len(s.tabs))
	for h := range s.tabs {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles
}

// ParseTarget parses text for typ, enforcing the configured minimum string length.
func (s *Session) ParseTarget(typ value.Type, text string) (*value.Target, error) {
	if typ.Kind == value.KindString && utf8.RuneCountInString(text) < s.cfg.MinStringLength {
		return nil, &value.ParseError{Text: text, Type: typ, Err: fmt.Errorf("shorter than %d characters", s.cfg.MinStringLength)}
	}
	return value.Parse(text, typ)
}

// StartSearch opens a new tab and runs its first search.
func (s *Session) StartSearch(ctx context.Context, typ value.Type, text string, options ...search.Option) (Handle, *search.Result, error) {
	target, err := s.ParseTarget(typ, text)
	if err != nil {
		return 0, nil, err
	}

	s.mu.Lock()
	if s.invalid != nil {
		s.mu.Unlock()
		return 0, nil, s.invalidErr()
	}
	h := s.next
	s.next++
	tab := resultset.New(s.proc, typ, s.cfg.ResultSetOptions())
	s.tabs[h] = tab
	s.mu.Unlock()

	s.loop.Add(tab)

	result, err := tab.StartSearch(ctx, target, options...)
	if err != nil {
		s.loop.Remove(tab)
		s.mu.Lock()
		if s.tabs[h] == tab {
			delete(s.tabs, h)
		}
		s.mu.Unlock()
		tab.Close()
		return 0, nil, s.check(err)
	}
	s.log.Infoln("tab", h, "found", result.TotalHits, "hits for", typ.String(), fmt.Sprintf("%q", text))
	return h, result, nil
}

// Rescan runs a new search in an existing tab, dropping its history and frozen values.
func (s *Session) Rescan(ctx context.Context, h Handle, text string, options ...search.Option) (*search.Result, error) {
	tab, err := s.Tab(h)
	if err != nil {
		return nil, err
	}
	target, err := s.ParseTarget(tab.Type(), text)
	if err != nil {
		return nil, err
	}
	result, err := tab.StartSearch(ctx, target, options...)
	return result, s.check(err)
}

// Refine narrows tab h with op. text is the operand for EqualTo and ignored otherwise.
func (s *Session) Refine(ctx context.Context, h Handle, op value.Op, text string) (resultset.RefineReport, error) {
	tab, err := s.Tab(h)
	if err != nil {
		return resultset.RefineReport{}, err
	}

	c := value.Comparator{Op: op}
	if op == value.EqualTo {
		if c.Target, err = s.ParseTarget(tab.Type(), text); err != nil {
			return resultset.RefineReport{}, err
		}
	}

	report, err := tab.Refine(ctx, c)
	if err != nil {
		return report, s.check(err)
	}
	s.log.Debugln("tab", h, op.String(), report.String())
	return report, nil
}

func (s *Session) Undo(h Handle) error {
	tab, err := s.Tab(h)
	if err != nil {
		return err
	}
	return tab.Undo()
}

func (s *Session) SetValue(h Handle, addr uint64, text string) error {
	tab, err := s.Tab(h)
	if err != nil {
		return err
	}
	return s.check(tab.SetValue(addr, text))
}

func (s *Session) Freeze(h Handle, addr uint64, text string) error {
	tab, err := s.Tab(h)
	if err != nil {
		return err
	}
	return tab.Freeze(addr, text)
}

func (s *Session) Unfreeze(h Handle, addr uint64) error {
	tab, err := s.Tab(h)
	if err != nil {
		return err
	}
	return tab.Unfreeze(addr)
}

// CloseTab discards tab h and stops freezing its values.
func (s *Session) CloseTab(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tab, ok := s.tabs[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTab, h)
	}
	s.loop.Remove(tab)
	tab.Close()
	delete(s.tabs, h)
	return nil
}

// Close stops the freeze loop, closes every tab and releases the process.
func (s *Session) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	for h, tab := range s.tabs {
		s.loop.Remove(tab)
		tab.Close()
		delete(s.tabs, h)
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return s.proc.Close()
}
