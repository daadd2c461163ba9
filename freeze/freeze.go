// Package freeze periodically rewrites pinned values into the target process.
package freeze

import (
	"context"
	"fmt"
	"sync"
	"time"

	"memcheetah/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// DefaultInterval is the time between two rewrite passes.
const DefaultInterval = 125 * time.Millisecond

// Pin is a value held at an address.
type Pin struct {
	Address uint64
	Bytes   []byte
}

// Source supplies pins. Frozen must return a snapshot the loop can use without locking.
type Source interface {
	Frozen() []Pin
	AutoUnfreeze(addr uint64, err error)
}

// Notice reports a pin that was dropped after a failed write.
type Notice struct {
	Source  Source
	Address uint64
	Err     error
}

func (n Notice) String() string {
	return fmt.Sprintf("unfroze 0x%X: %v", n.Address, n.Err)
}

// Loop rewrites every pin of every registered source once per Interval.
type Loop struct {
	Interval time.Duration

	// OnAttachError is called when a write shows the process is gone. The pass stops
	// there and no pin is unfrozen.
	OnAttachError func(error)

	w       process.MemoryWriter
	mu      sync.Mutex
	sources []Source
	notices chan Notice
	log     *logger.Logger
}

func NewLoop(w process.MemoryWriter, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Loop{
		Interval: interval,
		w:        w,
		notices:  make(chan Notice, 64),
		log:      logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "freeze")),
	}
}

func (l *Loop) Add(src Source) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources = append(l.sources, src)
}

func (l *Loop) Remove(src Source) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.sources {
		if s == src {
			l.sources = append(l.sources[:i], l.sources[i+1:]...)
			return
		}
	}
}

// Notices delivers auto-unfreeze reports. Reports are dropped while the buffer is full.
func (l *Loop) Notices() <-chan Notice {
	return l.notices
}

// Tick performs one rewrite pass and returns the number of successful writes.
func (l *Loop) Tick() int {
	l.mu.Lock()
	sources := append([]Source(nil), l.sources...)
	l.mu.Unlock()

	written := 0
	for _, src := range sources {
		for _, pin := range src.Frozen() {
			err := l.w.WriteMemory(process.ProcessMemoryAddress(pin.Address), pin.Bytes)
			if err == nil {
				written++
				continue
			}

			if process.IsAttachError(err) {
				l.log.Warn("process lost during freeze pass: ", err)
				if l.OnAttachError != nil {
					l.OnAttachError(err)
				}
				return written
			}

			l.log.Warn("write to", fmt.Sprintf("0x%X", pin.Address), "failed, unfreezing:", err)
			src.AutoUnfreeze(pin.Address, err)

			select {
			case l.notices <- Notice{Source: src, Address: pin.Address, Err: err}:
			default:
			}
		}
	}
	return written
}

// Run ticks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	l.log.Infoln("freeze loop started, interval", l.Interval)
	for {
		select {
		case <-ctx.Done():
			l.log.Infoln("freeze loop stopped")
			return ctx.Err()
		case <-ticker.C:
			l.Tick()
		}
	}
}
