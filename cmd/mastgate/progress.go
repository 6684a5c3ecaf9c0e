package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter shows a countdown next to the current scan phase.
//
// Usage:
//
//	p := NewCountdownProgressPrinter(w, "Scanning for BLE devices", "Scanning", d, "Processing results")
//	p.Start()
//	defer p.Stop()
//
// Reaching a stop phase through Callback stops the printer early.
type ProgressPrinter struct {
	w          io.Writer
	prefix     string
	phase      atomic.Value // string
	stopPhases map[string]struct{}
	duration   time.Duration
	found      atomic.Int64

	start    time.Time
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewCountdownProgressPrinter creates a printer counting down from duration
func NewCountdownProgressPrinter(w io.Writer, prefix, phase string, duration time.Duration, stopPhases ...string) *ProgressPrinter {
	stopSet := make(map[string]struct{}, len(stopPhases))
	for _, p := range stopPhases {
		stopSet[p] = struct{}{}
	}
	p := &ProgressPrinter{
		w:          w,
		prefix:     prefix,
		stopPhases: stopSet,
		duration:   duration,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	p.phase.Store(phase)
	return p
}

// Start begins redrawing the progress line in the background
func (p *ProgressPrinter) Start() {
	p.start = time.Now()
	p.print(p.phase.Load().(string), p.remaining())

	go func() {
		defer close(p.done)

		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				phase := p.phase.Load().(string)
				if _, stop := p.stopPhases[phase]; stop {
					return
				}
				p.print(phase, p.remaining())
			}
		}
	}()
}

// Callback returns a phase setter suitable as a scan progress callback
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
		if _, stop := p.stopPhases[phase]; stop {
			p.Stop()
		}
	}
}

// Found updates the number of devices shown next to the countdown
func (p *ProgressPrinter) Found(n int) {
	p.found.Store(int64(n))
}

// Stop ends the redraw and clears the line. Safe to call more than once.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		if p.start.IsZero() {
			close(p.done)
		}
		<-p.done
		fmt.Fprint(p.w, clearLineSequence)
	})
}

func (p *ProgressPrinter) remaining() int {
	left := p.duration - time.Since(p.start)
	if left <= 0 {
		return 0
	}
	// nearest second: 3.7s -> 4s
	return int(left.Seconds() + 0.5)
}

func (p *ProgressPrinter) print(phase string, seconds int) {
	found := ""
	if n := p.found.Load(); n > 0 {
		found = fmt.Sprintf(", %d found", n)
	}
	if seconds > 0 {
		fmt.Fprintf(p.w, "\r%s (%s %ds%s)   ", p.prefix, phase, seconds, found)
	} else {
		fmt.Fprintf(p.w, "\r%s (%s...%s)   ", p.prefix, phase, found)
	}
}
