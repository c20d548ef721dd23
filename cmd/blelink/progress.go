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

// ProgressPrinter redraws a single status line with elapsed or remaining time.
//
// Usage:
//
//	p := NewProgressPrinter(w, "Connecting to aa:bb", "Scanning")
//	p.Start()
//	defer p.Stop()
//	p.SetPhase("Connecting")
//
// A ProgressPrinter is single-use: Start at most once, Stop any number of times.
type ProgressPrinter struct {
	out      io.Writer
	prefix   string
	phase    atomic.Value // string
	duration time.Duration

	startTime time.Time
	started   atomic.Bool
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewProgressPrinter creates a printer that counts up from Start
func NewProgressPrinter(out io.Writer, prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{out: out, prefix: prefix}
	p.phase.Store(phase)
	return p
}

// NewCountdownProgressPrinter creates a printer that counts down from duration
func NewCountdownProgressPrinter(out io.Writer, prefix, phase string, duration time.Duration) *ProgressPrinter {
	p := NewProgressPrinter(out, prefix, phase)
	p.duration = duration
	return p
}

// startProgress returns a running printer on terminals and nil elsewhere.
// Stop and SetPhase are safe on a nil printer.
func startProgress(out io.Writer, newPrinter func(io.Writer) *ProgressPrinter) *ProgressPrinter {
	if !isTerminal(out) {
		return nil
	}
	p := newPrinter(out)
	p.Start()
	return p
}

// Start begins redrawing in a background goroutine.
// Panics if called more than once.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}
	p.startTime = time.Now()
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, p.phase.Load().(string))

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.print(p.phase.Load().(string), p.seconds(time.Since(p.startTime)))
			}
		}
	}()
}

// seconds is the elapsed time, or the remaining time rounded to the nearest second
func (p *ProgressPrinter) seconds(elapsed time.Duration) int {
	if p.duration == 0 {
		return int(elapsed.Seconds())
	}
	remaining := p.duration - elapsed
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds() + 0.5)
}

func (p *ProgressPrinter) print(phase string, seconds int) {
	if seconds > 0 {
		fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// SetPhase changes the phase shown on the next redraw
func (p *ProgressPrinter) SetPhase(phase string) {
	if p == nil {
		return
	}
	p.phase.Store(phase)
}

// Stop ends the redraw loop and clears the line
func (p *ProgressPrinter) Stop() {
	if p == nil || !p.started.Load() {
		return
	}
	p.stopOnce.Do(func() {
		close(p.stop)
		<-p.done
		fmt.Fprint(p.out, clearLineSequence)
	})
}
