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

// ProgressPrinter keeps one status line updated while a BLE operation runs.
//
//	p := NewProgressPrinter(os.Stderr, "Inspecting AA:BB", "Connecting", 0, "Processing results")
//	p.Start()
//	defer p.Stop()
//
// A positive countdown shows the remaining time instead of the elapsed time.
// Setting one of the stop phases through Callback stops the printer.
type ProgressPrinter struct {
	out        io.Writer
	prefix     string
	countdown  time.Duration
	stopPhases map[string]struct{}

	phase     atomic.Value // string
	startTime time.Time
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// NewProgressPrinter creates a printer writing to out.
func NewProgressPrinter(out io.Writer, prefix, phase string, countdown time.Duration, stopPhases ...string) *ProgressPrinter {
	stopSet := make(map[string]struct{}, len(stopPhases))
	for _, p := range stopPhases {
		stopSet[p] = struct{}{}
	}
	p := &ProgressPrinter{
		out:        out,
		prefix:     prefix,
		countdown:  countdown,
		stopPhases: stopSet,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	p.phase.Store(phase)
	return p
}

// Start begins updating the line in a background goroutine.
func (p *ProgressPrinter) Start() {
	p.startTime = time.Now()
	p.print(p.phase.Load().(string), 0)

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
				p.print(phase, p.seconds())
			}
		}
	}()
}

func (p *ProgressPrinter) seconds() int {
	elapsed := time.Since(p.startTime)
	if p.countdown <= 0 {
		return int(elapsed.Seconds())
	}
	remaining := p.countdown - elapsed
	if remaining <= 0 {
		return 0
	}
	// round to the nearest second
	return int(remaining.Seconds() + 0.5)
}

func (p *ProgressPrinter) print(phase string, seconds int) {
	if seconds > 0 {
		fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// Callback returns a phase callback for scanner and inspector.
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
		if _, stop := p.stopPhases[phase]; stop {
			p.Stop()
		}
	}
}

// Stop ends the updates and clears the line. It is safe to call more than
// once, but only after Start.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		<-p.done
		fmt.Fprint(p.out, clearLineSequence)
	})
}
