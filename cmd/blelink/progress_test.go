package main

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressPrinterSeconds(t *testing.T) {
	up := NewProgressPrinter(nil, "p", "Scanning")
	assert.Equal(t, 2, up.seconds(2400*time.Millisecond), "count-up MUST truncate elapsed time")

	down := NewCountdownProgressPrinter(nil, "p", "Scanning", 10*time.Second)
	assert.Equal(t, 7, down.seconds(2600*time.Millisecond), "countdown MUST round remaining time")
	assert.Equal(t, 0, down.seconds(11*time.Second), "countdown MUST stop at zero")
}

func TestProgressPrinterLifecycle(t *testing.T) {
	// GOAL: Verify the printer draws, follows phase changes and clears its line on Stop
	//
	// TEST SCENARIO: Start → SetPhase → a few ticks → Stop twice → cleared once

	out := &syncBuffer{}
	p := NewProgressPrinter(out, "Connecting to aa:bb", "Scanning")
	p.Start()
	assert.Panics(t, p.Start, "second Start MUST panic")

	p.SetPhase("Connecting")
	time.Sleep(3 * progressUpdateInterval)
	p.Stop()
	p.Stop()

	got := out.String()
	assert.True(t, strings.HasPrefix(got, "\rConnecting to aa:bb (Scanning...)"), "initial phase MUST be drawn, got %q", got)
	assert.Contains(t, got, "(Connecting")
	assert.Equal(t, 1, strings.Count(got, clearLineSequence), "line MUST be cleared exactly once")
	assert.True(t, strings.HasSuffix(got, clearLineSequence))
}

func TestStartProgressSkipsNonTerminals(t *testing.T) {
	var buf bytes.Buffer
	p := startProgress(&buf, func(w io.Writer) *ProgressPrinter {
		return NewProgressPrinter(w, "Scanning", "Scanning")
	})
	assert.Nil(t, p, "no printer MUST run when output is not a terminal")

	p.SetPhase("ignored")
	p.Stop()
	assert.Empty(t, buf.String())
}
