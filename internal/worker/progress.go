package worker

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Progress draws a one-line progress bar for a batch.
type Progress struct {
	startTime time.Time
	output    io.Writer
	counts    Counts
	mu        sync.RWMutex
	enabled   bool
}

// NewProgress creates a progress tracker for total tiles.
func NewProgress(total int, enabled bool) *Progress {
	return &Progress{
		counts:    Counts{Total: total},
		startTime: time.Now(),
		output:    os.Stderr,
		enabled:   enabled,
	}
}

// Update records the latest counts.
func (p *Progress) Update(c Counts) {
	p.mu.Lock()
	p.counts = c
	p.mu.Unlock()

	if p.enabled {
		p.Print()
	}
}

// Callback returns a ProgressFunc suitable for use with Pool.Config.
func (p *Progress) Callback() ProgressFunc {
	return p.Update
}

func (p *Progress) snapshot() (Counts, time.Duration) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counts, time.Since(p.startTime)
}

// Print writes the current progress line.
func (p *Progress) Print() {
	c, elapsed := p.snapshot()

	var rate float64
	var eta time.Duration
	if c.Completed > 0 {
		rate = float64(c.Completed) / elapsed.Seconds()
		if rate > 0 {
			eta = time.Duration(float64(c.Total-c.Completed)/rate) * time.Second
		}
	}

	const barWidth = 30
	filled := 0
	if c.Total > 0 {
		filled = min(c.Completed*barWidth/c.Total, barWidth)
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("\r[%s] %d/%d tiles", bar, c.Completed, c.Total)
	if c.Cached > 0 {
		line += fmt.Sprintf(" (%d cached)", c.Cached)
	}
	if c.Failed > 0 {
		line += fmt.Sprintf(" (%d failed)", c.Failed)
	}
	line += fmt.Sprintf(" - %.1f tiles/sec", rate)
	if eta > 0 && c.Completed < c.Total {
		line += fmt.Sprintf(" - ETA: %s", formatDuration(eta))
	}
	if c.Completed == c.Total {
		line += fmt.Sprintf(" - Done in %s", formatDuration(elapsed))
	}

	// Pad to clear previous line content
	line += "          "

	fmt.Fprint(p.output, line)
}

// Done prints the final progress and a newline.
func (p *Progress) Done() {
	if p.enabled {
		p.Print()
		fmt.Fprintln(p.output)
	}
}

// Summary describes the finished batch.
func (p *Progress) Summary() string {
	c, elapsed := p.snapshot()

	var rate float64
	if elapsed.Seconds() > 0 {
		rate = float64(c.Completed) / elapsed.Seconds()
	}

	rendered := c.Completed - c.Failed - c.Cached
	return fmt.Sprintf("Rendered %d/%d tiles (%d cached, %d failed) in %s (%.1f tiles/sec)",
		rendered, c.Total, c.Cached, c.Failed, formatDuration(elapsed), rate)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
