package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"charm.land/bubbles/v2/progress"
)

const barWidth = 30

// ProgressLine renders a plain "[####......] done/total" bar.
func ProgressLine(done, total uint64) string {
	filled := barWidth
	if total > 0 {
		filled = int(done * barWidth / total)
	}
	filled = min(filled, barWidth)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled) + "] " +
		fmt.Sprintf("%d/%d", done, total)
}

// Printer writes in-place progress updates. Calls may come from any
// goroutine; writes are serialized.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	color  bool
	bar    progress.Model
	prefix string
	dirty  bool
}

// NewPrinter returns a Printer writing to w. With color the bar is drawn
// with a gradient.
func NewPrinter(w io.Writer, color bool) *Printer {
	return &Printer{
		w:     w,
		color: color,
		bar:   progress.New(progress.WithWidth(barWidth), progress.WithoutPercentage()),
	}
}

// SetPrefix sets a label shown before the bar, e.g. "scan".
func (p *Printer) SetPrefix(prefix string) {
	p.mu.Lock()
	p.prefix = prefix
	p.mu.Unlock()
}

// Func returns a progress callback that draws with the given prefix.
func (p *Printer) Func(prefix string) func(done, total uint64) {
	return func(done, total uint64) {
		p.SetPrefix(prefix)
		p.Update(done, total)
	}
}

// Update redraws the bar. It matches progress.Func.
func (p *Printer) Update(done, total uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var line string
	if p.color {
		frac := 1.0
		if total > 0 {
			frac = float64(done) / float64(total)
		}
		line = p.bar.ViewAs(frac) + fmt.Sprintf(" %d/%d", done, total)
	} else {
		line = ProgressLine(done, total)
	}
	if p.prefix != "" {
		line = p.prefix + " " + line
	}
	fmt.Fprint(p.w, "\r"+line)
	p.dirty = true
}

// Clear erases the current progress line, if any.
func (p *Printer) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dirty {
		return
	}
	fmt.Fprint(p.w, "\r"+strings.Repeat(" ", 80)+"\r")
	p.dirty = false
}
