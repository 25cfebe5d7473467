package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/normanking/avatarsync/internal/caption"
	"github.com/normanking/avatarsync/internal/scheduler"
)

const meterWidth = 12

var (
	teal = lipgloss.Color("#0d7377")

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	barStyle   = lipgloss.NewStyle().Foreground(teal)
	wordStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f8f7f4")).Bold(true)
	doneStyle  = lipgloss.NewStyle().Foreground(teal).Italic(true)
)

// meter redraws one console line per frame: a bar per parameter and the
// current caption word.
type meter struct {
	mu      sync.Mutex
	out     io.Writer
	params  scheduler.ParameterSet
	caption caption.State
	drawn   bool
}

func newMeter(out io.Writer) *meter {
	return &meter{out: out}
}

func (m *meter) onFrame(f scheduler.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = f.Params
	m.draw()
}

func (m *meter) onCaption(st caption.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caption = st
	m.draw()
}

func (m *meter) draw() {
	fmt.Fprint(m.out, "\r\033[K"+m.line())
	m.drawn = true
}

func (m *meter) line() string {
	var b strings.Builder
	for _, name := range m.params.Names() {
		b.WriteString(labelStyle.Render(name))
		b.WriteByte(' ')
		b.WriteString(barStyle.Render(bar(m.params.Value(name), meterWidth)))
		b.WriteString("  ")
	}

	if m.caption.WordCount > 0 {
		b.WriteString(wordStyle.Render(m.caption.Word))
		b.WriteString(labelStyle.Render(fmt.Sprintf(" %d/%d", m.caption.WordIndex+1, m.caption.WordCount)))
		if m.caption.Done {
			b.WriteString(doneStyle.Render(" ."))
		}
	}
	return b.String()
}

// finish leaves the cursor on a fresh line.
func (m *meter) finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drawn {
		fmt.Fprintln(m.out)
	}
}

// bar renders v in [0, 1] as a fixed-width block bar.
func bar(v float64, width int) string {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	filled := int(v*float64(width) + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
