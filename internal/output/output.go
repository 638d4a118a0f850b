// Package output formats interview progress for the terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	accent = lipgloss.Color("#7C3AED")
	green  = lipgloss.Color("#10B981")
	amber  = lipgloss.Color("#F59E0B")
	red    = lipgloss.Color("#EF4444")
	dim    = lipgloss.Color("#6B7280")
)

// Formatter writes status lines. Styling is applied only when w is a terminal.
type Formatter struct {
	w     io.Writer
	isTTY bool

	status  lipgloss.Style
	speaker lipgloss.Style
	muted   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	box     lipgloss.Style

	mu    sync.Mutex
	shown string
}

func NewFormatter(w io.Writer) *Formatter {
	isTTY := false
	if f, ok := w.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}
	r := lipgloss.NewRenderer(w)
	f := &Formatter{w: w, isTTY: isTTY}
	if isTTY {
		f.status = r.NewStyle().Foreground(accent).Bold(true)
		f.speaker = r.NewStyle().Foreground(green).Bold(true)
		f.muted = r.NewStyle().Foreground(dim)
		f.ok = r.NewStyle().Foreground(green)
		f.warn = r.NewStyle().Foreground(amber)
		f.bad = r.NewStyle().Foreground(red).Bold(true)
		f.box = r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 1)
	}
	return f
}

func (f *Formatter) render(s lipgloss.Style, text string) string {
	if !f.isTTY {
		return text
	}
	return s.Render(text)
}

// Status prints a session status line.
func (f *Formatter) Status(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stamp := f.render(f.muted, time.Now().Format("15:04:05"))
	if strings.HasPrefix(text, "Warning:") {
		fmt.Fprintf(f.w, "%s ⚠️  %s\n", stamp, f.render(f.warn, text))
		return
	}
	fmt.Fprintf(f.w, "%s %s\n", stamp, f.render(f.status, text))
}

// Transcript prints the part of the rendered transcript not shown yet.
// A transcript that does not extend the previous one is printed whole.
func (f *Formatter) Transcript(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fresh := text
	if strings.HasPrefix(text, f.shown) {
		fresh = text[len(f.shown):]
	}
	f.shown = text
	fresh = strings.TrimSpace(fresh)
	if fresh == "" {
		return
	}
	for _, entry := range strings.Split(fresh, "\n") {
		name, body, found := strings.Cut(entry, ": ")
		if !found {
			fmt.Fprintf(f.w, "  %s\n", entry)
			continue
		}
		fmt.Fprintf(f.w, "  %s %s\n", f.render(f.speaker, name+":"), body)
	}
}

// Summary prints the closing evaluation in a box.
func (f *Formatter) Summary(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.isTTY {
		fmt.Fprintf(f.w, "\n--- Summary ---\n%s\n\n", strings.TrimSpace(text))
		return
	}
	fmt.Fprintf(f.w, "\n%s\n\n", f.box.Render(strings.TrimSpace(text)))
}

// SessionEnded prints the final state and where the artifacts went.
func (f *Formatter) SessionEnded(state string, duration time.Duration, artifacts ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintf(f.w, "\n⏹️  Session %s (%s)\n", state, formatDuration(duration))
	for _, path := range artifacts {
		if path != "" {
			fmt.Fprintf(f.w, "📁 %s\n", path)
		}
	}
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", f.render(f.bad, msg))
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", f.render(f.ok, msg))
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", f.render(f.warn, msg))
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
