// Package transcript keeps the ordered interview record on disk.
package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/amanullahtanweer/interview-orchestrator/internal/llm"
)

// SummaryInstruction is appended to the rendered transcript when summarizing.
const SummaryInstruction = "Summarise the interview transcript focusing on strengths, risks, and recommendations."

const summaryMaxTokens = 400

// Entry is one speaker-labelled line of the transcript.
type Entry struct {
	Speaker string
	Text    string
}

func (e Entry) String() string {
	return e.Speaker + ": " + e.Text
}

// Ledger is an append-only transcript. Every Append rewrites the whole file
// so the file always equals Render().
type Ledger struct {
	path    string
	mu      sync.Mutex
	entries []Entry
}

// NewLedger creates an empty ledger persisted at path.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the transcript file location.
func (l *Ledger) Path() string { return l.path }

// Append records text under speaker and persists the full transcript. A
// failed write leaves the ledger unchanged.
func (l *Ledger) Append(speaker, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := append(l.entries[:len(l.entries):len(l.entries)], Entry{Speaker: speaker, Text: strings.TrimSpace(text)})
	if err := l.persist(entries); err != nil {
		return err
	}
	l.entries = entries
	return nil
}

// persist writes entries to a temp file and renames it over the transcript.
func (l *Ledger) persist(entries []Entry) error {
	if l.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create transcript directory: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(render(entries)), 0644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace transcript: %w", err)
	}
	return nil
}

// Render returns all entries joined by newlines.
func (l *Ledger) Render() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.render()
}

func (l *Ledger) render() string {
	return render(l.entries)
}

func render(entries []Entry) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}

// Entries returns a copy of the recorded entries.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Summarize asks generator for a summary of the full transcript.
func (l *Ledger) Summarize(ctx context.Context, generator llm.Generator) (string, error) {
	prompt := fmt.Sprintf("Transcript:\n%s\n\n%s", l.Render(), SummaryInstruction)
	summary, err := generator.Generate(ctx, llm.Request{Prompt: prompt, MaxTokens: summaryMaxTokens})
	if err != nil {
		return "", fmt.Errorf("summarize transcript: %w", err)
	}
	return strings.TrimSpace(summary), nil
}
