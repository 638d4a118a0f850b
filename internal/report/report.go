// Package report renders a finished interview into a PDF.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jung-kurt/gofpdf/v2"
	"github.com/rs/zerolog/log"

	"github.com/amanullahtanweer/interview-orchestrator/internal/notify"
)

// Interview is what goes into the report.
type Interview struct {
	CandidateName string
	MeetingURL    string
	Date          time.Time
	Summary       string
	Transcript    string
}

// WritePDF writes the report to path, creating its directory.
func WritePDF(path string, iv Interview) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure report directory: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr("Interview report "+iv.CandidateName), false)
	pdf.SetAuthor("AI Interviewer", false)
	pdf.AddPage()

	candidate := iv.CandidateName
	if strings.TrimSpace(candidate) == "" {
		candidate = "Candidate"
	}
	date := iv.Date
	if date.IsZero() {
		date = time.Now()
	}

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr("Interview with "+candidate))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	if iv.MeetingURL != "" {
		pdf.Cell(0, 6, tr("Meeting: "+iv.MeetingURL))
		pdf.Ln(6)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Date: %s", date.Local().Format("2006-01-02 15:04")))
	pdf.Ln(12)

	writeSection(pdf, tr, "Summary", iv.Summary, true)
	pdf.Ln(8)
	writeSection(pdf, tr, "Transcript", iv.Transcript, false)

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func writeSection(pdf *gofpdf.Fpdf, tr func(string) string, title, content string, bullet bool) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, title)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)

	written := 0
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if bullet {
			line = "- " + strings.TrimLeft(line, "-*• ")
		}
		pdf.MultiCell(0, 6, tr(line), "", "L", false)
		written++
	}
	if written == 0 {
		pdf.MultiCell(0, 6, "(empty)", "", "L", false)
	}
}

// Writer is a notify.Observer that writes the report once the summary of a
// session arrives.
type Writer struct {
	Path          string
	CandidateName string
	MeetingURL    string

	mu         sync.Mutex
	transcript map[string]string
}

// Notify implements notify.Observer.
func (w *Writer) Notify(e notify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch e.Kind {
	case notify.KindTranscript:
		if w.transcript == nil {
			w.transcript = make(map[string]string)
		}
		w.transcript[e.SessionID] = e.Text
	case notify.KindSummary:
		iv := Interview{
			CandidateName: w.CandidateName,
			MeetingURL:    w.MeetingURL,
			Date:          e.Time,
			Summary:       e.Text,
			Transcript:    w.transcript[e.SessionID],
		}
		delete(w.transcript, e.SessionID)
		if err := WritePDF(w.Path, iv); err != nil {
			log.Error().Msgf("Session %s: report: %v", e.SessionID, err)
			return
		}
		log.Info().Msgf("Session %s: report saved to %s", e.SessionID, w.Path)
	}
}
