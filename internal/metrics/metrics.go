package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// SessionMetrics accumulates counters for one interview session.
type SessionMetrics struct {
	Provider  string
	SessionID string
	StartTime time.Time
	EndTime   time.Time

	StepsAsked     int
	FollowupsNoted int
	SpokenChars    int

	CapturedFrames int
	CapturedBytes  int

	TranscriptLength      int
	TranscriptionDegraded bool

	phases     map[string]time.Duration
	phase      string
	phaseStart time.Time
	mu         sync.Mutex
}

func NewSessionMetrics(provider, sessionID string) *SessionMetrics {
	return &SessionMetrics{
		Provider:  provider,
		SessionID: sessionID,
		StartTime: time.Now(),
		phases:    make(map[string]time.Duration),
	}
}

// EnterPhase closes the running phase and starts timing name.
func (m *SessionMetrics) EnterPhase(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closePhase(time.Now())
	m.phase = name
	m.phaseStart = time.Now()
}

func (m *SessionMetrics) closePhase(now time.Time) {
	if m.phase == "" {
		return
	}
	m.phases[m.phase] += now.Sub(m.phaseStart)
	m.phase = ""
}

func (m *SessionMetrics) AddStep(question string, followups int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StepsAsked++
	m.FollowupsNoted += followups
	m.SpokenChars += len(question)
}

func (m *SessionMetrics) AddCapture(frames, bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CapturedFrames += frames
	m.CapturedBytes += bytes
}

func (m *SessionMetrics) SetTranscript(text string, degraded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranscriptLength = len(text)
	m.TranscriptionDegraded = degraded
}

// PhaseDuration returns the time spent in name so far.
func (m *SessionMetrics) PhaseDuration(name string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.phases[name]
	if m.phase == name {
		d += time.Since(m.phaseStart)
	}
	return d
}

func (m *SessionMetrics) Finalize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
	m.closePhase(m.EndTime)
}

func (m *SessionMetrics) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := m.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	duration := end.Sub(m.StartTime)
	audioDuration := float64(m.CapturedBytes) / (8000 * 2) // 8kHz, 16-bit

	names := make([]string, 0, len(m.phases))
	for name := range m.phases {
		names = append(names, name)
	}
	sort.Strings(names)
	var phases strings.Builder
	for _, name := range names {
		fmt.Fprintf(&phases, "  %s: %v\n", name, m.phases[name].Round(time.Millisecond))
	}

	return fmt.Sprintf(
		"Provider: %s\n"+
			"Session: %s\n"+
			"Duration: %v\n"+
			"Steps Asked: %d\n"+
			"Follow-ups Noted: %d\n"+
			"Spoken Characters: %d\n"+
			"Captured Frames: %d\n"+
			"Captured Audio: %.2f seconds (%d bytes)\n"+
			"Transcript Length: %d chars\n"+
			"Transcription Degraded: %t\n"+
			"Phases:\n%s",
		m.Provider,
		m.SessionID,
		duration.Round(time.Millisecond),
		m.StepsAsked,
		m.FollowupsNoted,
		m.SpokenChars,
		m.CapturedFrames,
		audioDuration,
		m.CapturedBytes,
		m.TranscriptLength,
		m.TranscriptionDegraded,
		phases.String(),
	)
}
