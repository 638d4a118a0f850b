package flow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// SessionLogger writes structured JSONL session events to a file
type SessionLogger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

type logRecord struct {
	Timestamp string            `json:"ts"`
	Event     string            `json:"event"`
	SessionID string            `json:"session_id"`
	State     string            `json:"state,omitempty"`
	StepIndex *int              `json:"step_index,omitempty"`
	StepTitle string            `json:"step_title,omitempty"`
	Text      string            `json:"text,omitempty"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// NewSessionLogger creates a logger under outputDir. Filename is timestamp + session id.
func NewSessionLogger(outputDir, sessionID string, started time.Time) (*SessionLogger, error) {
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	shortID := sessionID
	if len(sessionID) > 8 {
		shortID = sessionID[:8]
	}
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_session_%s.jsonl", started.Format("20060102_150405"), shortID))
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &SessionLogger{file: f, path: filename}, nil
}

// Path returns the log file location.
func (sl *SessionLogger) Path() string {
	if sl == nil {
		return ""
	}
	return sl.path
}

func (sl *SessionLogger) Close() error {
	if sl == nil {
		return nil
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.file != nil {
		err := sl.file.Close()
		sl.file = nil
		return err
	}
	return nil
}

func (sl *SessionLogger) write(rec logRecord) {
	if sl == nil {
		return
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.file == nil {
		return
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().Format(time.RFC3339Nano)
	}
	rec.Text = strings.TrimSpace(rec.Text)
	enc := json.NewEncoder(sl.file)
	_ = enc.Encode(rec)
}

func (sl *SessionLogger) LogSessionStart(sessionID string, started time.Time, details map[string]string) {
	sl.write(logRecord{Timestamp: started.Format(time.RFC3339Nano), Event: "session_start", SessionID: sessionID, Details: details})
}

func (sl *SessionLogger) LogSessionEnd(sessionID string, ended time.Time, state SessionState, err error) {
	rec := logRecord{Timestamp: ended.Format(time.RFC3339Nano), Event: "session_end", SessionID: sessionID, State: state.String()}
	if err != nil {
		rec.Error = err.Error()
	}
	sl.write(rec)
}

func (sl *SessionLogger) LogState(sessionID string, state SessionState) {
	sl.write(logRecord{Event: "state", SessionID: sessionID, State: state.String()})
}

func (sl *SessionLogger) LogStep(sessionID string, index int, step InterviewStep) {
	sl.write(logRecord{Event: "step", SessionID: sessionID, StepIndex: &index, StepTitle: step.Title, Text: step.Question})
}

func (sl *SessionLogger) LogRelease(sessionID, resource string, err error) {
	rec := logRecord{Event: "release", SessionID: sessionID, Details: map[string]string{"resource": resource}}
	if err != nil {
		rec.Error = err.Error()
	}
	sl.write(rec)
}

func (sl *SessionLogger) LogDegraded(sessionID, capability string, err error) {
	rec := logRecord{Event: "degraded", SessionID: sessionID, Details: map[string]string{"capability": capability}}
	if err != nil {
		rec.Error = err.Error()
	}
	sl.write(rec)
}
