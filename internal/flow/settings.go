package flow

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/amanullahtanweer/interview-orchestrator/internal/llm"
)

// Session timing defaults.
const (
	DefaultSettleDelay    = time.Second
	DefaultResponseWindow = 20 * time.Second
	DefaultClosingMessage = "Thank you for your time! We'll follow up shortly."
	DefaultQuestionVoice  = "alloy"
)

// ProviderConfig names the generation provider for a session.
type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string
	Extra    map[string]string
}

// AsMap flattens the configuration, omitting an empty key.
func (p ProviderConfig) AsMap() map[string]string {
	data := map[string]string{"provider": p.Provider, "model": p.Model}
	if p.APIKey != "" {
		data["api_key"] = p.APIKey
	}
	for k, v := range p.Extra {
		data[k] = v
	}
	return data
}

// Validate fails when no credential is present.
func (p ProviderConfig) Validate() error {
	if strings.TrimSpace(p.Provider) == "" {
		return &ConfigurationError{Reason: "provider is not set"}
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return &ConfigurationError{Reason: fmt.Sprintf("an API key is required for provider '%s'", p.Provider)}
	}
	return nil
}

// LLMConfig converts to the generation client configuration.
func (p ProviderConfig) LLMConfig() llm.Config {
	return llm.Config{Provider: p.Provider, Model: p.Model, APIKey: p.APIKey, Extra: p.Extra}
}

// Settings is the immutable configuration of one session. Output directories
// are created by whoever writes there, not here.
type Settings struct {
	MeetingURL      string
	CandidateName   string
	InterviewerName string
	DocumentPath    string
	Provider        ProviderConfig

	TranscriptPath  string
	AudioOutputPath string
	VideoOutputPath string

	Outline      string
	WarmupPrompt string

	CaptureDevice string
	QuestionVoice string

	// Zero means the default; see WithDefaults.
	SettleDelay    time.Duration
	ResponseWindow time.Duration
	ClosingMessage string

	// EventLogDir holds the JSONL session log. Defaults to the transcript directory.
	EventLogDir string
}

// WithDefaults fills unset optional fields. A zero SettleDelay or
// ResponseWindow counts as unset and gets the default; use a small positive
// duration such as 1ms for an effectively immediate step.
func (s Settings) WithDefaults() Settings {
	if s.SettleDelay == 0 {
		s.SettleDelay = DefaultSettleDelay
	}
	if s.ResponseWindow == 0 {
		s.ResponseWindow = DefaultResponseWindow
	}
	if s.ClosingMessage == "" {
		s.ClosingMessage = DefaultClosingMessage
	}
	if s.QuestionVoice == "" {
		s.QuestionVoice = DefaultQuestionVoice
	}
	if s.InterviewerName == "" {
		s.InterviewerName = "Interviewer"
	}
	if s.CandidateName == "" {
		s.CandidateName = "Candidate"
	}
	if s.EventLogDir == "" && s.TranscriptPath != "" {
		s.EventLogDir = filepath.Dir(s.TranscriptPath)
	}
	return s
}

// Validate reports missing mandatory settings. The provider credential is
// checked separately at the start of a session.
func (s Settings) Validate() error {
	var missing []string
	if strings.TrimSpace(s.MeetingURL) == "" {
		missing = append(missing, "meeting_url")
	}
	if strings.TrimSpace(s.DocumentPath) == "" {
		missing = append(missing, "document_path")
	}
	if strings.TrimSpace(s.TranscriptPath) == "" {
		missing = append(missing, "transcript_path")
	}
	if strings.TrimSpace(s.AudioOutputPath) == "" {
		missing = append(missing, "audio_output_path")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Reason: "missing settings: " + strings.Join(missing, ", ")}
	}
	if s.SettleDelay < 0 || s.ResponseWindow < 0 {
		return &ConfigurationError{Reason: "settle delay and response window must not be negative"}
	}
	return nil
}
