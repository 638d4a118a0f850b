package transcriber

import (
	"context"
	"fmt"
	"strings"
)

// Transcriber is the common interface for all transcription providers. It
// turns a finished recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// TranscriptionResult represents a transcription result
type TranscriptionResult struct {
	Text    string
	IsFinal bool
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	// URL overrides the provider endpoint. Required for vosk.
	URL string
}

// New builds the configured provider. Provider "none" returns nil so the
// session records a placeholder instead of a transcript.
func New(cfg Config) (Transcriber, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "none":
		return nil, nil
	case "vosk":
		if cfg.URL == "" {
			return nil, fmt.Errorf("vosk server URL is required")
		}
		return NewVoskTranscriber(cfg.URL), nil
	case "assemblyai":
		return NewAssemblyAITranscriber(cfg.APIKey, cfg.URL)
	case "whisper", "openai":
		return NewWhisperTranscriber(cfg.APIKey, cfg.Model, cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported transcription provider %q", cfg.Provider)
	}
}

// joinFinals joins final segments with single spaces.
func joinFinals(segments []string) string {
	var b strings.Builder
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(s)
	}
	return b.String()
}
