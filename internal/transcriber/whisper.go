package transcriber

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// WhisperTranscriber uploads the recording to the OpenAI transcription endpoint.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

func NewWhisperTranscriber(apiKey, model, baseURL string) (*WhisperTranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required for whisper transcription")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (wt *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := wt.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    wt.model,
		FilePath: audioPath,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
