// Package tts renders interview questions as 8kHz signed linear audio.
package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/amanullahtanweer/interview-orchestrator/internal/audio"
)

// openaiPCMRate is the sample rate of the "pcm" speech response format.
const openaiPCMRate = 24000

// OpenAI synthesizes speech with the OpenAI speech endpoint.
type OpenAI struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
}

// NewOpenAI creates a synthesizer. An empty baseURL uses the public API.
func NewOpenAI(apiKey, voice, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.TTSModel1,
		voice:  openai.SpeechVoice(voice),
	}
}

func (o *OpenAI) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("nothing to say")
	}
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          o.voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech audio: %w", err)
	}
	return audio.Resample(pcm, openaiPCMRate, audio.SampleRate), nil
}

// Silence produces quiet audio whose length follows the text. It stands in
// for a real voice during dry runs.
type Silence struct {
	PerWord time.Duration
}

func (s Silence) Synthesize(ctx context.Context, text string) ([]byte, error) {
	perWord := s.PerWord
	if perWord <= 0 {
		perWord = 300 * time.Millisecond
	}
	words := len(strings.Fields(text))
	samples := int(time.Duration(words) * perWord * audio.SampleRate / time.Second)
	return make([]byte, samples*2), nil
}
