package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const googleDefaultModel = "gemini-2.0-flash"

type googleProvider struct {
	client *genai.Client
	model  string
}

func newGoogleProvider(ctx context.Context, apiKey string, cfg Config) (*googleProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = googleDefaultModel
	}
	return &googleProvider{client: client, model: model}, nil
}

func (p *googleProvider) generate(ctx context.Context, req Request) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.Prompt), genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini generate content: no candidates returned")
	}
	return strings.TrimSpace(resp.Text()), nil
}
