// Package llm talks to the text generation providers used to plan and
// summarize interviews.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingAPIKey is returned before any provider call when no credential is set.
	ErrMissingAPIKey = errors.New("an API key is required")
	// ErrUnsupportedProvider is returned for an unknown provider identifier.
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// Default request parameters, matching what planner and summary callers expect.
const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 512
)

// Request is one generation call.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

func (r Request) withDefaults() Request {
	if r.Temperature == 0 {
		r.Temperature = DefaultTemperature
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	return r
}

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Config selects a provider and model.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	Extra    map[string]string
}

// Client dispatches to the provider named in its Config.
type Client struct {
	config Config
	openai *openAIProvider
	claude *anthropicProvider
	gemini *googleProvider
}

// NewClient builds a client. Provider SDK clients are created lazily on first use.
func NewClient(cfg Config) *Client {
	return &Client{config: cfg}
}

func (c *Client) requireAPIKey() (string, error) {
	if strings.TrimSpace(c.config.APIKey) == "" {
		return "", fmt.Errorf("%w for provider '%s'", ErrMissingAPIKey, c.config.Provider)
	}
	return c.config.APIKey, nil
}

// Generate sends req to the configured provider and returns the trimmed text.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	req = req.withDefaults()
	switch strings.ToLower(c.config.Provider) {
	case "openai":
		key, err := c.requireAPIKey()
		if err != nil {
			return "", err
		}
		if c.openai == nil {
			c.openai = newOpenAIProvider(key, c.config)
		}
		return c.openai.generate(ctx, req)
	case "anthropic":
		key, err := c.requireAPIKey()
		if err != nil {
			return "", err
		}
		if c.claude == nil {
			c.claude = newAnthropicProvider(key, c.config)
		}
		return c.claude.generate(ctx, req)
	case "google", "gemini", "google-genai":
		key, err := c.requireAPIKey()
		if err != nil {
			return "", err
		}
		if c.gemini == nil {
			p, err := newGoogleProvider(ctx, key, c.config)
			if err != nil {
				return "", err
			}
			c.gemini = p
		}
		return c.gemini.generate(ctx, req)
	default:
		return "", fmt.Errorf("%w '%s'", ErrUnsupportedProvider, c.config.Provider)
	}
}
