package reasoning

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// Config selects and tunes the reasoning provider.
type Config struct {
	Provider string

	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string

	MistralAPIKey  string
	MistralModel   string
	MistralBaseURL string

	MaxTokens      int
	RequestTimeout time.Duration

	// RequestsPerMinute bounds outbound calls; 0 disables the limiter.
	RequestsPerMinute int
	Burst             int

	StatsWindow time.Duration
}

type providerClient interface {
	Reasoner
	Model() string
	Close()
}

// Client is the process-wide reasoning collaborator: a provider client
// behind a rate limiter and latency instrumentation.
type Client struct {
	provider Provider
	backend  providerClient
	chain    Reasoner
	stats    *LLMStats
}

// New builds a Client for cfg. An explicit provider wins; with "auto" (or
// empty) Anthropic is used when its key is set, otherwise Mistral.
func New(cfg Config) (*Client, error) {
	p, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if p == ProviderAuto {
		p = autoSelect(cfg)
	}

	var backend providerClient
	switch p {
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.WithHint(errors.New("anthropic provider selected without an api key"),
				"set ANTHROPIC_API_KEY")
		}
		backend = NewAnthropicClient(AnthropicConfig{
			APIKey:    cfg.AnthropicAPIKey,
			Model:     cfg.AnthropicModel,
			BaseURL:   cfg.AnthropicBaseURL,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.RequestTimeout,
		})
	case ProviderMistral:
		if cfg.MistralAPIKey == "" {
			return nil, errors.WithHint(errors.New("mistral provider selected without an api key"),
				"set MISTRAL_API_KEY or ANTHROPIC_API_KEY")
		}
		backend = NewMistralClient(MistralConfig{
			APIKey:    cfg.MistralAPIKey,
			Model:     cfg.MistralModel,
			BaseURL:   cfg.MistralBaseURL,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.RequestTimeout,
		})
	}

	stats := NewLLMStats(cfg.StatsWindow)
	chain := NewInstrumented(NewRateLimited(backend, cfg.RequestsPerMinute, cfg.Burst), stats)
	return &Client{provider: p, backend: backend, chain: chain, stats: stats}, nil
}

func autoSelect(cfg Config) Provider {
	if cfg.AnthropicAPIKey != "" {
		return ProviderAnthropic
	}
	return ProviderMistral
}

func (c *Client) Invoke(ctx context.Context, req Request) (string, error) {
	return c.chain.Invoke(ctx, req)
}

func (c *Client) Provider() Provider { return c.provider }

func (c *Client) Model() string { return c.backend.Model() }

func (c *Client) Stats() *LLMStats { return c.stats }

// Close releases resources.
func (c *Client) Close() { c.backend.Close() }
