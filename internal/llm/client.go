// Package llm resolves and wraps the chat-generation backend — the
// LocalModel external interface the Intent, Logic, and Truth agents invoke
// through. Provider selection follows the embedding package's shape:
// ollama by default, openai/openai-compatible when configured.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sgx-labs/tripartite/internal/config"
	"github.com/sgx-labs/tripartite/internal/ollama"
)

// Kind distinguishes the typed failure modes a Client can return, matching
// the error taxonomy the LocalModel interface commits to.
type Kind string

const (
	KindUnavailable  Kind = "model_unavailable"
	KindTimeout      Kind = "model_timeout"
	KindInvalidOutput Kind = "model_invalid_output"
)

// Error is a typed LocalModel failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("llm: %s", e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Client is the provider-agnostic LocalModel backend. System/user prompt
// separation matches the spec'd `generate(system_prompt, user_prompt)`
// contract; the returned int is the backend's own token accounting.
type Client interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, int, error)
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, int, error)
	PickBestModel() (string, error)
	Provider() string
}

// DefaultTimeout bounds a single generation call absent a caller-supplied
// deadline, so a hung backend can't stall an entire consensus round.
const DefaultTimeout = 60 * time.Second

// NewClient constructs a chat client from cfg, trying providers in the
// order: explicit cfg.Chat.Provider, else the embedding provider (when chat
// isn't separately configured), else ollama as the local fallback.
func NewClient(cfg *config.Config) (Client, error) {
	providers := providerOrder(cfg)

	var errs []string
	for _, provider := range providers {
		client, err := newClientForProvider(provider, cfg)
		if err == nil {
			return client, nil
		}
		errs = append(errs, fmt.Sprintf("%s: %v", provider, err))
	}
	return nil, fmt.Errorf("llm: no chat provider available (%s)", strings.Join(errs, "; "))
}

func providerOrder(cfg *config.Config) []string {
	p := normalizeProvider(cfg.Chat.Provider)
	if p != "" && p != "auto" {
		return []string{p}
	}

	var order []string
	add := func(provider string) {
		provider = normalizeProvider(provider)
		if provider == "" || provider == "auto" {
			return
		}
		for _, existing := range order {
			if existing == provider {
				return
			}
		}
		order = append(order, provider)
	}

	if cfg.Embedding.Provider != "none" {
		add(cfg.Embedding.Provider)
	}
	add("ollama")
	if cfg.Chat.BaseURL != "" {
		add("openai-compatible")
	}
	if cfg.Chat.APIKey != "" {
		add("openai")
	}
	return order
}

func normalizeProvider(provider string) string {
	p := strings.ToLower(strings.TrimSpace(provider))
	switch p {
	case "", "auto":
		return "auto"
	default:
		return p
	}
}

func newClientForProvider(provider string, cfg *config.Config) (Client, error) {
	switch normalizeProvider(provider) {
	case "ollama":
		baseURL := cfg.Chat.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		if err := validateLocalhostOnly(baseURL); err != nil {
			return nil, err
		}
		return &ollamaClient{client: ollama.NewClient(baseURL), model: cfg.Chat.Model}, nil
	case "openai", "openai-compatible":
		return newOpenAIClient(openAIClientConfig{
			Provider: provider,
			Model:    cfg.Chat.Model,
			BaseURL:  cfg.Chat.BaseURL,
			APIKey:   cfg.Chat.APIKey,
		})
	default:
		return nil, fmt.Errorf("unknown chat provider: %q", provider)
	}
}

func validateLocalhostOnly(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid ollama base URL: %w", err)
	}
	host := strings.TrimSpace(u.Hostname())
	if host != "" && host != "localhost" && host != "127.0.0.1" && host != "::1" {
		return errors.New("ollama base URL must be localhost")
	}
	return nil
}

type ollamaClient struct {
	client *ollama.Client
	model  string
}

func (c *ollamaClient) Provider() string { return "ollama" }

func (c *ollamaClient) resolveModel() (string, error) {
	if c.model != "" {
		return c.model, nil
	}
	return c.client.PickBestModel()
}

func (c *ollamaClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	model, err := c.resolveModel()
	if err != nil {
		return "", 0, &Error{Kind: KindUnavailable, Msg: "resolve model", Err: err}
	}
	text, tokens, err := c.client.Generate(ctx, model, systemPrompt, userPrompt)
	return wrapOllamaResult(text, tokens, err)
}

func (c *ollamaClient) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	model, err := c.resolveModel()
	if err != nil {
		return "", 0, &Error{Kind: KindUnavailable, Msg: "resolve model", Err: err}
	}
	text, tokens, err := c.client.GenerateJSON(ctx, model, systemPrompt, userPrompt)
	return wrapOllamaResult(text, tokens, err)
}

func (c *ollamaClient) PickBestModel() (string, error) {
	return c.client.PickBestModel()
}

func wrapOllamaResult(text string, tokens int, err error) (string, int, error) {
	if err == nil {
		return text, tokens, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "", 0, &Error{Kind: KindTimeout, Msg: "generation timed out", Err: err}
	}
	return "", 0, &Error{Kind: KindUnavailable, Msg: "ollama generate", Err: err}
}
