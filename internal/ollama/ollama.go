// Package ollama provides a client for Ollama LLM inference (generate/chat),
// the default LocalModel backend for the Intent, Logic, and Truth agents.
// Separate from the embedding package since embeddings and LLM generation
// use different models and have different retry/timeout characteristics.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to a local Ollama instance for LLM generation.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates an Ollama LLM client at the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    baseURL,
	}
}

// NewClientWithURL creates an Ollama LLM client with a specific base URL.
// Used for testing. No localhost validation is performed.
func NewClientWithURL(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
	}
}

// Model represents an Ollama model from /api/tags.
type Model struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type tagsResponse struct {
	Models []Model `json:"models"`
}

// embedModels are known embedding-only models that can't do generation.
var embedModels = map[string]bool{
	"nomic-embed-text":        true,
	"nomic-embed-text-v2-moe": true,
	"mxbai-embed-large":       true,
	"all-minilm":              true,
	"snowflake-arctic-embed":  true,
	"snowflake-arctic-embed2": true,
	"embeddinggemma":          true,
	"qwen3-embedding":         true,
	"bge-base-en":             true,
	"bge-large-en":            true,
	"bge-m3":                  true,
}

// ListChatModels returns available chat/instruct models (excludes embedding models).
func (c *Client) ListChatModels() ([]Model, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/api/tags")
	if err != nil {
		return nil, fmt.Errorf("connect to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ollama returned %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10*1024*1024)).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var chat []Model
	for _, m := range tags.Models {
		baseName := m.Name
		if idx := strings.Index(baseName, ":"); idx > 0 {
			baseName = baseName[:idx]
		}
		if embedModels[baseName] {
			continue
		}
		chat = append(chat, m)
	}
	return chat, nil
}

// preferredModels lists models in preference order (smallest/fastest first).
var preferredModels = []string{
	"llama3.2:1b", "llama3.2:3b", "llama3.2",
	"qwen2.5:3b", "qwen2.5:7b", "qwen2.5",
	"mistral", "gemma2", "phi3",
}

// PickBestModel selects the best available chat model.
// Prefers smaller models for speed. Returns empty string if none available.
func (c *Client) PickBestModel() (string, error) {
	models, err := c.ListChatModels()
	if err != nil {
		return "", err
	}
	if len(models) == 0 {
		return "", nil
	}

	available := make(map[string]bool, len(models))
	for _, m := range models {
		available[m.Name] = true
	}

	for _, pref := range preferredModels {
		if available[pref] {
			return pref, nil
		}
	}

	// Fall back to first available chat model
	return models[0].Name, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response   string `json:"response"`
	EvalCount  int    `json:"eval_count"`
	PromptEval int    `json:"prompt_eval_count"`
}

// Generate sends a system/user prompt pair to Ollama and returns the
// response text plus the token count Ollama reports for the generation.
func (c *Client) Generate(ctx context.Context, model, systemPrompt, prompt string) (string, int, error) {
	return c.generate(ctx, model, systemPrompt, prompt, "")
}

// GenerateJSON behaves like Generate but forces a JSON-formatted response,
// used by agents that must parse a structured Manifest or Verdict.
func (c *Client) GenerateJSON(ctx context.Context, model, systemPrompt, prompt string) (string, int, error) {
	return c.generate(ctx, model, systemPrompt, prompt, "json")
}

func (c *Client) generate(ctx context.Context, model, systemPrompt, prompt, format string) (string, int, error) {
	body, err := json.Marshal(generateRequest{
		Model:  model,
		System: systemPrompt,
		Prompt: prompt,
		Format: format,
		Stream: false,
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("connect to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", 0, fmt.Errorf("Ollama returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10*1024*1024)).Decode(&result); err != nil {
		return "", 0, fmt.Errorf("decode response: %w", err)
	}

	tokens := result.EvalCount
	if tokens == 0 {
		tokens = len(strings.Fields(result.Response))
	}
	return strings.TrimSpace(result.Response), tokens, nil
}
