package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/sgx-labs/tripartite/internal/config"
)

func TestNewClient_ExplicitOpenAICompatible(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Chat.Provider = "openai-compatible"
	cfg.Chat.BaseURL = "http://localhost:1234"
	cfg.Chat.Model = "llama3.2"

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Provider() != "openai-compatible" {
		t.Fatalf("expected openai-compatible provider, got %q", client.Provider())
	}
}

func TestNewClient_ExplicitOpenAIRequiresAPIKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Chat.Provider = "openai"

	_, err := NewClient(cfg)
	if err == nil {
		t.Fatal("expected error for missing openai API key")
	}
	if !strings.Contains(err.Error(), "requires") {
		t.Fatalf("expected missing-key error, got: %v", err)
	}
}

func TestNewClient_AutoFallsBackToOllama(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Embedding.Provider = "none"

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Provider() != "ollama" {
		t.Fatalf("expected ollama fallback, got %q", client.Provider())
	}
}

func TestOpenAIClient_GenerateJSONRequestsJSONFormat(t *testing.T) {
	client, err := newOpenAIClient(openAIClientConfig{
		Provider: "openai-compatible",
		BaseURL:  "http://localhost:1234",
		Model:    "llama3.2",
	})
	if err != nil {
		t.Fatalf("newOpenAIClient: %v", err)
	}
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			defer req.Body.Close()

			var payload map[string]any
			_ = json.Unmarshal(body, &payload)
			if _, ok := payload["response_format"]; !ok {
				t.Errorf("expected response_format in request, got %v", payload)
			}
			return jsonResponse(http.StatusOK, `{"choices":[{"message":{"content":"{\"telos\": \"x\"}"}}],"usage":{"total_tokens":12}}`), nil
		}),
	}

	got, tokens, err := client.GenerateJSON(context.Background(), "", "extract manifest")
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if got != `{"telos": "x"}` {
		t.Fatalf("unexpected JSON output: %q", got)
	}
	if tokens != 12 {
		t.Fatalf("expected token count from usage, got %d", tokens)
	}
}

func TestOpenAIClient_SanitizesAPIKeyFromErrors(t *testing.T) {
	client, err := newOpenAIClient(openAIClientConfig{
		Provider: "openai",
		APIKey:   "sk-secret-value",
	})
	if err != nil {
		t.Fatalf("newOpenAIClient: %v", err)
	}
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusUnauthorized, `invalid key sk-secret-value supplied`), nil
		}),
	}

	_, _, err = client.Generate(context.Background(), "", "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "sk-secret-value") {
		t.Fatalf("expected API key redacted from error, got: %v", err)
	}
}

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}
