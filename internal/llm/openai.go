package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// openAIClientConfig parameterizes an OpenAI or OpenAI-compatible chat
// client (llama.cpp, VLLM, LM Studio, OpenRouter, etc.).
type openAIClientConfig struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

type openAIClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
	name       string
}

func newOpenAIClient(cfg openAIClientConfig) (*openAIClient, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	isOpenAI := baseURL == "https://api.openai.com"
	if isOpenAI && cfg.APIKey == "" {
		return nil, fmt.Errorf("openai chat provider requires an API key (set TPC_CHAT_API_KEY or chat.api_key in config)")
	}

	model := cfg.Model
	if model == "" {
		if isOpenAI {
			model = "gpt-4o-mini"
		} else {
			return nil, fmt.Errorf("openai-compatible chat provider requires a model name")
		}
	}

	name := "openai"
	if !isOpenAI {
		name = "openai-compatible"
	}

	return &openAIClient{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    baseURL,
		model:      model,
		apiKey:     cfg.APIKey,
		name:       name,
	}, nil
}

func (c *openAIClient) Provider() string { return c.name }

func (c *openAIClient) PickBestModel() (string, error) { return c.model, nil }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *responseFmt  `json:"response_format,omitempty"`
}

type responseFmt struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *openAIClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	return c.complete(ctx, systemPrompt, userPrompt, nil)
}

func (c *openAIClient) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	return c.complete(ctx, systemPrompt, userPrompt, &responseFmt{Type: "json_object"})
}

func (c *openAIClient) complete(ctx context.Context, systemPrompt, userPrompt string, format *responseFmt) (string, int, error) {
	var messages []chatMessage
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	body, err := json.Marshal(chatCompletionRequest{Model: c.model, Messages: messages, ResponseFormat: format})
	if err != nil {
		return "", 0, &Error{Kind: KindInvalidOutput, Msg: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", 0, &Error{Kind: KindUnavailable, Msg: "create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, &Error{Kind: KindTimeout, Msg: "generation timed out", Err: err}
		}
		return "", 0, &Error{Kind: KindUnavailable, Msg: "connect to chat provider", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", 0, &Error{Kind: KindUnavailable, Msg: fmt.Sprintf("chat provider returned %d: %s", resp.StatusCode, sanitize(string(respBody), c.apiKey))}
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10*1024*1024)).Decode(&result); err != nil {
		return "", 0, &Error{Kind: KindInvalidOutput, Msg: "decode response", Err: err}
	}
	if result.Error != nil {
		return "", 0, &Error{Kind: KindUnavailable, Msg: sanitize(result.Error.Message, c.apiKey)}
	}
	if len(result.Choices) == 0 {
		return "", 0, &Error{Kind: KindInvalidOutput, Msg: "no choices returned"}
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), result.Usage.TotalTokens, nil
}

func sanitize(msg, apiKey string) string {
	if apiKey == "" {
		return msg
	}
	return strings.ReplaceAll(msg, apiKey, "[REDACTED]")
}

