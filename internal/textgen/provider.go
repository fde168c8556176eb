package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	providerTimeout    = 30 * time.Second
	defaultTemperature = 0.7
	defaultMaxTokens   = 600
)

// Provider is a single caption/hashtag model backend. Complete returns the
// raw model text for a prompt.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// chatClient talks to an OpenAI-compatible chat completions endpoint. Both
// OpenAI and Deepseek expose this shape.
type chatClient struct {
	name     string
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *chatClient) Name() string {
	return c.name
}

func (c *chatClient) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s response: %w", c.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned status %d: %s", c.name, resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%s decode: %w", c.name, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", c.name)
	}
	return parsed.Choices[0].Message.Content, nil
}

// NewOpenAI builds the OpenAI chat provider.
func NewOpenAI(apiKey string) Provider {
	return &chatClient{
		name:     "openai",
		endpoint: "https://api.openai.com/v1/chat/completions",
		model:    "gpt-4o",
		apiKey:   apiKey,
		client:   &http.Client{Timeout: providerTimeout},
	}
}

// NewDeepseek builds the Deepseek chat provider.
func NewDeepseek(apiKey string) Provider {
	return &chatClient{
		name:     "deepseek",
		endpoint: "https://api.deepseek.com/v1/chat/completions",
		model:    "deepseek-chat",
		apiKey:   apiKey,
		client:   &http.Client{Timeout: providerTimeout},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
