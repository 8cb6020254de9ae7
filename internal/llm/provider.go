package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/briefops/briefer/config"
)

// Provider generates text from a prompt against a configured model and
// reports token usage. Implementations must be safe for concurrent use.
type Provider interface {
	GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error)
	CalculateCost(inputTokens, outputTokens int64, model string) float64
}

// NewProvider builds a provider from configuration. Only the
// OpenAI-compatible chat completions shape is wired; any base URL
// speaking that protocol works.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	for _, provider := range cfg.Providers {
		switch provider.Type {
		case "openai", "openai_compatible":
			return NewOpenAIProvider(provider), nil
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", provider.Type)
		}
	}
	return nil, fmt.Errorf("no valid LLM providers found")
}

// OpenAIProvider implements Provider over the chat completions API.
type OpenAIProvider struct {
	config config.LLMProvider
	models map[string]config.LLMModel
	client *http.Client
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible endpoint.
func NewOpenAIProvider(cfg config.LLMProvider) *OpenAIProvider {
	return &OpenAIProvider{
		config: cfg,
		models: cfg.Models,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// GenerateWithTokens sends one chat completion and returns the content
// plus prompt/completion token counts.
func (p *OpenAIProvider) GenerateWithTokens(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, int64, int64, error) {
	apiKey := p.config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return "", 0, 0, fmt.Errorf("OpenAI API key not configured")
	}

	m, ok := p.models[model]
	if !ok {
		return "", 0, 0, fmt.Errorf("model %s not configured", model)
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}

	temperature := m.Temperature
	if t, ok := options["temperature"].(float64); ok {
		temperature = t
	}
	maxTokens := m.MaxTokens
	if mt, ok := options["max_tokens"].(int); ok {
		maxTokens = mt
	}

	type chatMsg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type chatReq struct {
		Model       string    `json:"model"`
		Messages    []chatMsg `json:"messages"`
		Temperature float64   `json:"temperature,omitempty"`
		MaxTokens   int       `json:"max_tokens,omitempty"`
	}

	body, err := json.Marshal(chatReq{
		Model:       apiModel,
		Messages:    []chatMsg{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("marshal: %w", err)
	}

	baseURL := p.config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", 0, 0, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, 0, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, 0, fmt.Errorf("chat completions status %d", resp.StatusCode)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, 0, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", 0, 0, fmt.Errorf("no choices")
	}

	return out.Choices[0].Message.Content, int64(out.Usage.PromptTokens), int64(out.Usage.CompletionTokens), nil
}

// CalculateCost estimates the dollar cost of a call from configured
// per-1K token prices.
func (p *OpenAIProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	m, ok := p.models[model]
	if !ok {
		return 0.0
	}
	inputCost := float64(inputTokens) / 1000.0 * m.CostPer1K
	outputCost := float64(outputTokens) / 1000.0 * m.CostPer1KOutput
	return inputCost + outputCost
}
