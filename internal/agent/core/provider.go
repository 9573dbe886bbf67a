package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/joonhok/newsagent/config"
)

// OpenAIProvider implements LLMProvider against an OpenAI-compatible
// chat completions endpoint.
type OpenAIProvider struct {
	cfg    config.LLMProviderConfig
	models map[string]config.LLMModel
	client *http.Client
}

// NewOpenAIProvider creates a provider from configuration.
func NewOpenAIProvider(cfg config.LLMConfig) (*OpenAIProvider, error) {
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("no LLM models configured")
	}
	timeout := cfg.Provider.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		cfg:    cfg.Provider,
		models: cfg.Models,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Send dispatches messages (with systemPrompt prepended) to the model
// registered under the given key and returns content, usage and cost.
func (p *OpenAIProvider) Send(ctx context.Context, messages []Message, systemPrompt, model string) (Completion, error) {
	if p.cfg.APIKey == "" {
		return Completion{}, &LLMError{Kind: LLMErrorAuth, Message: "OpenAI API key not configured — set OPENAI_API_KEY"}
	}
	m, ok := p.models[model]
	if !ok {
		return Completion{}, &LLMError{Kind: LLMErrorGeneric, Message: fmt.Sprintf("model %q not configured", model)}
	}
	apiModel := m.APIName
	if apiModel == "" {
		apiModel = m.Name
	}

	all := make([]Message, 0, len(messages)+1)
	if systemPrompt != "" {
		all = append(all, Message{Role: "system", Content: systemPrompt})
	}
	all = append(all, messages...)

	body, err := json.Marshal(chatRequest{
		Model:       apiModel,
		Messages:    all,
		Temperature: m.Temperature,
		MaxTokens:   m.MaxTokens,
	})
	if err != nil {
		return Completion{}, &LLMError{Kind: LLMErrorGeneric, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	baseURL := p.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return Completion{}, &LLMError{Kind: LLMErrorGeneric, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return Completion{}, &LLMError{Kind: LLMErrorGeneric, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Completion{}, NewLLMStatusError(resp.StatusCode, string(snippet))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Completion{}, &LLMError{Kind: LLMErrorGeneric, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(out.Choices) == 0 {
		return Completion{}, &LLMError{Kind: LLMErrorGeneric, Message: "no choices in response"}
	}

	usage := Usage{InputTokens: out.Usage.PromptTokens, OutputTokens: out.Usage.CompletionTokens}
	return Completion{
		Content: out.Choices[0].Message.Content,
		Usage:   usage,
		Model:   model,
		Cost:    p.CalculateCost(usage.InputTokens, usage.OutputTokens, model),
	}, nil
}

// CalculateCost computes the dollar cost of a call from the per-model
// per-1K-token pricing.
func (p *OpenAIProvider) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	m, ok := p.models[model]
	if !ok {
		return 0.0
	}
	inputCost := float64(inputTokens) / 1000.0 * m.CostPer1K
	outputCost := float64(outputTokens) / 1000.0 * m.CostPer1KOutput
	return inputCost + outputCost
}
