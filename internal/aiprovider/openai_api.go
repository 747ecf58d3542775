package aiprovider

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
	openAIBaseURL    = "https://api.openai.com/v1"
	openAIDefaultModel = "gpt-4o"
)

// OpenAIAPIProvider calls the OpenAI chat completions API directly.
type OpenAIAPIProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    rateLimiter
}

// NewOpenAIAPIProvider builds a provider bound to apiKey.
func NewOpenAIAPIProvider(apiKey, model string, limiter rateLimiter) *OpenAIAPIProvider {
	if model == "" {
		model = openAIDefaultModel
	}
	return &OpenAIAPIProvider{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 300 * time.Second},
		limiter:    limiter,
	}
}

func (p *OpenAIAPIProvider) Kind() Kind      { return KindOpenAIAPI }
func (p *OpenAIAPIProvider) Available() bool { return p.apiKey != "" }

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model     string              `json:"model"`
	Messages  []openAIChatMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

type openAIChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIChatMessage `json:"message"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate sends the remediation prompt to the OpenAI API.
func (p *OpenAIAPIProvider) Generate(ctx context.Context, ticket TicketInfo) (Response, error) {
	if !p.Available() {
		return Response{Provider: KindOpenAIAPI}, fmt.Errorf("aiprovider: openai_api not configured")
	}
	if err := p.limiter.Check(string(KindOpenAIAPI)); err != nil {
		return Response{Provider: KindOpenAIAPI, Success: false, Error: err.Error()}, err
	}

	return retryWithBackoff(ctx, 1, func() (Response, error) {
		return p.call(ctx, ticket)
	})
}

func (p *OpenAIAPIProvider) call(ctx context.Context, ticket TicketInfo) (Response, error) {
	reqBody := openAIChatRequest{
		Model: p.model,
		Messages: []openAIChatMessage{
			{Role: "system", Content: remediationSystemPrompt},
			{Role: "user", Content: buildPrompt(ticket)},
		},
		MaxTokens: 4096,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Response{Provider: KindOpenAIAPI}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIBaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{Provider: KindOpenAIAPI}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.limiter.Record(string(KindOpenAIAPI), false, nil, nil, err.Error())
		return Response{Provider: KindOpenAIAPI, Error: err.Error()}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		p.limiter.Record(string(KindOpenAIAPI), false, nil, nil, err.Error())
		return Response{Provider: KindOpenAIAPI, Error: err.Error()}, err
	}

	if resp.StatusCode != http.StatusOK {
		errMsg := fmt.Sprintf("openai api status %d: %s", resp.StatusCode, string(respBody))
		p.limiter.Record(string(KindOpenAIAPI), false, nil, nil, errMsg)
		return Response{Provider: KindOpenAIAPI, Error: errMsg}, fmt.Errorf("%s", errMsg)
	}

	var parsed openAIChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		p.limiter.Record(string(KindOpenAIAPI), false, nil, nil, err.Error())
		return Response{Provider: KindOpenAIAPI, Error: err.Error()}, err
	}
	if len(parsed.Choices) == 0 {
		errMsg := "openai api returned no choices"
		p.limiter.Record(string(KindOpenAIAPI), false, nil, nil, errMsg)
		return Response{Provider: KindOpenAIAPI, Error: errMsg}, fmt.Errorf("%s", errMsg)
	}

	tokens := parsed.Usage.TotalTokens
	cost := estimateOpenAICost(parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens)
	p.limiter.Record(string(KindOpenAIAPI), true, &tokens, &cost, "")

	return Response{
		Content:  parsed.Choices[0].Message.Content,
		Provider: KindOpenAIAPI,
		Model:    parsed.Model,
		Success:  true,
		Tokens:   tokens,
		CostUSD:  cost,
	}, nil
}

func estimateOpenAICost(promptTokens, completionTokens int) float64 {
	const inputPerMillion = 2.5
	const outputPerMillion = 10.0
	return float64(promptTokens)/1_000_000*inputPerMillion + float64(completionTokens)/1_000_000*outputPerMillion
}
