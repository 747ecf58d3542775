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
	claudeBaseURL    = "https://api.anthropic.com"
	claudeAPIVersion = "2023-06-01"
	claudeDefaultModel = "claude-sonnet-4-20250514"
)

// ClaudeAPIProvider calls the Anthropic Messages API directly over HTTPS.
type ClaudeAPIProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    rateLimiter
}

// NewClaudeAPIProvider builds a provider bound to apiKey; an empty key
// makes Available() report false without disabling the adapter.
func NewClaudeAPIProvider(apiKey, model string, limiter rateLimiter) *ClaudeAPIProvider {
	if model == "" {
		model = claudeDefaultModel
	}
	return &ClaudeAPIProvider{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 300 * time.Second},
		limiter:    limiter,
	}
}

func (p *ClaudeAPIProvider) Kind() Kind     { return KindClaudeAPI }
func (p *ClaudeAPIProvider) Available() bool { return p.apiKey != "" }

type claudeSystemBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeMessage struct {
	Role    string                `json:"role"`
	Content []claudeContentBlock `json:"content"`
}

type claudeRequest struct {
	Model     string              `json:"model"`
	MaxTokens int                 `json:"max_tokens"`
	System    []claudeSystemBlock `json:"system,omitempty"`
	Messages  []claudeMessage     `json:"messages"`
}

type claudeResponse struct {
	Content []claudeContentBlock `json:"content"`
	Model   string               `json:"model"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (r *claudeResponse) text() string {
	var out string
	for _, b := range r.Content {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// Generate sends the remediation prompt to the Anthropic API.
func (p *ClaudeAPIProvider) Generate(ctx context.Context, ticket TicketInfo) (Response, error) {
	if !p.Available() {
		return Response{Provider: KindClaudeAPI}, fmt.Errorf("aiprovider: claude_api not configured")
	}
	if err := p.limiter.Check(string(KindClaudeAPI)); err != nil {
		return Response{Provider: KindClaudeAPI, Success: false, Error: err.Error()}, err
	}

	return retryWithBackoff(ctx, 1, func() (Response, error) {
		return p.call(ctx, ticket)
	})
}

func (p *ClaudeAPIProvider) call(ctx context.Context, ticket TicketInfo) (Response, error) {
	reqBody := claudeRequest{
		Model:     p.model,
		MaxTokens: 4096,
		System:    []claudeSystemBlock{{Type: "text", Text: remediationSystemPrompt}},
		Messages:  []claudeMessage{{Role: "user", Content: []claudeContentBlock{{Type: "text", Text: buildPrompt(ticket)}}}},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Response{Provider: KindClaudeAPI}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeBaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return Response{Provider: KindClaudeAPI}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", claudeAPIVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.limiter.Record(string(KindClaudeAPI), false, nil, nil, err.Error())
		return Response{Provider: KindClaudeAPI, Error: err.Error()}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		p.limiter.Record(string(KindClaudeAPI), false, nil, nil, err.Error())
		return Response{Provider: KindClaudeAPI, Error: err.Error()}, err
	}

	if resp.StatusCode != http.StatusOK {
		errMsg := fmt.Sprintf("claude api status %d: %s", resp.StatusCode, string(respBody))
		p.limiter.Record(string(KindClaudeAPI), false, nil, nil, errMsg)
		return Response{Provider: KindClaudeAPI, Error: errMsg}, fmt.Errorf("%s", errMsg)
	}

	var parsed claudeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		p.limiter.Record(string(KindClaudeAPI), false, nil, nil, err.Error())
		return Response{Provider: KindClaudeAPI, Error: err.Error()}, err
	}

	tokens := parsed.Usage.InputTokens + parsed.Usage.OutputTokens
	cost := estimateClaudeCost(parsed.Usage.InputTokens, parsed.Usage.OutputTokens)
	p.limiter.Record(string(KindClaudeAPI), true, &tokens, &cost, "")

	return Response{
		Content:  parsed.text(),
		Provider: KindClaudeAPI,
		Model:    parsed.Model,
		Success:  true,
		Tokens:   tokens,
		CostUSD:  cost,
	}, nil
}

func estimateClaudeCost(inputTokens, outputTokens int) float64 {
	const inputPerMillion = 3.0
	const outputPerMillion = 15.0
	return float64(inputTokens)/1_000_000*inputPerMillion + float64(outputTokens)/1_000_000*outputPerMillion
}
