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

const ollamaDefaultBaseURL = "http://localhost:11434"
const ollamaDefaultModel = "llama3"

// OllamaProvider calls a local Ollama server's generate endpoint.
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaProvider builds a provider pointed at baseURL (defaults to
// the local Ollama daemon).
func NewOllamaProvider(baseURL, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}
	if model == "" {
		model = ollamaDefaultModel
	}
	return &OllamaProvider{baseURL: baseURL, model: model, httpClient: &http.Client{Timeout: 300 * time.Second}}
}

func (p *OllamaProvider) Kind() Kind { return KindOllama }

// Available probes the daemon's /api/tags endpoint with a short timeout.
func (p *OllamaProvider) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate calls the local Ollama daemon; it is always free, so
// failures here are not fatal to the overall chain.
func (p *OllamaProvider) Generate(ctx context.Context, ticket TicketInfo) (Response, error) {
	return retryWithBackoff(ctx, 1, func() (Response, error) {
		return p.call(ctx, ticket)
	})
}

func (p *OllamaProvider) call(ctx context.Context, ticket TicketInfo) (Response, error) {
	reqBody := ollamaGenerateRequest{
		Model:  p.model,
		Prompt: remediationSystemPrompt + "\n\n" + buildPrompt(ticket),
		Stream: false,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Response{Provider: KindOllama}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Response{Provider: KindOllama}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return Response{Provider: KindOllama, Error: err.Error()}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{Provider: KindOllama, Error: err.Error()}, err
	}
	if resp.StatusCode != http.StatusOK {
		errMsg := fmt.Sprintf("ollama status %d: %s", resp.StatusCode, string(respBody))
		return Response{Provider: KindOllama, Error: errMsg}, fmt.Errorf("%s", errMsg)
	}

	var parsed ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Response{Provider: KindOllama, Error: err.Error()}, err
	}

	return Response{Content: parsed.Response, Provider: KindOllama, Model: parsed.Model, Success: parsed.Response != ""}, nil
}
