package aiprovider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreeAlternativeProviderAlwaysSucceeds(t *testing.T) {
	p := NewFreeAlternativeProvider()
	assert.Equal(t, KindFreeAlternative, p.Kind())
	assert.True(t, p.Available())

	resp, err := p.Generate(context.Background(), TicketInfo{
		ErrorType: "ValueError", Source: "mod.go", Message: "boom", StackTrace: "trace line",
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Content, "ValueError")
	assert.Contains(t, resp.Content, "trace line")
}

func TestCLIProviderUnavailableWhenBinaryMissing(t *testing.T) {
	p := &CLIProvider{
		kind:   KindLocalClaude,
		binary: "claude",
		args:   []string{"-p"},
		lookup: func(string) (string, error) { return "", errors.New("not found") },
	}
	assert.Equal(t, KindLocalClaude, p.Kind())
	assert.False(t, p.Available())

	_, err := p.Generate(context.Background(), TicketInfo{})
	require.Error(t, err)
}

func TestCLIProviderAvailableWhenBinaryFound(t *testing.T) {
	p := &CLIProvider{
		kind:   KindOpenAICLI,
		binary: "openai",
		lookup: func(string) (string, error) { return "/usr/bin/openai", nil },
	}
	assert.True(t, p.Available())
}

func TestClaudeAPIProviderUnavailableWithoutKey(t *testing.T) {
	p := NewClaudeAPIProvider("", "", noopLimiter{})
	assert.False(t, p.Available())

	_, err := p.Generate(context.Background(), TicketInfo{})
	require.Error(t, err)
}

func TestClaudeAPIProviderAvailableWithKey(t *testing.T) {
	p := NewClaudeAPIProvider("sk-test", "", noopLimiter{})
	assert.True(t, p.Available())
	assert.Equal(t, KindClaudeAPI, p.Kind())
}

func TestOpenAIAPIProviderUnavailableWithoutKey(t *testing.T) {
	p := NewOpenAIAPIProvider("", "", noopLimiter{})
	assert.False(t, p.Available())

	_, err := p.Generate(context.Background(), TicketInfo{})
	require.Error(t, err)
}

func TestOllamaProviderDefaultsBaseURLAndModel(t *testing.T) {
	p := NewOllamaProvider("", "")
	assert.Equal(t, ollamaDefaultBaseURL, p.baseURL)
	assert.Equal(t, ollamaDefaultModel, p.model)
	assert.Equal(t, KindOllama, p.Kind())
}

func TestOllamaProviderUnavailableWithoutServer(t *testing.T) {
	p := NewOllamaProvider("http://127.0.0.1:1", "")
	assert.False(t, p.Available())
}
