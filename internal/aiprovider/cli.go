package aiprovider

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CLIProvider wraps a locally installed CLI (claude, codex/openai) that
// accepts a prompt on stdin and writes the remediation text to stdout.
// It has no token-budget ledger of its own, so Available() probes the
// binary's presence and Generate does not go through the rate limiter.
type CLIProvider struct {
	kind   Kind
	binary string
	args   []string
	lookup func(string) (string, error)
}

// NewLocalClaudeProvider wraps the `claude` CLI.
func NewLocalClaudeProvider() *CLIProvider {
	return &CLIProvider{kind: KindLocalClaude, binary: "claude", args: []string{"-p"}, lookup: lookPath}
}

// NewOpenAICLIProvider wraps an OpenAI-compatible CLI session binary.
func NewOpenAICLIProvider() *CLIProvider {
	return &CLIProvider{kind: KindOpenAICLI, binary: "openai", args: []string{"api", "chat.completions.create", "-m", "gpt-4o", "-g"}, lookup: lookPath}
}

func lookPath(binary string) (string, error) {
	return exec.LookPath(binary)
}

func (p *CLIProvider) Kind() Kind { return p.kind }

func (p *CLIProvider) Available() bool {
	_, err := p.lookup(p.binary)
	return err == nil
}

// Generate shells out to the CLI binary with the remediation prompt on
// stdin, bounded by ctx's deadline.
func (p *CLIProvider) Generate(ctx context.Context, ticket TicketInfo) (Response, error) {
	if !p.Available() {
		return Response{Provider: p.kind}, fmt.Errorf("aiprovider: %s binary not found", p.binary)
	}

	return retryWithBackoff(ctx, 1, func() (Response, error) {
		cmd := exec.CommandContext(ctx, p.binary, p.args...)
		cmd.Stdin = strings.NewReader(buildPrompt(ticket))
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			return Response{Provider: p.kind, Error: strings.TrimSpace(stderr.String())}, fmt.Errorf("aiprovider: %s exited: %w", p.binary, err)
		}

		content := strings.TrimSpace(stdout.String())
		if content == "" {
			return Response{Provider: p.kind}, fmt.Errorf("aiprovider: %s produced no output", p.binary)
		}
		return Response{Content: content, Provider: p.kind, Model: p.binary, Success: true}, nil
	})
}
