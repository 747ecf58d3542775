package aiprovider

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// fixedProbeOrder is the order C11 probes providers in when no
// preferred provider short-circuits the chain.
var fixedProbeOrder = []Kind{KindLocalClaude, KindOpenAICLI, KindClaudeAPI, KindOpenAIAPI, KindOllama}

// Registry holds every configured provider adapter and builds ordered
// chains over them on demand.
type Registry struct {
	mu        sync.Mutex
	providers map[Kind]Provider
	free      Provider

	lastProvider Kind
	lastModel    string
}

// NewRegistry wires the closed set of adapters. Any of claudeAPIKey /
// openAIAPIKey may be empty; the corresponding adapter stays registered
// but reports Available() == false.
func NewRegistry(claudeAPIKey, claudeModel, openAIAPIKey, openAIModel, ollamaBaseURL, ollamaModel string, limiter rateLimiter) *Registry {
	free := NewFreeAlternativeProvider()
	r := &Registry{
		providers: map[Kind]Provider{
			KindLocalClaude: NewLocalClaudeProvider(),
			KindOpenAICLI:   NewOpenAICLIProvider(),
			KindClaudeAPI:   NewClaudeAPIProvider(claudeAPIKey, claudeModel, limiter),
			KindOpenAIAPI:   NewOpenAIAPIProvider(openAIAPIKey, openAIModel, limiter),
			KindOllama:      NewOllamaProvider(ollamaBaseURL, ollamaModel),
			KindFreeAlternative: free,
		},
		free: free,
	}
	return r
}

// BuildChain implements spec 4.11's ordering rule:
//  1. preferred first, if given and registered.
//  2. if strictPreferred, append only the free alternative and stop.
//  3. otherwise probe the fixed order and append any available adapters.
//  4. always end with the free alternative.
func (r *Registry) BuildChain(preferred Kind, strictPreferred bool) []Kind {
	var chain []Kind
	seen := make(map[Kind]bool)

	add := func(k Kind) {
		if !seen[k] {
			chain = append(chain, k)
			seen[k] = true
		}
	}

	if preferred != "" {
		if _, ok := r.providers[preferred]; ok {
			add(preferred)
		}
	}

	if strictPreferred {
		add(KindFreeAlternative)
		return chain
	}

	for _, k := range fixedProbeOrder {
		if p, ok := r.providers[k]; ok && p.Available() {
			add(k)
		}
	}
	add(KindFreeAlternative)
	return chain
}

// GenerateFix runs GenerateFix over the chain built for preferred /
// strictPreferred, returning the first success. Every provider's error
// is accumulated; a composite error is returned only if all fail (which
// should not happen, since free_alternative always succeeds).
func (r *Registry) GenerateFix(ctx context.Context, ticket TicketInfo, preferred Kind, strictPreferred bool) (Response, error) {
	chain := r.BuildChain(preferred, strictPreferred)

	var errs []string
	for _, kind := range chain {
		provider, ok := r.providers[kind]
		if !ok || !provider.Available() {
			continue
		}
		resp, err := provider.Generate(ctx, ticket)
		if err == nil && resp.Success {
			r.mu.Lock()
			r.lastProvider = kind
			r.lastModel = resp.Model
			r.mu.Unlock()
			return resp, nil
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", kind, err))
		} else if resp.Error != "" {
			errs = append(errs, fmt.Sprintf("%s: %s", kind, resp.Error))
		}
	}

	return Response{Success: false}, fmt.Errorf("aiprovider: all providers failed: %s", strings.Join(errs, "; "))
}

// Status is the dashboard-facing snapshot of provider availability.
type Status struct {
	Available       map[Kind]bool
	ActiveProvider  Kind
	ActiveModel     string
	Chain           []Kind
}

// GetStatus reports current availability, the last successful
// provider/model, and the chain that would be built for the given
// selection.
func (r *Registry) GetStatus(preferred Kind, strictPreferred bool) Status {
	r.mu.Lock()
	activeProvider, activeModel := r.lastProvider, r.lastModel
	r.mu.Unlock()

	available := make(map[Kind]bool, len(r.providers))
	for k, p := range r.providers {
		available[k] = p.Available()
	}

	return Status{
		Available:      available,
		ActiveProvider: activeProvider,
		ActiveModel:    activeModel,
		Chain:          r.BuildChain(preferred, strictPreferred),
	}
}
