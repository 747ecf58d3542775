package aiprovider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type noopLimiter struct{}

func (noopLimiter) Check(string) error                                         { return nil }
func (noopLimiter) Record(string, bool, *int, *float64, string) {}

func TestBuildChainAppendsFreeAlternativeLast(t *testing.T) {
	r := NewRegistry("", "", "", "", "", "", noopLimiter{})
	chain := r.BuildChain("", false)
	assert.Equal(t, KindFreeAlternative, chain[len(chain)-1])
}

func TestBuildChainStrictPreferredSkipsProbe(t *testing.T) {
	r := NewRegistry("sk-test", "", "", "", "", "", noopLimiter{})
	chain := r.BuildChain(KindClaudeAPI, true)
	assert.Equal(t, []Kind{KindClaudeAPI, KindFreeAlternative}, chain)
}

func TestBuildChainPreferredFirstThenProbe(t *testing.T) {
	r := NewRegistry("sk-test", "", "sk-test", "", "", "", noopLimiter{})
	chain := r.BuildChain(KindOpenAIAPI, false)
	assert.Equal(t, KindOpenAIAPI, chain[0])
	assert.Equal(t, KindFreeAlternative, chain[len(chain)-1])
}

func TestGenerateFixFallsBackToFreeAlternative(t *testing.T) {
	r := NewRegistry("", "", "", "", "", "", noopLimiter{})
	resp, err := r.GenerateFix(nil, TicketInfo{ID: "ACT-1", ErrorType: "ValueError", Message: "boom"}, "", false)
	assert.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, KindFreeAlternative, resp.Provider)
}
