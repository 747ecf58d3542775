package aiprovider

import (
	"context"
	"fmt"
	"strings"
)

// FreeAlternativeProvider is always available: it never calls a
// network service, producing a templated remediation note from the
// ticket's own fields. It is the guaranteed last link in every chain so
// generate_fix never returns a total failure when at least this much
// information is known.
type FreeAlternativeProvider struct{}

// NewFreeAlternativeProvider builds the always-on fallback provider.
func NewFreeAlternativeProvider() *FreeAlternativeProvider {
	return &FreeAlternativeProvider{}
}

func (p *FreeAlternativeProvider) Kind() Kind      { return KindFreeAlternative }
func (p *FreeAlternativeProvider) Available() bool { return true }

// Generate produces a structured template pointing a human at the
// error's shape; it never errors.
func (p *FreeAlternativeProvider) Generate(_ context.Context, ticket TicketInfo) (Response, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Root Cause: %s in %s\n", ticket.ErrorType, ticket.Source)
	fmt.Fprintf(&b, "Impact: unassessed, no AI provider was available\n")
	fmt.Fprintf(&b, "Action: review the stack trace below and reproduce manually\n\n")
	b.WriteString(ticket.Message)
	if ticket.StackTrace != "" {
		b.WriteString("\n\n")
		b.WriteString(ticket.StackTrace)
	}
	return Response{Content: b.String(), Provider: KindFreeAlternative, Model: "template", Success: true}, nil
}
