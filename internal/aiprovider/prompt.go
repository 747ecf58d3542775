package aiprovider

import "fmt"

const remediationSystemPrompt = "You are a remediation assistant. Given a ticket describing a captured " +
	"error, respond with a structured fix proposal: Root Cause, Impact, and Action sections, " +
	"followed by any concrete patch you can suggest. Be concise and concrete."

// buildPrompt renders a ticket into the single user-turn prompt sent to
// every provider, so the chain compares like with like.
func buildPrompt(ticket TicketInfo) string {
	return fmt.Sprintf(
		"Ticket: %s\nPriority: %s\nError type: %s\nSource: %s\n\nMessage:\n%s\n\nStack trace:\n%s\n\nFile context:\n%s\n",
		ticket.ID, ticket.Priority, ticket.ErrorType, ticket.Source, ticket.Message, ticket.StackTrace, ticket.FileContext,
	)
}
