package ingest

import (
	"strings"

	"github.com/gmanldn/actifix/internal/ticketstore"
)

// ClassifyPriority applies the ordered, deterministic keyword rules from
// spec 4.9 step 6 when the caller did not supply a priority.
func ClassifyPriority(errorType, message, source string) ticketstore.Priority {
	errorLower := strings.ToLower(errorType)
	msgLower := strings.ToLower(message)
	sourceLower := strings.ToLower(source)

	if containsAny(errorLower, "fatal", "crash", "corrupt", "dataloss") {
		return ticketstore.PriorityP0
	}
	if containsAny(msgLower, "data loss", "corrupt", "crash") {
		return ticketstore.PriorityP0
	}

	if containsAny(errorLower, "database", "security", "auth") {
		return ticketstore.PriorityP1
	}
	if strings.Contains(sourceLower, "core") || strings.Contains(sourceLower, "main") {
		return ticketstore.PriorityP1
	}

	if containsAny(errorLower, "warning", "deprecat") {
		return ticketstore.PriorityP3
	}
	if containsAny(errorLower, "lint", "format") {
		return ticketstore.PriorityP4
	}

	return ticketstore.PriorityP2
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
