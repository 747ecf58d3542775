package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	pathToken   = regexp.MustCompile(`/[^\s]+/`)
	digitToken  = regexp.MustCompile(`\d+`)
)

// normalizeForGuard lowercases and masks path-like tokens and integers so
// the duplicate guard is insensitive to line numbers and absolute paths,
// per spec 4.9 step 4.
func normalizeForGuard(text string) string {
	if text == "" {
		return ""
	}
	normalized := pathToken.ReplaceAllString(text, "/PATH/")
	normalized = digitToken.ReplaceAllString(normalized, "0")
	normalized = strings.ToLower(strings.TrimSpace(normalized))
	if len(normalized) > 200 {
		normalized = normalized[:200]
	}
	return normalized
}

// stackSignatureForGuard extracts the first meaningful stack line,
// skipping blank lines and a leading "Traceback" header.
func stackSignatureForGuard(stackTrace string) string {
	if stackTrace == "" {
		return ""
	}
	for _, line := range strings.Split(stackTrace, "\n") {
		cleaned := strings.TrimSpace(line)
		if cleaned == "" || strings.HasPrefix(strings.ToLower(cleaned), "traceback") {
			continue
		}
		return normalizeForGuard(cleaned)
	}
	return ""
}

// DuplicateGuard computes the message-focused duplicate guard from
// (error_type, message, first meaningful stack line), deliberately
// insensitive to line numbers, absolute paths, and integers.
func DuplicateGuard(errorType, message, stackTrace string) string {
	normalizedMessage := normalizeForGuard(message)
	normalizedError := normalizeForGuard(orDefault(errorType, "unknown"))
	stackSignature := stackSignatureForGuard(stackTrace)

	guardInput := normalizedError + ":" + normalizedMessage + ":" + stackSignature
	sum := sha256.Sum256([]byte(guardInput))
	hashSuffix := hex.EncodeToString(sum[:])[:8]

	slug := strings.ReplaceAll(normalizedMessage, " ", "-")
	if slug == "" {
		slug = "message"
	}
	if len(slug) > 40 {
		slug = slug[:40]
	}

	return "ACTIFIX-" + slug + "-" + hashSuffix
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
