package ai

import (
	"fmt"
	"net/http"
	"strings"

	appErr "github.com/kvander/bookdex/internal/pkg/errors"
)

// classifyStatus maps an HTTP status plus provider message onto the
// embedding failure taxonomy.
func classifyStatus(status int, message string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", message, appErr.ErrRateLimited)
	case status >= 500:
		return fmt.Errorf("%s: %w", message, appErr.ErrTransient)
	case isContextLengthMessage(message):
		return fmt.Errorf("%s: %w", message, appErr.ErrContextTooLong)
	case status >= 400:
		return fmt.Errorf("%s: %w", message, appErr.ErrPermanentReject)
	default:
		return fmt.Errorf("%s: %w", message, appErr.ErrTransient)
	}
}

func isContextLengthMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "context length") ||
		strings.Contains(lower, "context_length") ||
		strings.Contains(lower, "maximum context") ||
		strings.Contains(lower, "token limit") ||
		strings.Contains(lower, "too many tokens")
}

// classifyTransportErr covers failures that never reached the provider
// (DNS, dial, timeout). They are all retryable.
func classifyTransportErr(err error) error {
	return fmt.Errorf("%v: %w", err, appErr.ErrTransient)
}
