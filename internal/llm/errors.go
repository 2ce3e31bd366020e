package llm

import (
	"context"
	"errors"
	"net"
	"strings"
)

// FailureReason names the failure class of a completion error for status
// records and logs. Every engine failure is worth retrying, so callers only
// need the reason, not a retryable flag.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), isNetTimeout(err):
		return "completion engine timeout"
	case errors.Is(err, ErrEmptyCompletion):
		return "empty completion"
	case isRateLimited(err):
		return "completion engine rate limited"
	default:
		return "completion engine error"
	}
}

func isNetTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429")
}
