package llm

import (
	"errors"
	"fmt"
	"time"
)

// AiRateLimitError reports a provider 429. It is never retried and always
// propagates to the caller instead of degrading to the fallback response.
type AiRateLimitError struct {
	RetryAfter time.Duration
}

func (e *AiRateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider rate limit exceeded, retry after %s", e.RetryAfter)
	}
	return "provider rate limit exceeded"
}

// IsRateLimit reports whether err is (or wraps) an AiRateLimitError.
func IsRateLimit(err error) bool {
	var rl *AiRateLimitError
	return errors.As(err, &rl)
}

// AiHTTPError reports a non-2xx provider response other than 429.
type AiHTTPError struct {
	StatusCode int
	Body       string
}

func (e *AiHTTPError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}
