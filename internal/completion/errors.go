package completion

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited means the endpoint kept answering 429 until retries ran out.
	ErrRateLimited = errors.New("completion rate limited")
	// ErrBadGateway means the endpoint kept answering 502 until retries ran out.
	ErrBadGateway = errors.New("completion upstream bad gateway")
	// ErrRequestFailed covers non-retryable statuses and unusable response bodies.
	ErrRequestFailed = errors.New("completion request failed")
	// ErrUnavailable covers connection failures and timeouts.
	ErrUnavailable = errors.New("completion endpoint unavailable")
)

// HTTPError carries a non-200 response. It unwraps to the matching sentinel.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("completion endpoint returned %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadGateway:
		return ErrBadGateway
	default:
		return ErrRequestFailed
	}
}

func (e *HTTPError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusBadGateway
}

// User-facing advisories. Raw errors never reach the user.
const (
	AdvisoryRateLimited = "We're currently facing high demand. Please wait a moment and try again.\nThis is a temporary rate limit from the model provider."
	AdvisoryBadGateway  = "Server error occurred. Please try again later."
	AdvisoryFailed      = "Sorry, we couldn't process your request right now. Please try again later."
	AdvisoryTechnical   = "A technical error occurred. Please try again later."
)

// Advisory maps a gateway error to the plain text shown to the user.
func Advisory(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return AdvisoryRateLimited
	case errors.Is(err, ErrBadGateway):
		return AdvisoryBadGateway
	case errors.Is(err, ErrRequestFailed):
		return AdvisoryFailed
	default:
		return AdvisoryTechnical
	}
}
