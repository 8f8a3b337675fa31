package utils

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// IsRetryableStatus reports whether an upstream HTTP status indicates a
// provider-side failure worth retrying on another account. Client errors
// other than timeouts and rate limits would fail identically elsewhere.
func IsRetryableStatus(status int) bool {
	switch {
	case status == http.StatusRequestTimeout:
		return true
	case status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

// IsRetryableError reports whether a transport error indicates the upstream
// is unreachable or slow, as opposed to a caller mistake.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}
