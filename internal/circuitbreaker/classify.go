package circuitbreaker

import (
	"context"
	"errors"
	"net/http"
	"os"
)

// Weight returns the error weight of an origin fetch that ended with status
// or err. Timeouts count more than refusals; 429 counts half; other client
// errors are not the upstream's fault and count as success.
func Weight(status int, err error) float64 {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
			return 1.5
		}
		if errors.Is(err, context.Canceled) {
			return 0 // client went away
		}
		return 1.0
	}
	switch {
	case status == http.StatusTooManyRequests:
		return 0.5
	case status >= 500:
		return 1.0
	default:
		return 0
	}
}
