package options

import (
	"time"

	"constellation/internal/optparse"
)

// backoffDelay computes the delay before retry attempt N (1-indexed),
// per section 4.7 item 7: delayMs * factor(attempt).
func backoffDelay(delayMs int64, strategy string, attempt int) time.Duration {
	factor := optparse.BackoffFactor(strategy, attempt)
	return time.Duration(float64(delayMs) * factor * float64(time.Millisecond))
}
