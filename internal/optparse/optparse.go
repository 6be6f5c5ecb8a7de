// Package optparse parses the literal forms module-call options are
// written in (section 6.1: duration suffixes ms|s|min|h|d, rate N/duration,
// named or integer priority). It is shared by internal/typecheck (option
// validation, section 4.3 item 4) and internal/ir (option normalization,
// section 4.4), kept as its own leaf package so neither depends on the
// other for this.
package optparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration parses a literal like "50ms", "3s", "2min", "1h", "1d" into a
// time.Duration.
func Duration(lit string) (time.Duration, error) {
	lit = strings.TrimSpace(lit)
	for _, unit := range []string{"ms", "min", "s", "h", "d"} {
		if strings.HasSuffix(lit, unit) {
			numStr := strings.TrimSuffix(lit, unit)
			n, err := strconv.ParseFloat(numStr, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid duration literal %q: %w", lit, err)
			}
			switch unit {
			case "ms":
				return time.Duration(n * float64(time.Millisecond)), nil
			case "s":
				return time.Duration(n * float64(time.Second)), nil
			case "min":
				return time.Duration(n * float64(time.Minute)), nil
			case "h":
				return time.Duration(n * float64(time.Hour)), nil
			case "d":
				return time.Duration(n * 24 * float64(time.Hour)), nil
			}
		}
	}
	return 0, fmt.Errorf("invalid duration literal %q: missing ms|s|min|h|d suffix", lit)
}

// Rate is a token-bucket "N/duration" throttle spec (section 6.2).
type Rate struct {
	Count  int
	Window time.Duration
}

func ParseRate(lit string) (Rate, error) {
	parts := strings.SplitN(lit, "/", 2)
	if len(parts) != 2 {
		return Rate{}, fmt.Errorf("invalid rate literal %q: expected N/duration", lit)
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Rate{}, fmt.Errorf("invalid rate literal %q: %w", lit, err)
	}
	d, err := Duration(strings.TrimSpace(parts[1]))
	if err != nil {
		return Rate{}, fmt.Errorf("invalid rate literal %q: %w", lit, err)
	}
	return Rate{Count: n, Window: d}, nil
}

// PriorityLevels maps named priority levels to the 0-100 numeric scale
// (section 4.4, section 9's open-question resolution).
var PriorityLevels = map[string]int{
	"critical":   95,
	"high":       80,
	"normal":     50,
	"low":        30,
	"background": 10,
}

// Priority parses a named level or a bare integer, clamped to [0,100]
// per section 9.
func Priority(lit string) (int, error) {
	if v, ok := PriorityLevels[lit]; ok {
		return v, nil
	}
	n, err := strconv.Atoi(lit)
	if err != nil {
		return 0, fmt.Errorf("invalid priority literal %q: expected a named level or integer", lit)
	}
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return n, nil
}

// OnErrorPolicies is the closed set of valid on_error values (section 6.2).
var OnErrorPolicies = map[string]bool{"fail": true, "skip": true, "log": true, "wrap": true}

// BackoffStrategies is the closed set of valid backoff values.
var BackoffStrategies = map[string]bool{"fixed": true, "linear": true, "exponential": true}

// BackoffFactor computes the delay multiplier for attempt N (1-indexed),
// per section 4.7 item 7.
func BackoffFactor(strategy string, attempt int) float64 {
	switch strategy {
	case "linear":
		return float64(attempt)
	case "exponential":
		if attempt <= 0 {
			return 1
		}
		factor := 1.0
		for i := 1; i < attempt; i++ {
			factor *= 2
		}
		return factor
	default: // "fixed"
		return 1
	}
}
