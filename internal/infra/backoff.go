package infra

import (
	"math"
	"time"
)

// CalculateBackoff returns base * 2^retry capped at maxDelay.
func CalculateBackoff(retry int, base, maxDelay time.Duration) time.Duration {
	if retry < 0 {
		retry = 0
	}
	delay := float64(base) * math.Pow(2, float64(retry))
	if delay > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(delay)
}
