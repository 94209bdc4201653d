package scraper

import (
	"math"
	"time"
)

// handleHealth scores one browser handle. A handle is retired once its error
// score reaches 3, or it exceeds the configured use count or age.
//   - success: score -= 0.5 (min 0)
//   - failure: score += 1
//
// It is only touched under the session mutex.
type handleHealth struct {
	errScore float64
	uses     int
	failures int
	created  time.Time
}

func newHandleHealth() *handleHealth {
	return &handleHealth{created: time.Now()}
}

func (h *handleHealth) recordSuccess() {
	h.uses++
	h.errScore = math.Max(0, h.errScore-0.5)
}

func (h *handleHealth) recordFailure() {
	h.uses++
	h.failures++
	h.errScore += 1.0
}

func (h *handleHealth) age() time.Duration {
	return time.Since(h.created)
}

func (h *handleHealth) shouldRetire(maxUses int, maxAge time.Duration) bool {
	switch {
	case h.errScore >= 3.0:
		return true
	case maxUses > 0 && h.uses >= maxUses:
		return true
	case maxAge > 0 && h.age() >= maxAge:
		return true
	}
	return false
}
