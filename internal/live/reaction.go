package live

import (
	"time"

	"github.com/google/uuid"
)

// reactionLimiter is a sliding-window per-user rate limiter bounding reaction
// fan-out volume. Callers hold the room lock.
type reactionLimiter struct {
	history  map[uuid.UUID][]time.Time
	limit    int
	interval time.Duration
}

func newReactionLimiter(limit int, interval time.Duration) *reactionLimiter {
	if limit < 1 {
		limit = 1
	}
	return &reactionLimiter{
		history:  make(map[uuid.UUID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

// allow records an emission attempt and reports whether it fits the window.
func (rl *reactionLimiter) allow(userID uuid.UUID, now time.Time) bool {
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[userID]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[userID] = fresh
		return false
	}

	rl.history[userID] = append(fresh, now)
	return true
}

// forget drops a departed user's window.
func (rl *reactionLimiter) forget(userID uuid.UUID) {
	delete(rl.history, userID)
}
