package analysis

import (
	"sync"
	"time"
)

const defaultCooldown = 30 * time.Second

// runLimiter enforces a minimum interval between analysis runs for the same
// (jobID, analysisType) key. It is the in-process fast path; the persisted
// LastCompletedAt check backs it across restarts.
type runLimiter struct {
	mu      sync.Mutex
	lastRun map[string]time.Time
	now     func() time.Time
	window  time.Duration
}

func newRunLimiter(window time.Duration, now func() time.Time) *runLimiter {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = defaultCooldown
	}
	return &runLimiter{
		lastRun: make(map[string]time.Time),
		now:     now,
		window:  window,
	}
}

func (l *runLimiter) Allow(jobID string, typ Type) bool {
	if l == nil {
		return true
	}
	key := jobID + "|" + string(typ)
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastRun[key]; ok {
		if now.Sub(last) < l.window {
			return false
		}
	}
	l.lastRun[key] = now
	return true
}

// Release forgets the key so a failed run does not burn the window.
func (l *runLimiter) Release(jobID string, typ Type) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.lastRun, jobID+"|"+string(typ))
}

func (l *runLimiter) RetryAfterSeconds() int {
	if l == nil {
		return int(defaultCooldown.Seconds())
	}
	return int(l.window.Seconds())
}
