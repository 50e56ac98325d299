package analysis

import (
	"testing"
	"time"
)

func TestRunLimiterEnforcesWindow(t *testing.T) {
	current := time.Unix(1000, 0)
	l := newRunLimiter(30*time.Second, func() time.Time { return current })

	if !l.Allow("job-1", TypeMatchScore) {
		t.Fatal("first run should be allowed")
	}
	current = current.Add(10 * time.Second)
	if l.Allow("job-1", TypeMatchScore) {
		t.Error("run inside the window should be denied")
	}
	current = current.Add(25 * time.Second)
	if !l.Allow("job-1", TypeMatchScore) {
		t.Error("run after the window should be allowed")
	}
}

func TestRunLimiterKeysAreIndependent(t *testing.T) {
	current := time.Unix(1000, 0)
	l := newRunLimiter(30*time.Second, func() time.Time { return current })

	if !l.Allow("job-1", TypeMatchScore) {
		t.Fatal("first run should be allowed")
	}
	if !l.Allow("job-1", TypeInterviewCoach) {
		t.Error("different analysis type is a different key")
	}
	if !l.Allow("job-2", TypeMatchScore) {
		t.Error("different job is a different key")
	}
}

func TestRunLimiterRelease(t *testing.T) {
	current := time.Unix(1000, 0)
	l := newRunLimiter(30*time.Second, func() time.Time { return current })

	l.Allow("job-1", TypeMatchScore)
	l.Release("job-1", TypeMatchScore)
	if !l.Allow("job-1", TypeMatchScore) {
		t.Error("released key should be allowed immediately")
	}
}

func TestRunLimiterNilSafe(t *testing.T) {
	var l *runLimiter
	if !l.Allow("job-1", TypeMatchScore) {
		t.Error("nil limiter must allow")
	}
	l.Release("job-1", TypeMatchScore)
	if l.RetryAfterSeconds() != int(defaultCooldown.Seconds()) {
		t.Errorf("RetryAfterSeconds = %d, want %d", l.RetryAfterSeconds(), int(defaultCooldown.Seconds()))
	}
}
