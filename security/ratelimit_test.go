package security

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3, testLogger())
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d within burst should be allowed", i)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("request beyond burst should be denied")
	}

	// Other identifiers have independent buckets.
	if !rl.Allow("10.0.0.2") {
		t.Error("different identifier should be allowed")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, testLogger())
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")

	time.Sleep(10 * time.Millisecond)
	rl.Cleanup(time.Nanosecond)

	rl.mu.Lock()
	remaining := len(rl.limiters)
	rl.mu.Unlock()
	if remaining != 0 {
		t.Errorf("expected all idle limiters removed, %d remain", remaining)
	}
}

func TestRateLimiterStopIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1, testLogger())
	rl.Stop()
	rl.Stop()
}
