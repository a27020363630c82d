package messaging

import (
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, time.Minute},
		{500, time.Minute},
	}
	for _, tt := range tests {
		if got := exponentialBackoff(tt.attempt, time.Second, time.Minute); got != tt.want {
			t.Fatalf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}

func TestBackoffResetsAfterSuccess(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute)
	if b.Reset() {
		t.Fatalf("reset without failures should report false")
	}
	b.Next()
	b.Next()
	if n, d := b.State(); n != 2 || d != 2*time.Second {
		t.Fatalf("unexpected state %d %v", n, d)
	}
	if !b.Reset() {
		t.Fatalf("expected reset to report a streak")
	}
	if got := b.Next(); got != time.Second {
		t.Fatalf("expected initial delay after reset, got %v", got)
	}
}
