package resilience

import (
	"context"
	"testing"
	"time"
)

func TestLimiters_WaitHonorsRate(t *testing.T) {
	l := NewLimiters(20, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background(), "hunter"); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	// First token is immediate, the next two each wait ~50ms.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected limiter to wait, took %s", elapsed)
	}
}

func TestLimiters_WaitRespectsDeadline(t *testing.T) {
	l := NewLimiters(0.1, 1)
	if err := l.Wait(context.Background(), "slow"); err != nil {
		t.Fatalf("first token: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "slow")
	if err == nil {
		t.Fatal("expected deadline error")
	}
	if !IsTransient(err) {
		t.Errorf("limiter deadline should be transient: %v", err)
	}
}

func TestLimiters_Independent(t *testing.T) {
	l := NewLimiters(0.1, 1)
	if err := l.Wait(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "b"); err != nil {
		t.Errorf("bucket b should be independent of a: %v", err)
	}
}

func TestLimiters_DisabledAndOverride(t *testing.T) {
	l := NewLimiters(0, 0)
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background(), "free"); err != nil {
			t.Fatal(err)
		}
	}

	l.Set("strict", 1, 3)
	if got := l.For("strict").Burst(); got != 3 {
		t.Errorf("expected burst 3, got %d", got)
	}
}
