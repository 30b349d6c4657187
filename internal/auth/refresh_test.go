package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// S8-style: concurrent callers during one in-flight refresh receive the
// same result, and the in-flight slot is cleared after completion.
func TestRefreshCoalescesConcurrentCallers(t *testing.T) {
	var calls int32
	release := make(chan struct{})

	coord := NewRefreshCoordinator(func(ctx context.Context, creds Credentials) (Credentials, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return Credentials{AccessToken: "new-token"}, nil
	})

	const n = 5
	results := make([]Credentials, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = coord.RefreshIfNeeded(context.Background(), Credentials{})
		}(i)
	}

	time.Sleep(20 * time.Millisecond) // let all callers arrive and coalesce
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("refreshFn called %d times, want 1", got)
	}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: unexpected error %v", i, err)
		}
		if results[i].AccessToken != "new-token" {
			t.Fatalf("caller %d: token = %q, want new-token", i, results[i].AccessToken)
		}
	}
}

func TestRefreshClearsSlotAfterSuccess(t *testing.T) {
	var calls int32
	coord := NewRefreshCoordinator(func(ctx context.Context, creds Credentials) (Credentials, error) {
		atomic.AddInt32(&calls, 1)
		return Credentials{AccessToken: "t"}, nil
	})

	coord.RefreshIfNeeded(context.Background(), Credentials{})
	coord.RefreshIfNeeded(context.Background(), Credentials{})

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("refreshFn called %d times, want 2 (new task each wave)", got)
	}
}

func TestRefreshClearsSlotAfterFailureSoNextCallerRetries(t *testing.T) {
	var calls int32
	coord := NewRefreshCoordinator(func(ctx context.Context, creds Credentials) (Credentials, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return Credentials{}, errors.New("boom")
		}
		return Credentials{AccessToken: "recovered"}, nil
	})

	_, err := coord.RefreshIfNeeded(context.Background(), Credentials{})
	if err == nil {
		t.Fatal("expected first refresh to fail")
	}

	creds, err := coord.RefreshIfNeeded(context.Background(), Credentials{})
	if err != nil {
		t.Fatalf("expected second call to retry and succeed, got %v", err)
	}
	if creds.AccessToken != "recovered" {
		t.Fatalf("token = %q, want recovered", creds.AccessToken)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("refreshFn called %d times, want 2", got)
	}
}

func TestIsExpiredAndShouldRefresh(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	creds := Credentials{LastRefresh: now.Add(-25 * time.Hour)}
	if !creds.IsExpired(now) {
		t.Fatal("expected credentials older than 24h to be expired")
	}

	fresh := Credentials{LastRefresh: now.Add(-time.Hour)}
	if fresh.IsExpired(now) {
		t.Fatal("expected 1h-old credentials to not be expired")
	}
	if !fresh.ShouldRefresh(now, 30*time.Minute) {
		t.Fatal("expected ShouldRefresh(30m) to be true for 1h-old credentials")
	}
	if fresh.ShouldRefresh(now, 2*time.Hour) {
		t.Fatal("expected ShouldRefresh(2h) to be false for 1h-old credentials")
	}
}
