package queue

import (
	"context"
	"testing"
	"time"
)

func drainN(t *testing.T, s *Stream, n int) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var out []string
	for i := 0; i < n; i++ {
		text, ok, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		if !ok {
			t.Fatalf("Next() returned ok=false early at i=%d", i)
		}
		out = append(out, text)
	}
	return out
}

// S4: session bleed is blocked.
func TestSessionBleedBlocked(t *testing.T) {
	q := New()
	stream := q.TextStream()

	t0 := q.NextSequence() // session 0, seq 0
	q.Reset()
	t1 := q.NextSequence() // session 1, seq 0

	q.SubmitResult(t0, "STALE")
	q.SubmitResult(t1, "FRESH")

	got := drainN(t, stream, 1)
	if len(got) != 1 || got[0] != "FRESH" {
		t.Fatalf("expected only FRESH, got %v", got)
	}
}

// S5: queue ordering with failure.
func TestOrderingWithFailure(t *testing.T) {
	q := New()
	stream := q.TextStream()

	t0 := q.NextSequence()
	t1 := q.NextSequence()
	t2 := q.NextSequence()

	q.SubmitResult(t2, "c")
	q.MarkFailed(t0)
	q.SubmitResult(t1, "b")

	got := drainN(t, stream, 2)
	want := []string{"b", "c"}
	for i, g := range got {
		if g != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestEmptyTextsNotYielded(t *testing.T) {
	q := New()
	stream := q.TextStream()

	t0 := q.NextSequence()
	t1 := q.NextSequence()

	q.SubmitResult(t0, "")
	q.SubmitResult(t1, "hello")

	got := drainN(t, stream, 1)
	if got[0] != "hello" {
		t.Fatalf("expected only non-empty text yielded, got %v", got)
	}
}

func TestSubmitIdempotentAfterEmission(t *testing.T) {
	q := New()
	stream := q.TextStream()

	t0 := q.NextSequence()
	q.SubmitResult(t0, "first")
	drainN(t, stream, 1)

	q.SubmitResult(t0, "second") // already emitted: no-op

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := stream.Next(ctx)
	if err == nil {
		t.Fatal("expected timeout: no further text should be yielded")
	}
}

func TestTextStreamReturnsSameHandle(t *testing.T) {
	q := New()
	s1 := q.TextStream()
	s2 := q.TextStream()
	if s1 != s2 {
		t.Fatal("expected TextStream to return the same handle on repeated calls")
	}
}

func TestCompletionFiresAfterAllResolved(t *testing.T) {
	q := New()
	stream := q.TextStream()

	t0 := q.NextSequence()
	t1 := q.NextSequence()

	done := make(chan error, 1)
	go func() {
		done <- q.WaitForCompletion(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("completion fired before all tickets resolved")
	default:
	}

	q.SubmitResult(t0, "a")
	q.SubmitResult(t1, "b")
	drainN(t, stream, 2)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("completion did not fire after all tickets resolved")
	}
}

func TestGetPendingCount(t *testing.T) {
	q := New()
	t0 := q.NextSequence()
	_ = q.NextSequence()
	if got := q.GetPendingCount(); got != 2 {
		t.Fatalf("GetPendingCount() = %d, want 2", got)
	}
	q.SubmitResult(t0, "a")
	if got := q.GetPendingCount(); got != 1 {
		t.Fatalf("GetPendingCount() = %d, want 1 after one resolves", got)
	}
}

func TestResetNeverCompletesStaleSession(t *testing.T) {
	q := New()
	q.NextSequence()
	gen := q.CurrentSessionGeneration()
	q.Reset()
	if q.CurrentSessionGeneration() != gen+1 {
		t.Fatalf("expected generation to increment monotonically")
	}
	if q.GetPendingCount() != 0 {
		t.Fatalf("expected pending count reset to 0")
	}
}

func TestFinishStreamEndsStreamAndWakesWaiters(t *testing.T) {
	q := New()
	stream := q.TextStream()

	done := make(chan error, 1)
	go func() { done <- q.WaitForCompletion(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	q.FinishStream()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("FinishStream did not resume completion waiter")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok, _ := stream.Next(ctx)
	if ok {
		t.Fatal("expected stream to report finished once drained")
	}
}
