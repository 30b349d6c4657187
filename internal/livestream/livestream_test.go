package livestream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lokutor-ai/dictation-engine/internal/provider"
)

type textUpdate struct {
	typed       string
	deleteChars int
	isFinal     bool
	fullText    string
}

type recorder struct {
	mu             sync.Mutex
	updates        []textUpdate
	utteranceEnds  int
	sessionClosed  int
	speechStarteds int
	autoEnds       int
	errs           []error
}

func (r *recorder) sinks() Sinks {
	return Sinks{
		OnTextUpdate: func(typed string, deleteChars int, isFinal bool, fullText string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.updates = append(r.updates, textUpdate{typed, deleteChars, isFinal, fullText})
		},
		OnUtteranceEnd: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.utteranceEnds++
		},
		OnSessionClosed: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.sessionClosed++
		},
		OnSpeechStarted: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.speechStarteds++
		},
		OnAutoEnd: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.autoEnds++
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func runEvents(t *testing.T, c *Controller, events []provider.Event) {
	t.Helper()
	ch := make(chan provider.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Run(ctx, ch); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}

func interimEvent(text string) provider.Event {
	return provider.Event{Kind: provider.EventInterim, Result: provider.Result{Transcript: text}}
}

func finalEvent(text string, speechFinal bool) provider.Event {
	return provider.Event{Kind: provider.EventFinalResult, Result: provider.Result{Transcript: text, SpeechFinal: speechFinal}}
}

// S1: progressive interim, identical final.
func TestProgressiveInterimIdenticalFinal(t *testing.T) {
	rec := &recorder{}
	c := New(0, rec.sinks())

	runEvents(t, c, []provider.Event{
		interimEvent("hel"),
		interimEvent("hello"),
		interimEvent("hello world"),
		finalEvent("hello world", false),
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []textUpdate{
		{typed: "hel", deleteChars: 0, isFinal: false, fullText: "hel"},
		{typed: "lo", deleteChars: 0, isFinal: false, fullText: "hello"},
		{typed: " world", deleteChars: 0, isFinal: false, fullText: "hello world"},
		{typed: " ", deleteChars: 0, isFinal: true, fullText: "hello world"},
	}
	if len(rec.updates) != len(want) {
		t.Fatalf("got %d updates, want %d: %+v", len(rec.updates), len(want), rec.updates)
	}
	for i, w := range want {
		if rec.updates[i] != w {
			t.Fatalf("update %d = %+v, want %+v", i, rec.updates[i], w)
		}
	}
}

// S2: interim correction.
func TestInterimCorrection(t *testing.T) {
	rec := &recorder{}
	c := New(0, rec.sinks())

	runEvents(t, c, []provider.Event{
		interimEvent("recognise"),
		interimEvent("recognize"),
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(rec.updates))
	}
	got := rec.updates[1]
	if got.deleteChars != 2 || got.typed != "ze" {
		t.Fatalf("second update = %+v, want deleteChars=2 typed=\"ze\"", got)
	}
}

func TestFinalOnEmptyErasesInterim(t *testing.T) {
	rec := &recorder{}
	c := New(0, rec.sinks())

	runEvents(t, c, []provider.Event{
		interimEvent("hello"),
		finalEvent("", false),
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	last := rec.updates[len(rec.updates)-1]
	if last.deleteChars != 5 || last.typed != "" || !last.isFinal {
		t.Fatalf("final-on-empty = %+v, want deleteChars=5 typed=\"\" isFinal=true", last)
	}
}

func TestSpeechFinalFiresUtteranceEnd(t *testing.T) {
	rec := &recorder{}
	c := New(0, rec.sinks())

	runEvents(t, c, []provider.Event{
		finalEvent("done", true),
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.utteranceEnds != 1 {
		t.Fatalf("utteranceEnds = %d, want 1", rec.utteranceEnds)
	}
}

func TestErrorDoesNotTerminate(t *testing.T) {
	rec := &recorder{}
	c := New(0, rec.sinks())

	runEvents(t, c, []provider.Event{
		provider.Event{Kind: provider.EventError, Err: errors.New("boom")},
		interimEvent("still going"),
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) != 1 {
		t.Fatalf("errs = %d, want 1", len(rec.errs))
	}
	if len(rec.updates) != 1 {
		t.Fatalf("expected processing to continue after error, got %d updates", len(rec.updates))
	}
}

func TestMetadataIgnored(t *testing.T) {
	rec := &recorder{}
	c := New(0, rec.sinks())

	runEvents(t, c, []provider.Event{
		{Kind: provider.EventMetadata, RequestID: "abc"},
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.updates) != 0 || len(rec.errs) != 0 {
		t.Fatalf("expected no side effects from Metadata, got updates=%v errs=%v", rec.updates, rec.errs)
	}
}

func TestClosedFiresOnceAsync(t *testing.T) {
	rec := &recorder{}
	c := New(0, rec.sinks())

	runEvents(t, c, []provider.Event{
		{Kind: provider.EventClosed},
		{Kind: provider.EventClosed}, // second Closed while inactive: no-op
	})

	deadline := time.After(time.Second)
	for {
		rec.mu.Lock()
		n := rec.sessionClosed
		rec.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("sessionClosed = %d, want 1", n)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestAutoEndFiresAfterSilenceWhenSpeechOccurred(t *testing.T) {
	rec := &recorder{}
	c := New(20*time.Millisecond, rec.sinks())

	ch := make(chan provider.Event, 4)
	ch <- provider.Event{Kind: provider.EventSpeechStarted}
	ch <- provider.Event{Kind: provider.EventUtteranceEnd}
	close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Run(ctx, ch); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	deadline := time.After(500 * time.Millisecond)
	for {
		rec.mu.Lock()
		n := rec.autoEnds
		rec.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("autoEnds = %d, want 1", n)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestNoAutoEndTimerWithoutSpeech(t *testing.T) {
	rec := &recorder{}
	c := New(10*time.Millisecond, rec.sinks())

	ch := make(chan provider.Event, 1)
	ch <- provider.Event{Kind: provider.EventUtteranceEnd} // no SpeechStarted before it
	close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Run(ctx, ch)

	time.Sleep(50 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.autoEnds != 0 {
		t.Fatalf("autoEnds = %d, want 0 (no speech occurred)", rec.autoEnds)
	}
}

func TestInterimCancelsAutoEndTimer(t *testing.T) {
	rec := &recorder{}
	c := New(20*time.Millisecond, rec.sinks())

	ch := make(chan provider.Event, 3)
	ch <- provider.Event{Kind: provider.EventSpeechStarted}
	ch <- provider.Event{Kind: provider.EventUtteranceEnd}
	ch <- interimEvent("more speech") // should cancel the pending auto-end timer
	close(ch)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Run(ctx, ch)

	time.Sleep(60 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.autoEnds != 0 {
		t.Fatalf("autoEnds = %d, want 0 (interim should have cancelled the timer)", rec.autoEnds)
	}
}
