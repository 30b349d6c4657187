// Package livestream implements LiveStreamingController: the streaming
// provider consumer that turns a ProviderEvent stream into keystroke-
// minimized text-sink edits (spec §4.5).
package livestream

import (
	"context"
	"sync"
	"time"

	"github.com/lokutor-ai/dictation-engine/internal/provider"
)

// Sinks wires the controller's callbacks. onTextUpdate is required; the
// rest are optional (nil is a valid no-op).
type Sinks struct {
	OnTextUpdate    func(typed string, deleteChars int, isFinal bool, fullText string)
	OnUtteranceEnd  func()
	OnSessionClosed func()
	OnError         func(error)
	OnSpeechStarted func()
	OnAutoEnd       func()
}

// Controller consumes one streaming session's ProviderEvents. Create a
// fresh Controller per session.
type Controller struct {
	mu sync.Mutex

	autoEndSilenceDuration time.Duration
	sinks                  Sinks

	interim           string
	hasSpeechOccurred bool
	isActive          bool
	timer             *time.Timer
}

// New creates a Controller. autoEndSilenceDuration of 0 disables the
// silence auto-end timer entirely.
func New(autoEndSilenceDuration time.Duration, sinks Sinks) *Controller {
	return &Controller{
		autoEndSilenceDuration: autoEndSilenceDuration,
		sinks:                  sinks,
		isActive:               true,
	}
}

// Run consumes events until the channel closes or ctx is cancelled.
func (c *Controller) Run(ctx context.Context, events <-chan provider.Event) error {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.handle(ev)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) handle(ev provider.Event) {
	switch ev.Kind {
	case provider.EventInterim:
		c.handleInterim(ev.Result)
	case provider.EventFinalResult:
		c.handleFinal(ev.Result)
	case provider.EventUtteranceEnd:
		c.handleUtteranceEnd()
	case provider.EventSpeechStarted:
		c.handleSpeechStarted()
	case provider.EventClosed:
		c.handleClosed()
	case provider.EventError:
		if c.sinks.OnError != nil {
			c.sinks.OnError(ev.Err)
		}
	case provider.EventMetadata:
		// ignored
	}
}

func (c *Controller) handleInterim(r provider.Result) {
	c.mu.Lock()
	deleteChars, typed := diffFromEnd(c.interim, r.Transcript)
	c.interim = r.Transcript
	c.cancelTimerLocked()
	cb := c.sinks.OnTextUpdate
	c.mu.Unlock()

	if cb != nil {
		cb(typed, deleteChars, false, r.Transcript)
	}
}

func (c *Controller) handleFinal(r provider.Result) {
	c.mu.Lock()
	deleteChars, typed := diffFromEnd(c.interim, r.Transcript)
	if r.Transcript != "" {
		typed += " "
	}
	c.interim = ""
	speechFinal := r.SpeechFinal
	cb := c.sinks.OnTextUpdate
	c.mu.Unlock()

	if cb != nil {
		cb(typed, deleteChars, true, r.Transcript)
	}
	if speechFinal {
		c.fireUtteranceEnd()
	}
}

func (c *Controller) handleUtteranceEnd() {
	c.fireUtteranceEnd()

	c.mu.Lock()
	if c.isActive && c.hasSpeechOccurred && c.autoEndSilenceDuration > 0 {
		c.resetTimerLocked()
	}
	c.mu.Unlock()
}

func (c *Controller) fireUtteranceEnd() {
	c.mu.Lock()
	cb := c.sinks.OnUtteranceEnd
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *Controller) handleSpeechStarted() {
	c.mu.Lock()
	c.hasSpeechOccurred = true
	c.cancelTimerLocked()
	cb := c.sinks.OnSpeechStarted
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (c *Controller) handleClosed() {
	c.mu.Lock()
	if !c.isActive {
		c.mu.Unlock()
		return
	}
	c.isActive = false
	c.cancelTimerLocked()
	cb := c.sinks.OnSessionClosed
	c.mu.Unlock()

	if cb != nil {
		go cb()
	}
}

// resetTimerLocked stops any pending timer and arms a fresh one. Must be
// called with c.mu held.
func (c *Controller) resetTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.autoEndSilenceDuration, c.fireAutoEnd)
}

// cancelTimerLocked stops any pending timer without replacing it. Must be
// called with c.mu held.
func (c *Controller) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) fireAutoEnd() {
	c.mu.Lock()
	if !c.isActive {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	cb := c.sinks.OnAutoEnd
	c.mu.Unlock()

	if cb != nil {
		cb()
	}
}
