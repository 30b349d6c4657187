package controller

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/lokutor-ai/dictation-engine/internal/queue"
)

// State is a RecordingController lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateProcessingFinal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessingFinal:
		return "processing_final"
	default:
		return "unknown"
	}
}

// ErrBusy is returned by StartRecording when a session is already active.
var ErrBusy = errors.New("controller: already recording or processing a prior session")

// ErrNotRecording is returned by StopRecording when the controller is not
// recording.
var ErrNotRecording = errors.New("controller: not recording")

// Hooks are the side effects the controller drives; cmd/dictationd wires
// these to the real capture device and provider session.
type Hooks struct {
	// StartCapture begins pulling audio frames into the recorder/session
	// pipeline. Called only after queue.Reset() has completed.
	StartCapture func(ctx context.Context) error
	// StopCapture asks the recorder to emit its final chunk and tear down
	// the capture device; it does not itself wait for transcription.
	StopCapture func()
	// CancelCapture discards the in-flight buffer immediately, suppressing
	// any final chunk.
	CancelCapture func()
	// OnSessionComplete fires once ProcessingFinal drains to Idle: the
	// natural place for a completion sound or an Enter press.
	OnSessionComplete func()
}

// Configured is satisfied by anything with a static configuration check,
// e.g. provider.StreamingProvider or a batch transcription.Service wrapper.
type Configured interface {
	IsConfigured() bool
}

// CanStartDictation implements the readiness guard: accessibility and
// microphone permissions granted, and at least one provider configured.
func CanStartDictation(accessibilityGranted, microphoneGranted bool, providers ...Configured) bool {
	if !accessibilityGranted || !microphoneGranted {
		return false
	}
	for _, p := range providers {
		if p != nil && p.IsConfigured() {
			return true
		}
	}
	return false
}

// Controller is the RecordingController: the state machine tying the
// queue, capture hooks, and text sink together across one session.
type Controller struct {
	mu           sync.Mutex
	state        State
	queue        *queue.Queue
	sink         TextSink
	hooks        Hooks
	finishCancel context.CancelFunc
	sessionID    string
}

// New creates an idle Controller.
func New(q *queue.Queue, sink TextSink, hooks Hooks) *Controller {
	return &Controller{queue: q, sink: sink, hooks: hooks}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the token identifying the current (or most recent)
// recording session, minted fresh by each StartRecording call. Empty
// before the first session has started.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// StartRecording transitions Idle → Recording. It is blocked while
// Recording or ProcessingFinal, resets the queue before starting capture
// so stale tickets from a prior session can never be accepted, and
// captures the sink's target before the first frame arrives.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.mu.Unlock()

	c.queue.Reset()

	if err := c.sink.CaptureTarget(); err != nil {
		return err
	}

	c.mu.Lock()
	c.state = StateRecording
	c.sessionID = uuid.NewString()
	c.mu.Unlock()

	if c.hooks.StartCapture != nil {
		if err := c.hooks.StartCapture(ctx); err != nil {
			c.mu.Lock()
			c.state = StateIdle
			c.mu.Unlock()
			return err
		}
	}
	return nil
}

// StopRecording transitions Recording → ProcessingFinal, stops capture
// (the recorder emits its final chunk before tearing down), then
// asynchronously waits for the queue to drain and transitions to Idle,
// firing OnSessionComplete.
func (c *Controller) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return ErrNotRecording
	}
	c.state = StateProcessingFinal
	c.mu.Unlock()

	if c.hooks.StopCapture != nil {
		c.hooks.StopCapture()
	}

	waitCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.finishCancel = cancel
	c.mu.Unlock()

	go c.finishIfDone(waitCtx)
	return nil
}

// finishIfDone waits for the queue to drain its current session, then
// transitions ProcessingFinal → Idle and signals completion. A concurrent
// cancel cancels waitCtx directly, so a discarded session never leaves
// this goroutine blocked forever.
func (c *Controller) finishIfDone(ctx context.Context) {
	if c.queue.GetPendingCount() > 0 {
		c.queue.WaitForCompletion(ctx)
	}

	c.mu.Lock()
	if c.state != StateProcessingFinal {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.finishCancel = nil
	c.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if c.hooks.OnSessionComplete != nil {
		c.hooks.OnSessionComplete()
	}
}

// CancelRecording suppresses the final chunk, discards capture state,
// bumps the session generation, and resets the text sink. Valid from
// either Recording or ProcessingFinal; a no-op from Idle.
func (c *Controller) CancelRecording() {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	if c.finishCancel != nil {
		c.finishCancel()
		c.finishCancel = nil
	}
	c.mu.Unlock()

	if c.hooks.CancelCapture != nil {
		c.hooks.CancelCapture()
	}
	c.queue.Reset()
	c.sink.CancelAndReset()
}
