// Package recorder implements StreamingRecorder: audio capture ingestion,
// VAD-driven chunk boundaries, and WAV packaging (spec §4.4).
package recorder

import (
	"sync"
	"time"

	"github.com/lokutor-ai/dictation-engine/internal/audiobuf"
	"github.com/lokutor-ai/dictation-engine/internal/clock"
	"github.com/lokutor-ai/dictation-engine/internal/session"
	"github.com/lokutor-ai/dictation-engine/internal/vad"
	"github.com/lokutor-ai/dictation-engine/pkg/wav"
)

// Reason distinguishes why a chunk was emitted.
type Reason string

const (
	ReasonTimer Reason = "timer-boundary"
	ReasonStop  Reason = "stop"
)

// defaultSkipThreshold is the probability below which a low-confidence
// chunk is skipped rather than emitted, unless the session has already
// recorded real speech (the "speech-in-session bypass").
const defaultSkipThreshold = 0.30

// minRecordingDuration is the floor below which stop() emits no final
// chunk at all.
const minRecordingDuration = 250 * time.Millisecond

// defaultTickInterval drives the >= 10 Hz periodic timer the spec requires.
const defaultTickInterval = 100 * time.Millisecond

// ChunkResult is delivered to the emission callback each time a chunk (or
// the final chunk) is cut.
type ChunkResult struct {
	WAV               []byte
	SpeechProbability float64
	Reason            Reason
}

// Option configures optional Recorder tunables.
type Option func(*Recorder)

// WithSkipThreshold overrides the default low-confidence skip threshold.
func WithSkipThreshold(threshold float64) Option {
	return func(r *Recorder) { r.skipThreshold = threshold }
}

// WithTickInterval overrides the periodic timer's period. Callers must
// keep this at or below 100ms to satisfy the >= 10 Hz requirement.
func WithTickInterval(d time.Duration) Option {
	return func(r *Recorder) { r.tickInterval = d }
}

// WithAutoEnd registers a callback invoked (at most once per Recorder)
// when the session controller's silence/idle auto-end condition fires.
func WithAutoEnd(fn func()) Option {
	return func(r *Recorder) { r.onAutoEnd = fn }
}

// Recorder owns one recording session's buffering, chunk-boundary timing,
// and WAV packaging. It does not own the OS audio device: frames are
// pushed in via PushFrames by whatever capture backend the caller wires up
// (see cmd/dictationd for a malgo-backed example).
//
// A Recorder is single-use: create a fresh one (with a fresh
// session.Controller) per recording session.
type Recorder struct {
	mu sync.Mutex

	clk              clock.Clock
	buf              *audiobuf.Buffer
	vadProc          *vad.Processor
	sessionCtrl      *session.Controller
	maxChunkDuration time.Duration
	skipThreshold    float64
	tickInterval     time.Duration
	onChunk          func(ChunkResult)
	onAutoEnd        func()

	started      bool
	stopped      bool
	cancelled    bool
	autoEndFired bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Recorder. onChunk is called synchronously (off the
// Recorder's internal lock) whenever a chunk is emitted.
func New(clk clock.Clock, buf *audiobuf.Buffer, vadProc *vad.Processor, sessionCtrl *session.Controller, maxChunkDuration time.Duration, onChunk func(ChunkResult), opts ...Option) *Recorder {
	r := &Recorder{
		clk:              clk,
		buf:              buf,
		vadProc:          vadProc,
		sessionCtrl:      sessionCtrl,
		maxChunkDuration: maxChunkDuration,
		skipThreshold:    defaultSkipThreshold,
		tickInterval:     defaultTickInterval,
		onChunk:          onChunk,
		stopCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins the periodic chunk-boundary timer. Returns false if the
// recorder was already started (including after a Stop or Cancel) or has
// been cancelled; on any such failure no new state is created, leaving the
// recorder indistinguishable from a never-started one.
func (r *Recorder) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.cancelled {
		return false
	}
	r.started = true

	r.wg.Add(1)
	go r.run()
	return true
}

func (r *Recorder) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.tick()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Recorder) tick() {
	r.mu.Lock()
	if !r.started || r.cancelled || r.stopped {
		r.mu.Unlock()
		return
	}
	fireAutoEnd := r.onAutoEnd != nil && !r.autoEndFired && r.sessionCtrl.ShouldAutoEndSession()
	if fireAutoEnd {
		r.autoEndFired = true
	}
	shouldSend := r.sessionCtrl.ShouldSendChunk()
	r.mu.Unlock()

	if fireAutoEnd {
		r.onAutoEnd()
	}
	if shouldSend {
		r.sendChunkIfReady(ReasonTimer)
	}
}

// PushFrames feeds a batch of 16kHz mono f32 frames into the recorder:
// labels them via the VAD (if any) and accumulates them in the buffer.
func (r *Recorder) PushFrames(frames []float32) {
	r.mu.Lock()
	if !r.started || r.cancelled || r.stopped {
		r.mu.Unlock()
		return
	}

	hasSpeech := false
	if r.vadProc != nil {
		ev, err := r.vadProc.Process(frames)
		if err == nil && ev != nil {
			switch ev.Type {
			case vad.Started:
				r.sessionCtrl.SpeechStarted(ev.At)
			case vad.Ended:
				r.sessionCtrl.SpeechEnded(ev.At)
			}
		}
		hasSpeech = r.vadProc.IsSpeaking()
	}
	r.mu.Unlock()

	r.buf.Append(frames, hasSpeech)
}

// sendChunkIfReady implements the §4.4 four-step contract.
func (r *Recorder) sendChunkIfReady(reason Reason) {
	r.mu.Lock()

	minChunkDur := time.Duration(float64(r.maxChunkDuration) * 0.1)
	if minChunkDur < 250*time.Millisecond {
		minChunkDur = 250 * time.Millisecond
	}
	if time.Duration(r.buf.Duration()*float64(time.Second)) < minChunkDur {
		r.mu.Unlock()
		return
	}

	vadActive := r.vadProc != nil
	var prob float64
	if vadActive {
		prob = r.vadProc.AverageSpeechProbability()
		if prob < r.skipThreshold && !r.sessionCtrl.HasSpoken() {
			r.vadProc.ResetChunkAccumulator()
			r.mu.Unlock()
			return
		}
	}

	snap := r.buf.TakeAll()
	if !vadActive {
		prob = snap.SpeechRatio
	}
	wavBytes := wav.EncodeFloat32(snap.Samples)
	r.sessionCtrl.ChunkSent()
	if r.vadProc != nil {
		r.vadProc.ResetChunkAccumulator()
	}
	onChunk := r.onChunk
	r.mu.Unlock()

	if onChunk != nil {
		onChunk(ChunkResult{WAV: wavBytes, SpeechProbability: prob, Reason: reason})
	}
}

// Stop ends the recording session, emitting one final chunk if the
// buffered duration meets minRecordingDuration. The final chunk's
// probability comes from the VAD's pre-reset rolling average when one was
// ever produced, falling back to the buffer's own energy-based speech
// ratio otherwise. The speech-in-session bypass does not suppress the
// final chunk: only the duration floor gates it.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.cancelled || r.stopped || !r.started {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.stopTimerLocked()

	if time.Duration(r.buf.Duration()*float64(time.Second)) < minRecordingDuration {
		r.buf.Reset()
		r.mu.Unlock()
		return
	}

	var prob float64
	scored := r.vadProc != nil && r.vadProc.Scored()
	if scored {
		prob = r.vadProc.AverageSpeechProbability()
	}
	snap := r.buf.TakeAll()
	if !scored {
		prob = snap.SpeechRatio
	}
	wavBytes := wav.EncodeFloat32(snap.Samples)
	r.sessionCtrl.ChunkSent()
	onChunk := r.onChunk
	r.mu.Unlock()

	r.wg.Wait()
	if onChunk != nil {
		onChunk(ChunkResult{WAV: wavBytes, SpeechProbability: prob, Reason: ReasonStop})
	}
}

// Cancel discards the buffer, stops the timer, and suppresses any final
// chunk. Idempotent, and safe to call on a recorder that was never
// started.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	if r.cancelled {
		r.mu.Unlock()
		return
	}
	r.cancelled = true
	r.stopTimerLocked()
	r.buf.Reset()
	r.mu.Unlock()

	r.wg.Wait()
}

// stopTimerLocked signals the run goroutine to exit. Must be called with
// r.mu held. Safe to call when the timer was never started.
func (r *Recorder) stopTimerLocked() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}
