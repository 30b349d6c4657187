package vad

import (
	"math"
	"sync"
	"time"

	"github.com/lokutor-ai/dictation-engine/internal/clock"
)

// EventType distinguishes the two speech-boundary events a Processor emits.
type EventType int

const (
	Started EventType = iota
	Ended
)

// Event is a speech-boundary observation with its timestamp.
type Event struct {
	Type EventType
	At   time.Time
}

// defaultRollingWindow bounds how many recent chunk probabilities feed
// averageSpeechProbability.
const defaultRollingWindow = 20

// Processor consumes 16kHz mono f32 frames, produces per-chunk speech
// probabilities via a Model, and emits Started/Ended speech events. It
// maintains a rolling average probability over recent chunks.
//
// When no Model is available (unsupported platform), Processor falls back
// to an energy-based heuristic so the VAD path is bypassed transparently
// rather than erroring.
type Processor struct {
	mu sync.Mutex

	clk       clock.Clock
	model     Model // nil => energy fallback
	threshold float64

	speaking bool

	window      []float64
	windowLimit int

	accumulated []float32
}

// NewProcessor creates a Processor. model may be nil, in which case the
// processor falls back to an RMS energy heuristic (spec §4.2: "the whole
// VAD path is transparently bypassed").
func NewProcessor(clk clock.Clock, model Model, threshold float64) *Processor {
	return &Processor{
		clk:         clk,
		model:       model,
		threshold:   threshold,
		windowLimit: defaultRollingWindow,
	}
}

// Process appends chunk to the accumulator, scores it, and returns any
// speech-boundary event produced by crossing the threshold.
func (p *Processor) Process(chunk []float32) (*Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.accumulated = append(p.accumulated, chunk...)

	prob, err := p.score(chunk)
	if err != nil {
		return nil, err
	}

	p.pushWindow(prob)

	isSpeech := prob >= p.threshold
	var ev *Event
	now := p.clk.Now()
	if isSpeech && !p.speaking {
		p.speaking = true
		ev = &Event{Type: Started, At: now}
	} else if !isSpeech && p.speaking {
		p.speaking = false
		ev = &Event{Type: Ended, At: now}
	}
	return ev, nil
}

func (p *Processor) score(chunk []float32) (float64, error) {
	if p.model != nil {
		return p.model.Infer(chunk)
	}
	return energyRatio(chunk), nil
}

// energyRatio is the fallback heuristic: RMS energy scaled by 50 and
// clamped so it behaves like a probability in [0,1].
func energyRatio(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	// Scale so typical speech energy lands near 0.5-0.8; clamp to [0,1].
	v := rms * 50
	if v > 1 {
		v = 1
	}
	return v
}

func (p *Processor) pushWindow(prob float64) {
	p.window = append(p.window, prob)
	if len(p.window) > p.windowLimit {
		p.window = p.window[len(p.window)-p.windowLimit:]
	}
}

// AverageSpeechProbability returns the rolling average over recent chunks,
// or 0 if none have been processed yet.
func (p *Processor) AverageSpeechProbability() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.window) == 0 {
		return 0
	}
	var sum float64
	for _, v := range p.window {
		sum += v
	}
	return sum / float64(len(p.window))
}

// ResetChunkAccumulator discards accumulated samples when a chunk is
// skipped, preventing stale silent samples from skewing the running
// average.
func (p *Processor) ResetChunkAccumulator() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accumulated = nil
	p.window = nil
}

// HasModel reports whether a real neural Model is backing this processor
// (false means the energy fallback is in use).
func (p *Processor) HasModel() bool {
	return p.model != nil
}

// Scored reports whether Process has produced at least one probability,
// distinguishing "never ran" from "ran and happened to average 0".
func (p *Processor) Scored() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.window) > 0
}

// IsSpeaking reports the processor's current speaking state.
func (p *Processor) IsSpeaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}
