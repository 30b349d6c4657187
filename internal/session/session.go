// Package session implements SessionController, the pure decision engine
// that decides when to cut a chunk and when to end a dictation turn. Every
// decision is a function of an injected clock, configured parameters, and
// observed speech events - no I/O, no timers of its own.
package session

import (
	"time"

	"github.com/lokutor-ai/dictation-engine/internal/clock"
)

// MaxChunkDuration enumerates the supported chunk-boundary window sizes.
// Unlimited means "full recording": the controller never cuts mid-session
// on pauses; a chunk only comes from an explicit stop.
type MaxChunkDuration time.Duration

const (
	Chunk15s       MaxChunkDuration = MaxChunkDuration(15 * time.Second)
	Chunk30s       MaxChunkDuration = MaxChunkDuration(30 * time.Second)
	Chunk45s       MaxChunkDuration = MaxChunkDuration(45 * time.Second)
	Chunk1m        MaxChunkDuration = MaxChunkDuration(time.Minute)
	Chunk2m        MaxChunkDuration = MaxChunkDuration(2 * time.Minute)
	Chunk5m        MaxChunkDuration = MaxChunkDuration(5 * time.Minute)
	Chunk10m       MaxChunkDuration = MaxChunkDuration(10 * time.Minute)
	Chunk15m       MaxChunkDuration = MaxChunkDuration(15 * time.Minute)
	ChunkUnlimited MaxChunkDuration = MaxChunkDuration(time.Hour)
)

// AutoEndConfig tunes the silence-based and idle-based turn-end policy.
type AutoEndConfig struct {
	Enabled bool

	// SilenceDuration is clamped to >= 3s; default 5s.
	SilenceDuration time.Duration

	// MinSessionDuration before auto-end is allowed to fire at all.
	MinSessionDuration time.Duration

	// RequireSpeechFirst, when true, means silence-based auto-end only fires
	// after at least one speech event has been observed.
	RequireSpeechFirst bool

	// NoSpeechTimeout fires auto-end if no speech occurs for this long.
	// 0 disables the idle timeout entirely.
	NoSpeechTimeout time.Duration
}

// DefaultAutoEndConfig returns the spec's defaults, already clamped.
func DefaultAutoEndConfig() AutoEndConfig {
	return AutoEndConfig{
		Enabled:            true,
		SilenceDuration:    5 * time.Second,
		MinSessionDuration: 2 * time.Second,
		RequireSpeechFirst: true,
		NoSpeechTimeout:    10 * time.Second,
	}
}

// clampSilenceDuration enforces the >= 3s floor.
func clampSilenceDuration(d time.Duration) time.Duration {
	const floor = 3 * time.Second
	if d < floor {
		return floor
	}
	return d
}

// Config holds the tunables for one SessionController.
type Config struct {
	MaxChunkDuration      MaxChunkDuration
	MinSilenceAfterSpeech time.Duration // default 1s
	AutoEnd               AutoEndConfig
}

// DefaultConfig returns the spec's defaults.
func DefaultConfig() Config {
	return Config{
		MaxChunkDuration:      Chunk30s,
		MinSilenceAfterSpeech: time.Second,
		AutoEnd:              DefaultAutoEndConfig(),
	}
}

// Controller is the chunking and turn-end decision engine described in
// spec §4.3. All exported methods are safe to call from a single owning
// goroutine; the controller holds no internal lock because it is meant to
// be driven serially by one caller (the recorder's periodic timer).
type Controller struct {
	clk clock.Clock
	cfg Config

	sessionStart     time.Time
	lastChunkEmitted time.Time
	speechStart      time.Time
	speechEnd        time.Time
	hasSpeechStart   bool
	hasSpeechEnd     bool
	hasSpoken        bool
	isSpeaking       bool

	vadEverFired bool
}

// New creates a Controller whose session starts "now" on clk.
func New(clk clock.Clock, cfg Config) *Controller {
	cfg.AutoEnd.SilenceDuration = clampSilenceDuration(cfg.AutoEnd.SilenceDuration)
	now := clk.Now()
	return &Controller{
		clk:              clk,
		cfg:              cfg,
		sessionStart:     now,
		lastChunkEmitted: now,
	}
}

// SpeechStarted records a Started(at) speech event.
func (c *Controller) SpeechStarted(at time.Time) {
	c.vadEverFired = true
	c.hasSpoken = true
	c.isSpeaking = true
	c.speechStart = at
	c.hasSpeechStart = true
	c.hasSpeechEnd = false
}

// SpeechEnded records an Ended(at) speech event.
func (c *Controller) SpeechEnded(at time.Time) {
	c.vadEverFired = true
	c.isSpeaking = false
	c.speechEnd = at
	c.hasSpeechEnd = true
}

// HasSpoken reports whether any speech has been observed this session.
func (c *Controller) HasSpoken() bool { return c.hasSpoken }

// IsSpeaking reports the controller's current speaking state.
func (c *Controller) IsSpeaking() bool { return c.isSpeaking }

func (c *Controller) currentChunkDuration() time.Duration {
	return c.clk.Now().Sub(c.lastChunkEmitted)
}

func (c *Controller) currentSessionDuration() time.Duration {
	return c.clk.Now().Sub(c.sessionStart)
}

// ShouldSendChunk implements the §4.3 chunk-boundary decision.
func (c *Controller) ShouldSendChunk() bool {
	if c.cfg.MaxChunkDuration == ChunkUnlimited {
		return false
	}

	if c.currentChunkDuration() < time.Duration(c.cfg.MaxChunkDuration) {
		return false
	}
	if c.isSpeaking {
		return false
	}

	if c.hasSpeechEnd {
		return c.clk.Now().Sub(c.speechEnd) >= c.cfg.MinSilenceAfterSpeech
	}

	// VAD never fired: fallback so a silent session still emits on the
	// boundary.
	return !c.vadEverFired
}

// ShouldAutoEndSession implements the §4.3 turn-end decision. It is
// independent of ShouldSendChunk: auto-end may fire before any chunk
// boundary.
func (c *Controller) ShouldAutoEndSession() bool {
	ae := c.cfg.AutoEnd
	if !ae.Enabled {
		return false
	}
	if c.currentSessionDuration() < ae.MinSessionDuration {
		return false
	}

	if (!ae.RequireSpeechFirst || c.hasSpoken) && c.hasSpeechEnd {
		if c.clk.Now().Sub(c.speechEnd) >= ae.SilenceDuration {
			return true
		}
	}

	if ae.NoSpeechTimeout > 0 && !c.hasSpoken {
		if c.currentSessionDuration() >= ae.NoSpeechTimeout {
			return true
		}
	}

	return false
}

// ChunkSent advances lastChunkEmitted to now and clears the recorded
// speechEnd so the next boundary measures silence from the next pause.
func (c *Controller) ChunkSent() {
	c.lastChunkEmitted = c.clk.Now()
	c.hasSpeechEnd = false
}
