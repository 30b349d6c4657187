// Package provider declares the streaming transcription provider
// capability interfaces (spec §6) and the shared result/event types both
// the batch and streaming paths use.
package provider

import "context"

// Word is a single recognized word with timing, per spec's TranscriptionResult.
type Word struct {
	Text       string
	StartTime  float64
	EndTime    float64
	Confidence float64
}

// Result is a TranscriptionResult: only Transcript and SpeechFinal are
// load-bearing; Words may be empty.
type Result struct {
	Transcript string
	Confidence float64
	SpeechFinal bool
	Words      []Word
}

// EventKind discriminates the ProviderEvent sum type.
type EventKind int

const (
	EventInterim EventKind = iota
	EventFinalResult
	EventUtteranceEnd
	EventSpeechStarted
	EventMetadata
	EventError
	EventClosed
)

// Event is the ProviderEvent sum from spec §3/§6. Only the fields relevant
// to Kind are populated.
type Event struct {
	Kind         EventKind
	Result       Result  // Interim, FinalResult
	LastWordEnd  float64 // UtteranceEnd
	Timestamp    float64 // SpeechStarted
	RequestID    string  // Metadata
	Err          error   // Error
}

// SessionConfig carries whatever a concrete provider needs to open a
// session (model name, language, sample rate, endpoint URL, etc). Providers
// define and interpret their own concrete config; callers building generic
// code pass it through opaquely.
type SessionConfig any

// Session is an open streaming transcription session.
type Session interface {
	// Events returns the channel of ProviderEvents for this session. It is
	// closed once the session is fully torn down. A session that ends on
	// its own delivers a final Closed event first; after a local Close the
	// channel may be closed without one.
	Events() <-chan Event
	// SendAudio pushes 16-bit PCM, 16kHz, mono, little-endian audio.
	SendAudio(pcm16 []byte) error
	// Finalize signals end-of-utterance to the provider without closing
	// the underlying connection.
	Finalize() error
	// Close tears the session down. Idempotent.
	Close() error
}

// StreamingProvider is the outbound WebSocket transcription provider
// capability described in spec §6.
type StreamingProvider interface {
	// IsConfigured reports whether the provider has everything it needs
	// (API key, endpoint) to start a session.
	IsConfigured() bool
	// BuildSessionConfig produces the provider-specific session config for
	// a new session.
	BuildSessionConfig() SessionConfig
	// StartSession opens a new streaming session.
	StartSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

// BatchService is the outbound HTTP batch transcription provider
// capability (spec §4.7/§6), reduced to the one operation callers need.
type BatchService interface {
	Transcribe(ctx context.Context, wavBytes []byte) (string, error)
}
