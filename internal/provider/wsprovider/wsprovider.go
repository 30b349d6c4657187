// Package wsprovider is a reference StreamingProvider backed by a
// websocket connection: JSON event frames inbound, binary PCM frames
// outbound, matching the wire shape of the teacher's lokutor TTS client.
package wsprovider

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/dictation-engine/internal/provider"
)

// Config is this provider's concrete SessionConfig payload.
type Config struct {
	SampleRate int
	Language   string
}

// Provider is a StreamingProvider dialing a single websocket host per
// session, JSON control/event frames, binary audio frames.
type Provider struct {
	apiKey string
	host   string
	path   string
}

// New creates a Provider. host is the bare host:port (no scheme); path
// defaults to "/v1/stream" when empty.
func New(apiKey, host, path string) *Provider {
	if path == "" {
		path = "/v1/stream"
	}
	return &Provider{apiKey: apiKey, host: host, path: path}
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != "" && p.host != ""
}

func (p *Provider) BuildSessionConfig() provider.SessionConfig {
	return Config{SampleRate: 16000, Language: "en"}
}

func (p *Provider) StartSession(ctx context.Context, cfg provider.SessionConfig) (provider.Session, error) {
	wireCfg, _ := cfg.(Config)

	u := url.URL{Scheme: "wss", Host: p.host, Path: p.path, RawQuery: "api_key=" + p.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("wsprovider: dial: %w", err)
	}

	startReq := map[string]any{
		"type":        "start",
		"sample_rate": wireCfg.SampleRate,
		"language":    wireCfg.Language,
	}
	if err := wsjson.Write(ctx, conn, startReq); err != nil {
		conn.Close(websocket.StatusAbnormalClosure, "failed to send start")
		return nil, fmt.Errorf("wsprovider: start: %w", err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	s := &session{
		conn:   conn,
		ctx:    sessCtx,
		cancel: cancel,
		events: make(chan provider.Event, 32),
	}
	go s.readLoop()
	return s, nil
}

// wireEvent is the inbound JSON event frame shape.
type wireEvent struct {
	Type        string  `json:"type"`
	Transcript  string  `json:"transcript"`
	Confidence  float64 `json:"confidence"`
	SpeechFinal bool    `json:"speech_final"`
	LastWordEnd float64 `json:"last_word_end"`
	Timestamp   float64 `json:"timestamp"`
	RequestID   string  `json:"request_id"`
	Error       string  `json:"error"`
}

type session struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	events chan provider.Event

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func (s *session) Events() <-chan provider.Event { return s.events }

func (s *session) SendAudio(pcm16 []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("wsprovider: session closed")
	}
	return s.conn.Write(s.ctx, websocket.MessageBinary, pcm16)
}

func (s *session) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("wsprovider: session closed")
	}
	return wsjson.Write(s.ctx, s.conn, map[string]any{"type": "finalize"})
}

func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		err = s.conn.Close(websocket.StatusNormalClosure, "")
	})
	return err
}

// readLoop decodes inbound JSON event frames until the connection errs or
// closes, translating each into a provider.Event and emitting a terminal
// Closed event before closing the channel. When Close has already
// cancelled the session, the channel is closed without a Closed event.
func (s *session) readLoop() {
	defer close(s.events)

	for {
		var we wireEvent
		err := wsjson.Read(s.ctx, s.conn, &we)
		if err != nil {
			if s.ctx.Err() != nil {
				return // Close() already cancelled: no spurious Closed event
			}
			s.emit(provider.Event{Kind: provider.EventClosed})
			return
		}
		if ev, ok := translate(we); ok {
			s.emit(ev)
			if ev.Kind == provider.EventClosed {
				return
			}
		}
	}
}

func (s *session) emit(ev provider.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func translate(we wireEvent) (provider.Event, bool) {
	switch we.Type {
	case "interim":
		return provider.Event{Kind: provider.EventInterim, Result: result(we)}, true
	case "final":
		return provider.Event{Kind: provider.EventFinalResult, Result: result(we)}, true
	case "utterance_end":
		return provider.Event{Kind: provider.EventUtteranceEnd, LastWordEnd: we.LastWordEnd}, true
	case "speech_started":
		return provider.Event{Kind: provider.EventSpeechStarted, Timestamp: we.Timestamp}, true
	case "metadata":
		return provider.Event{Kind: provider.EventMetadata, RequestID: we.RequestID}, true
	case "error":
		return provider.Event{Kind: provider.EventError, Err: fmt.Errorf("wsprovider: %s", we.Error)}, true
	case "closed":
		return provider.Event{Kind: provider.EventClosed}, true
	default:
		return provider.Event{}, false
	}
}

func result(we wireEvent) provider.Result {
	return provider.Result{
		Transcript:  we.Transcript,
		Confidence:  we.Confidence,
		SpeechFinal: we.SpeechFinal,
	}
}
