// Package config loads the dictation engine's settings document and
// layers environment-variable overrides on top of it.
package config

import (
	"time"

	"github.com/lokutor-ai/dictation-engine/internal/session"
)

// Config is the root settings document, loaded from YAML and overridden
// by environment variables.
type Config struct {
	Audio      AudioConfig      `yaml:"audio"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	Livestream LivestreamConfig `yaml:"livestream"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	OAuth      OAuthConfig      `yaml:"oauth"`
	Providers  ProvidersConfig  `yaml:"providers"`
}

// AudioConfig covers capture parameters.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
}

// ChunkDuration is the YAML-facing spelling of session.MaxChunkDuration:
// every value the session package accepts must be reachable from config,
// so the set mirrors session.Chunk15s..session.ChunkUnlimited exactly
// rather than defining a narrower scale of its own.
type ChunkDuration string

const (
	ChunkDuration15s       ChunkDuration = "15s"
	ChunkDuration30s       ChunkDuration = "30s"
	ChunkDuration45s       ChunkDuration = "45s"
	ChunkDuration1m        ChunkDuration = "1m"
	ChunkDuration2m        ChunkDuration = "2m"
	ChunkDuration5m        ChunkDuration = "5m"
	ChunkDuration10m       ChunkDuration = "10m"
	ChunkDuration15m       ChunkDuration = "15m"
	ChunkDurationUnlimited ChunkDuration = "unlimited"
)

// IsValid reports whether d is a recognized ChunkDuration.
func (d ChunkDuration) IsValid() bool {
	switch d {
	case "", ChunkDuration15s, ChunkDuration30s, ChunkDuration45s, ChunkDuration1m,
		ChunkDuration2m, ChunkDuration5m, ChunkDuration10m, ChunkDuration15m, ChunkDurationUnlimited:
		return true
	default:
		return false
	}
}

// MaxChunkDuration maps d onto the session package's own duration scale.
// The zero value ("") maps to session.Chunk30s, matching Default().
func (d ChunkDuration) MaxChunkDuration() session.MaxChunkDuration {
	switch d {
	case ChunkDuration15s:
		return session.Chunk15s
	case ChunkDuration45s:
		return session.Chunk45s
	case ChunkDuration1m:
		return session.Chunk1m
	case ChunkDuration2m:
		return session.Chunk2m
	case ChunkDuration5m:
		return session.Chunk5m
	case ChunkDuration10m:
		return session.Chunk10m
	case ChunkDuration15m:
		return session.Chunk15m
	case ChunkDurationUnlimited:
		return session.ChunkUnlimited
	default:
		return session.Chunk30s
	}
}

// Seconds returns the chunk duration this enum value represents.
func (d ChunkDuration) Seconds() time.Duration {
	return time.Duration(d.MaxChunkDuration())
}

// RecorderConfig covers StreamingRecorder tuning.
type RecorderConfig struct {
	ChunkDuration  ChunkDuration `yaml:"chunk_duration"`
	SkipThreshold  float64       `yaml:"skip_threshold"`
	VADThreshold   float64       `yaml:"vad_threshold"`
	AutoEndSilence time.Duration `yaml:"auto_end_silence"`
}

// LivestreamConfig covers LiveStreamingController tuning.
type LivestreamConfig struct {
	AutoEndSilence time.Duration `yaml:"auto_end_silence"`
}

// RateLimitConfig covers the transcription rate limiter.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// OAuthConfig covers the token endpoint and loopback callback.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
}

// ProvidersConfig selects and configures the batch and streaming
// transcription providers, mirroring glyphoxa's ProviderEntry shape.
type ProvidersConfig struct {
	Batch     ProviderEntry `yaml:"batch"`
	Streaming ProviderEntry `yaml:"streaming"`
}

// ProviderEntry is the common configuration block for one provider slot.
type ProviderEntry struct {
	Name    string         `yaml:"name"`
	APIKey  string         `yaml:"api_key"`
	BaseURL string         `yaml:"base_url"`
	Options map[string]any `yaml:"options"`
}

// Default returns a Config populated with the engine's documented
// defaults, before YAML and environment overrides are applied.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{SampleRate: 16000},
		Recorder: RecorderConfig{
			ChunkDuration:  ChunkDuration30s,
			SkipThreshold:  0.30,
			VADThreshold:   0.5,
			AutoEndSilence: 20 * time.Second,
		},
		Livestream: LivestreamConfig{
			AutoEndSilence: 20 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			Burst:             3,
		},
	}
}
