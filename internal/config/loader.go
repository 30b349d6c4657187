package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML settings document at path, layers environment
// overrides on top (via ApplyEnv), and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the documented
// defaults, applies environment overrides, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv layers environment variables on top of cfg, loading a .env
// file first (if present) the same way the capture harness does. Env
// vars take precedence over whatever YAML already set.
func ApplyEnv(cfg *Config) {
	_ = godotenv.Load() // optional; absence is not an error

	if v := os.Getenv("DICTATION_OAUTH_CLIENT_ID"); v != "" {
		cfg.OAuth.ClientID = v
	}
	if v := os.Getenv("DICTATION_OAUTH_CLIENT_SECRET"); v != "" {
		cfg.OAuth.ClientSecret = v
	}
	if v := os.Getenv("DICTATION_OAUTH_REDIRECT_URI"); v != "" {
		cfg.OAuth.RedirectURI = v
	}
	if v := os.Getenv("DICTATION_BATCH_PROVIDER_API_KEY"); v != "" {
		cfg.Providers.Batch.APIKey = v
	}
	if v := os.Getenv("DICTATION_STREAMING_PROVIDER_API_KEY"); v != "" {
		cfg.Providers.Streaming.APIKey = v
	}
	if v := os.Getenv("DICTATION_STREAMING_PROVIDER_NAME"); v != "" {
		cfg.Providers.Streaming.Name = v
	}
	if v := os.Getenv("DICTATION_BATCH_PROVIDER_NAME"); v != "" {
		cfg.Providers.Batch.Name = v
	}
	if v := os.Getenv("DICTATION_AUTO_END_SILENCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Recorder.AutoEndSilence = d
			cfg.Livestream.AutoEndSilence = d
		}
	}
	if v := os.Getenv("DICTATION_VAD_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Recorder.VADThreshold = f
		}
	}
}

// Validate checks that cfg contains a coherent set of values, returning
// a joined error listing every failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if !cfg.Recorder.ChunkDuration.IsValid() {
		errs = append(errs, fmt.Errorf("recorder.chunk_duration %q is invalid; valid values: 15s, 30s, 45s, 1m, 2m, 5m, 10m, 15m, unlimited", cfg.Recorder.ChunkDuration))
	}
	if cfg.Recorder.SkipThreshold < 0 || cfg.Recorder.SkipThreshold > 1 {
		errs = append(errs, fmt.Errorf("recorder.skip_threshold %.2f is out of range [0,1]", cfg.Recorder.SkipThreshold))
	}
	if cfg.Recorder.VADThreshold < 0 || cfg.Recorder.VADThreshold > 1 {
		errs = append(errs, fmt.Errorf("recorder.vad_threshold %.2f is out of range [0,1]", cfg.Recorder.VADThreshold))
	}
	if cfg.Recorder.AutoEndSilence > 0 && cfg.Recorder.AutoEndSilence < 3*time.Second {
		errs = append(errs, fmt.Errorf("recorder.auto_end_silence %s is below the 3s minimum", cfg.Recorder.AutoEndSilence))
	}
	if cfg.Livestream.AutoEndSilence > 0 && cfg.Livestream.AutoEndSilence < 3*time.Second {
		errs = append(errs, fmt.Errorf("livestream.auto_end_silence %s is below the 3s minimum", cfg.Livestream.AutoEndSilence))
	}
	if cfg.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.requests_per_minute must be non-negative, got %d", cfg.RateLimit.RequestsPerMinute))
	}
	if cfg.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.burst must be non-negative, got %d", cfg.RateLimit.Burst))
	}
	if cfg.Providers.Batch.Name == "" && cfg.Providers.Streaming.Name == "" {
		errs = append(errs, errors.New("providers: at least one of batch or streaming must be configured"))
	}

	return errors.Join(errs...)
}
