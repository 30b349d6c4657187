package config

import (
	"strings"
	"testing"
	"time"

	"github.com/lokutor-ai/dictation-engine/internal/session"
)

func TestLoadFromReaderAppliesDefaultsThenYAMLOverrides(t *testing.T) {
	yamlDoc := `
recorder:
  chunk_duration: 5m
  skip_threshold: 0.5
providers:
  batch:
    name: openai
    api_key: sk-test
`
	cfg, err := LoadFromReader(strings.NewReader(yamlDoc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Recorder.ChunkDuration != ChunkDuration5m {
		t.Fatalf("chunk_duration = %q, want 5m", cfg.Recorder.ChunkDuration)
	}
	if cfg.Recorder.ChunkDuration.MaxChunkDuration() != session.Chunk5m {
		t.Fatalf("MaxChunkDuration() = %v, want session.Chunk5m", cfg.Recorder.ChunkDuration.MaxChunkDuration())
	}
	if cfg.Recorder.SkipThreshold != 0.5 {
		t.Fatalf("skip_threshold = %v, want 0.5", cfg.Recorder.SkipThreshold)
	}
	// Untouched defaults survive the partial YAML document.
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("sample_rate = %d, want default 16000", cfg.Audio.SampleRate)
	}
	if cfg.Providers.Batch.APIKey != "sk-test" {
		t.Fatalf("api_key = %q, want sk-test", cfg.Providers.Batch.APIKey)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	yamlDoc := `
bogus_top_level_field: true
`
	if _, err := LoadFromReader(strings.NewReader(yamlDoc)); err == nil {
		t.Fatal("expected decode error for unknown field")
	}
}

func TestValidateRejectsChunkDurationOutOfEnum(t *testing.T) {
	cfg := Default()
	cfg.Recorder.ChunkDuration = "glacial"
	cfg.Providers.Batch.Name = "openai"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for invalid chunk_duration")
	}
}

func TestValidateRejectsAutoEndBelowMinimum(t *testing.T) {
	cfg := Default()
	cfg.Recorder.AutoEndSilence = time.Second
	cfg.Providers.Batch.Name = "openai"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for sub-3s auto_end_silence")
	}
}

func TestValidateRequiresAtLeastOneProvider(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error with no provider configured")
	}
}

func TestValidateAcceptsDefaultsWithProvider(t *testing.T) {
	cfg := Default()
	cfg.Providers.Streaming.Name = "realtime"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestApplyEnvOverridesDefaults(t *testing.T) {
	t.Setenv("DICTATION_VAD_THRESHOLD", "0.75")
	t.Setenv("DICTATION_STREAMING_PROVIDER_NAME", "realtime")

	cfg := Default()
	ApplyEnv(cfg)

	if cfg.Recorder.VADThreshold != 0.75 {
		t.Fatalf("vad_threshold = %v, want 0.75", cfg.Recorder.VADThreshold)
	}
	if cfg.Providers.Streaming.Name != "realtime" {
		t.Fatalf("streaming provider name = %q, want realtime", cfg.Providers.Streaming.Name)
	}
}
