package altproviders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWhisperCompatibleProviderTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(struct {
			Text string `json:"text"`
		}{Text: "transcribed text"})
	}))
	defer server.Close()

	p := NewWhisperCompatibleProvider("test-key", server.URL, "whisper-1", nil)
	if !p.IsConfigured() {
		t.Fatal("expected configured with api key set")
	}

	text, err := p.Transcribe(context.Background(), []byte{0, 0, 0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "transcribed text" {
		t.Fatalf("text = %q, want %q", text, "transcribed text")
	}
}

func TestWhisperCompatibleProviderRejectsUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	p := NewWhisperCompatibleProvider("wrong-key", server.URL, "whisper-1", nil)
	if _, err := p.Transcribe(context.Background(), []byte{0, 0}); err == nil {
		t.Fatal("expected error for unauthorized response")
	}
}

func TestWhisperCompatibleProviderNotConfiguredWithoutKey(t *testing.T) {
	p := NewWhisperCompatibleProvider("", "http://example.invalid", "whisper-1", nil)
	if p.IsConfigured() {
		t.Fatal("expected not configured without an api key")
	}
}

func TestDeepgramBatchProviderTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(struct {
			Results struct {
				Channels []struct {
					Alternatives []struct {
						Transcript string `json:"transcript"`
					} `json:"alternatives"`
				} `json:"channels"`
			} `json:"results"`
		}{
			Results: struct {
				Channels []struct {
					Alternatives []struct {
						Transcript string `json:"transcript"`
					} `json:"alternatives"`
				} `json:"channels"`
			}{
				Channels: []struct {
					Alternatives []struct {
						Transcript string `json:"transcript"`
					} `json:"alternatives"`
				}{{
					Alternatives: []struct {
						Transcript string `json:"transcript"`
					}{{Transcript: "deepgram text"}},
				}},
			},
		})
	}))
	defer server.Close()

	p := NewDeepgramBatchProvider("test-key", nil)
	p.url = server.URL

	text, err := p.Transcribe(context.Background(), []byte{0, 0, 0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "deepgram text" {
		t.Fatalf("text = %q, want %q", text, "deepgram text")
	}
}

func TestDeepgramBatchProviderEmptyChannelsReturnsEmptyString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(struct {
			Results struct {
				Channels []struct{} `json:"channels"`
			} `json:"results"`
		}{})
	}))
	defer server.Close()

	p := NewDeepgramBatchProvider("test-key", nil)
	p.url = server.URL

	text, err := p.Transcribe(context.Background(), []byte{0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "" {
		t.Fatalf("text = %q, want empty", text)
	}
}

func TestAssemblyAIProviderUploadSubmitPoll(t *testing.T) {
	var uploaded, submitted bool
	pollCount := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		uploaded = true
		json.NewEncoder(w).Encode(struct {
			UploadURL string `json:"upload_url"`
		}{UploadURL: "https://example.invalid/uploaded.wav"})
	})
	mux.HandleFunc("/v2/transcript/", func(w http.ResponseWriter, r *http.Request) {
		pollCount++
		status := "processing"
		if pollCount >= 2 {
			status = "completed"
		}
		json.NewEncoder(w).Encode(struct {
			Text   string `json:"text"`
			Status string `json:"status"`
		}{Text: "assemblyai text", Status: status})
	})
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		submitted = true
		json.NewEncoder(w).Encode(struct {
			ID string `json:"id"`
		}{ID: "abc123"})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	p := NewAssemblyAIProvider("test-key", nil)
	p.baseURL = server.URL
	p.pollPeriod = 0

	uploadURL, err := p.upload(context.Background(), []byte{0})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !uploaded {
		t.Fatal("expected upload endpoint to be hit")
	}

	transcriptID, err := p.submit(context.Background(), uploadURL)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !submitted || transcriptID != "abc123" {
		t.Fatalf("submit endpoint not hit correctly, id=%q", transcriptID)
	}

	text, err := p.poll(context.Background(), transcriptID)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if text != "assemblyai text" {
		t.Fatalf("text = %q, want %q", text, "assemblyai text")
	}
	if pollCount < 2 {
		t.Fatalf("expected poll to retry past the processing status, got %d calls", pollCount)
	}
}
