// Package altproviders implements alternate provider.BatchService
// transcription clients: each type accepts an already WAV-encoded chunk
// and returns its transcript, so cmd/dictationd can select among them
// via providers.batch.name in config.
package altproviders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// WhisperCompatibleProvider talks to any Whisper-shaped multipart
// transcription endpoint (OpenAI's and Groq's audio/transcriptions
// endpoints share this exact wire shape).
type WhisperCompatibleProvider struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

// NewWhisperCompatibleProvider creates a provider against url with model.
// client defaults to http.DefaultClient when nil.
func NewWhisperCompatibleProvider(apiKey, url, model string, client *http.Client) *WhisperCompatibleProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &WhisperCompatibleProvider{apiKey: apiKey, url: url, model: model, client: client}
}

// IsConfigured reports whether an API key has been set.
func (p *WhisperCompatibleProvider) IsConfigured() bool { return p.apiKey != "" }

func (p *WhisperCompatibleProvider) Transcribe(ctx context.Context, wavBytes []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", p.model); err != nil {
		return "", err
	}
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(wavBytes); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("altproviders: whisper-compatible error (status %d): %s", resp.StatusCode, respBody)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Text, nil
}

// DeepgramBatchProvider posts a WAV chunk directly to Deepgram's batch
// listen endpoint.
type DeepgramBatchProvider struct {
	apiKey string
	url    string
	client *http.Client
}

// NewDeepgramBatchProvider creates a provider against Deepgram's listen
// endpoint. client defaults to http.DefaultClient when nil.
func NewDeepgramBatchProvider(apiKey string, client *http.Client) *DeepgramBatchProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &DeepgramBatchProvider{
		apiKey: apiKey,
		url:    "https://api.deepgram.com/v1/listen?model=nova-2&smart_format=true",
		client: client,
	}
}

// IsConfigured reports whether an API key has been set.
func (p *DeepgramBatchProvider) IsConfigured() bool { return p.apiKey != "" }

func (p *DeepgramBatchProvider) Transcribe(ctx context.Context, wavBytes []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(wavBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("altproviders: deepgram error (status %d): %s", resp.StatusCode, respBody)
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return result.Results.Channels[0].Alternatives[0].Transcript, nil
}

// AssemblyAIProvider implements the upload-then-poll batch pattern:
// unlike the single-request providers above, the transcript is not
// available until a background job completes.
type AssemblyAIProvider struct {
	apiKey     string
	baseURL    string
	client     *http.Client
	pollPeriod time.Duration
}

// NewAssemblyAIProvider creates a provider polling every 500ms by default.
func NewAssemblyAIProvider(apiKey string, client *http.Client) *AssemblyAIProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &AssemblyAIProvider{
		apiKey:     apiKey,
		baseURL:    "https://api.assemblyai.com",
		client:     client,
		pollPeriod: 500 * time.Millisecond,
	}
}

// IsConfigured reports whether an API key has been set.
func (p *AssemblyAIProvider) IsConfigured() bool { return p.apiKey != "" }

func (p *AssemblyAIProvider) Transcribe(ctx context.Context, wavBytes []byte) (string, error) {
	uploadURL, err := p.upload(ctx, wavBytes)
	if err != nil {
		return "", err
	}
	transcriptID, err := p.submit(ctx, uploadURL)
	if err != nil {
		return "", err
	}
	return p.poll(ctx, transcriptID)
}

func (p *AssemblyAIProvider) upload(ctx context.Context, wavBytes []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/upload", bytes.NewReader(wavBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.UploadURL, nil
}

func (p *AssemblyAIProvider) submit(ctx context.Context, uploadURL string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"audio_url": uploadURL})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.ID, nil
}

func (p *AssemblyAIProvider) poll(ctx context.Context, transcriptID string) (string, error) {
	url := p.baseURL + "/v2/transcript/" + transcriptID
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.pollPeriod):
			text, status, err := p.getTranscript(ctx, url)
			if err != nil {
				return "", err
			}
			switch status {
			case "completed":
				return text, nil
			case "error":
				return "", fmt.Errorf("altproviders: assemblyai transcription failed")
			}
		}
	}
}

func (p *AssemblyAIProvider) getTranscript(ctx context.Context, url string) (text, status string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	var result struct {
		Text   string `json:"text"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", err
	}
	return result.Text, result.Status, nil
}
