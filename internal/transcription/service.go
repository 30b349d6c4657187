// Package transcription implements TranscriptionService (batch HTTP
// upload, retry, timeout scaling) and RateLimiter (spec §4.7-§4.8).
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// HTTPDoer is the capability interface the service talks to the network
// through, matching spec §9's "HTTP transport is a capability interface
// with a small operation set".
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the tunables for one Service.
type Config struct {
	URL                 string
	AccessToken         string
	AccountID           string
	BaseTimeout         time.Duration
	MaxTimeout          time.Duration
	BaseTimeoutDataSize int64
	MaxAudioSizeBytes   int64 // default 25 MiB
	MaxRetries          int   // spec: implementations vary 2-3; this one uses 2
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns sensible defaults for the provider described in
// spec §6 ("POST https://chatgpt.com/backend-api/transcribe").
func DefaultConfig() Config {
	return Config{
		URL:                 "https://chatgpt.com/backend-api/transcribe",
		BaseTimeout:         10 * time.Second,
		MaxTimeout:          90 * time.Second,
		BaseTimeoutDataSize: 1 << 20,  // 1 MiB
		MaxAudioSizeBytes:   25 << 20, // 25 MiB
		MaxRetries:          2,
		RetryBaseDelay:      500 * time.Millisecond,
	}
}

// Service performs the batch multipart upload to the transcription
// provider.
type Service struct {
	cfg    Config
	client HTTPDoer
}

// NewService creates a Service. client defaults to http.DefaultClient.
func NewService(cfg Config, client HTTPDoer) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	return &Service{cfg: cfg, client: client}
}

// scaledTimeout interpolates linearly between BaseTimeout and MaxTimeout
// based on size, per spec §4.7.
func (s *Service) scaledTimeout(size int64) time.Duration {
	if size <= s.cfg.BaseTimeoutDataSize {
		return s.cfg.BaseTimeout
	}
	if size >= s.cfg.MaxAudioSizeBytes {
		return s.cfg.MaxTimeout
	}
	span := s.cfg.MaxAudioSizeBytes - s.cfg.BaseTimeoutDataSize
	progress := float64(size-s.cfg.BaseTimeoutDataSize) / float64(span)
	delta := time.Duration(progress * float64(s.cfg.MaxTimeout-s.cfg.BaseTimeout))
	return s.cfg.BaseTimeout + delta
}

// Transcribe uploads wavBytes and returns the transcript text.
func (s *Service) Transcribe(ctx context.Context, wavBytes []byte) (string, error) {
	size := int64(len(wavBytes))
	if size > s.cfg.MaxAudioSizeBytes {
		return "", &AudioTooLargeError{Size: size, MaxSize: s.cfg.MaxAudioSizeBytes}
	}

	bo := &retryAfterBackOff{base: backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.cfg.RetryBaseDelay),
	)}

	maxTries := uint(s.cfg.MaxRetries) + 1

	return backoff.Retry(ctx, func() (string, error) {
		text, err := s.attempt(ctx, wavBytes)
		if err == nil {
			return text, nil
		}

		switch e := err.(type) {
		case *RetryableError:
			if e.RetryAfter > 0 {
				bo.override = time.Duration(e.RetryAfter) * time.Second
			}
			return "", err // retryable: let backoff.Retry retry it
		default:
			return "", backoff.Permanent(err)
		}
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(maxTries))
}

// attempt performs exactly one HTTP round trip.
func (s *Service) attempt(ctx context.Context, wavBytes []byte) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(wavBytes); err != nil {
		return "", err
	}
	boundary := writer.Boundary()
	if err := writer.Close(); err != nil {
		return "", err
	}

	timeout := s.scaledTimeout(int64(len(wavBytes)))
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.cfg.URL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	req.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)
	req.Header.Set("ChatGPT-Account-Id", s.cfg.AccountID)
	req.Header.Set("originator", "Codex Desktop")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ErrCancelled
		}
		return "", &RetryableError{Cause: err}
	}
	defer resp.Body.Close()

	return s.handleResponse(resp)
}

func (s *Service) handleResponse(resp *http.Response) (string, error) {
	switch {
	case resp.StatusCode == http.StatusOK:
		var result struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return "", ErrDecodeFailed
		}
		return result.Text, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrAuthFailed

	case resp.StatusCode == http.StatusTooManyRequests:
		body := readBodyTruncated(resp.Body)
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &RetryableError{StatusCode: resp.StatusCode, Body: body, RetryAfter: retryAfter}

	case resp.StatusCode >= 500:
		body := readBodyTruncated(resp.Body)
		return "", &RetryableError{StatusCode: resp.StatusCode, Body: body}

	default:
		body := readBodyTruncated(resp.Body)
		return "", &ClientError{StatusCode: resp.StatusCode, Body: body}
	}
}

func readBodyTruncated(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 64<<10))
	return truncateErrorBody(string(b))
}

func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	n, err := strconv.Atoi(header)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// retryAfterBackOff wraps an ExponentialBackOff so a server-supplied
// Retry-After hint can override a single NextBackOff call, taking
// precedence over the computed exponential delay.
type retryAfterBackOff struct {
	base     backoff.BackOff
	override time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	if b.override > 0 {
		d := b.override
		b.override = 0
		return d
	}
	return b.base.NextBackOff()
}

func (b *retryAfterBackOff) Reset() {
	b.override = 0
	b.base.Reset()
}
