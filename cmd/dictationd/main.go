// Command dictationd is a runnable harness for the dictation engine: it
// wires microphone capture through either the batch or the streaming
// transcription path and writes recognized text to stdout. The real
// hotkey/accessibility surface is out of scope; this harness drives
// start/stop/cancel from stdin commands instead.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/google/uuid"

	"github.com/lokutor-ai/dictation-engine/internal/audiobuf"
	"github.com/lokutor-ai/dictation-engine/internal/auth"
	"github.com/lokutor-ai/dictation-engine/internal/clock"
	"github.com/lokutor-ai/dictation-engine/internal/config"
	"github.com/lokutor-ai/dictation-engine/internal/controller"
	"github.com/lokutor-ai/dictation-engine/internal/livestream"
	"github.com/lokutor-ai/dictation-engine/internal/provider"
	"github.com/lokutor-ai/dictation-engine/internal/provider/wsprovider"
	"github.com/lokutor-ai/dictation-engine/internal/queue"
	"github.com/lokutor-ai/dictation-engine/internal/recorder"
	"github.com/lokutor-ai/dictation-engine/internal/session"
	"github.com/lokutor-ai/dictation-engine/internal/transcription"
	"github.com/lokutor-ai/dictation-engine/internal/transcription/altproviders"
	"github.com/lokutor-ai/dictation-engine/internal/vad"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfgPath := os.Getenv("DICTATION_CONFIG")
	var cfg *config.Config
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			logger.Error("failed to load config, falling back to defaults", "path", cfgPath, "err", err)
			cfg = config.Default()
			config.ApplyEnv(cfg)
		} else {
			cfg = loaded
		}
	} else {
		cfg = config.Default()
		config.ApplyEnv(cfg)
	}

	credPath := os.Getenv("DICTATION_CREDENTIALS_PATH")
	if credPath == "" {
		home, _ := os.UserHomeDir()
		credPath = home + "/.dictationd/credentials.json"
	}
	credStore := auth.NewStore(credPath)
	creds, err := credStore.Load()
	if err != nil {
		logger.Warn("no stored credentials, continuing unauthenticated", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink := controller.NewStdoutSink()
	q := queue.New()

	var limiter *transcription.RateLimiter
	if cfg.RateLimit.RequestsPerMinute > 0 {
		limiter = transcription.NewRateLimiter(clock.System{}, time.Minute/time.Duration(cfg.RateLimit.RequestsPerMinute))
	}

	streaming := cfg.Providers.Streaming.Name != ""
	var wsProv *wsprovider.Provider
	var batchSvc provider.BatchService
	if streaming {
		wsProv = wsprovider.New(cfg.Providers.Streaming.APIKey, cfg.Providers.Streaming.BaseURL, "/v1/stream")
	} else {
		batchSvc = buildBatchProvider(cfg, creds)
	}

	if !controller.CanStartDictation(true, true, providerConfigured(streaming, wsProv, batchSvc)) {
		logger.Warn("no transcription provider configured; set providers.batch or providers.streaming")
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		logger.Error("malgo init failed", "err", err)
		os.Exit(1)
	}
	defer mctx.Uninit()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(cfg.Audio.SampleRate)

	var rec *recorder.Recorder
	var liveSession provider.Session
	var liveCancel context.CancelFunc

	hooks := controller.Hooks{
		StartCapture: func(ctx context.Context) error {
			if streaming {
				sessCtx, cancel := context.WithCancel(ctx)
				liveCancel = cancel
				sess, err := wsProv.StartSession(sessCtx, wsProv.BuildSessionConfig())
				if err != nil {
					cancel()
					return fmt.Errorf("start streaming session: %w", err)
				}
				liveSession = sess
				lc := livestream.New(cfg.Livestream.AutoEndSilence, liveSinks(sink, logger))
				go lc.Run(sessCtx, sess.Events())
				return nil
			}

			maxChunkDuration := cfg.Recorder.ChunkDuration.MaxChunkDuration()
			buf := audiobuf.New()
			vadProc := vad.NewProcessor(clock.System{}, nil, cfg.Recorder.VADThreshold)
			sessCfg := session.DefaultConfig()
			sessCfg.MaxChunkDuration = maxChunkDuration
			sessCfg.AutoEnd.Enabled = cfg.Recorder.AutoEndSilence > 0
			sessCfg.AutoEnd.SilenceDuration = cfg.Recorder.AutoEndSilence
			sessCtrl := session.New(clock.System{}, sessCfg)
			rec = recorder.New(clock.System{}, buf, vadProc, sessCtrl, time.Duration(maxChunkDuration),
				func(cr recorder.ChunkResult) { submitChunk(ctx, q, batchSvc, limiter, cr, logger) },
				recorder.WithSkipThreshold(cfg.Recorder.SkipThreshold),
			)
			rec.Start()
			return nil
		},
		StopCapture: func() {
			if streaming {
				if liveSession != nil {
					liveSession.Finalize()
				}
				return
			}
			if rec != nil {
				rec.Stop()
			}
		},
		CancelCapture: func() {
			if streaming {
				if liveSession != nil {
					liveSession.Close()
				}
				if liveCancel != nil {
					liveCancel()
				}
				return
			}
			if rec != nil {
				rec.Cancel()
			}
		},
		OnSessionComplete: func() {
			sink.PressEnter()
		},
	}

	ctrl := controller.New(q, sink, hooks)

	go drainQueueToSink(ctx, q, sink, logger)

	onSamples := func(_, pInput []byte, frameCount uint32) {
		if len(pInput) == 0 {
			return
		}
		if streaming {
			if liveSession != nil {
				_ = liveSession.SendAudio(pInput)
			}
			return
		}
		if rec == nil {
			return
		}
		rec.PushFrames(pcm16ToFloat32(pInput))
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		logger.Error("malgo device init failed", "err", err)
		os.Exit(1)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		logger.Error("device start failed", "err", err)
		os.Exit(1)
	}

	fmt.Println("dictationd ready. commands: r=start/stop, c=cancel, l=login, q=quit")
	go runCommandLoop(ctx, ctrl, cfg, credStore, logger)

	<-ctx.Done()
	fmt.Println("\nshutting down")
}

// buildBatchProvider selects a provider.BatchService implementation from
// cfg.Providers.Batch.Name: a named Whisper-compatible, Deepgram, or
// AssemblyAI REST provider when recognized, otherwise the primary
// transcription.Service client.
func buildBatchProvider(cfg *config.Config, creds auth.Credentials) provider.BatchService {
	entry := cfg.Providers.Batch
	switch entry.Name {
	case "openai":
		url := entry.BaseURL
		if url == "" {
			url = "https://api.openai.com/v1/audio/transcriptions"
		}
		return altproviders.NewWhisperCompatibleProvider(entry.APIKey, url, modelOption(entry, "whisper-1"), nil)
	case "groq":
		url := entry.BaseURL
		if url == "" {
			url = "https://api.groq.com/openai/v1/audio/transcriptions"
		}
		return altproviders.NewWhisperCompatibleProvider(entry.APIKey, url, modelOption(entry, "whisper-large-v3"), nil)
	case "deepgram":
		return altproviders.NewDeepgramBatchProvider(entry.APIKey, nil)
	case "assemblyai":
		return altproviders.NewAssemblyAIProvider(entry.APIKey, nil)
	default:
		tc := transcription.DefaultConfig()
		tc.AccessToken = creds.AccessToken
		tc.AccountID = creds.AccountID
		if entry.APIKey != "" {
			tc.AccessToken = entry.APIKey
		}
		if entry.BaseURL != "" {
			tc.URL = entry.BaseURL
		}
		return transcription.NewService(tc, nil)
	}
}

func modelOption(entry config.ProviderEntry, fallback string) string {
	if v, ok := entry.Options["model"].(string); ok && v != "" {
		return v
	}
	return fallback
}

func providerConfigured(streaming bool, ws *wsprovider.Provider, batch provider.BatchService) configuredFunc {
	if streaming {
		return configuredFunc(ws.IsConfigured)
	}
	return configuredFunc(func() bool { return batch != nil })
}

type configuredFunc func() bool

func (f configuredFunc) IsConfigured() bool { return f() }

func liveSinks(sink *controller.StdoutSink, logger *slog.Logger) livestream.Sinks {
	return livestream.Sinks{
		OnTextUpdate: func(typed string, deleteChars int, isFinal bool, fullText string) {
			if deleteChars > 0 {
				sink.Delete(deleteChars)
			}
			if typed != "" {
				sink.Insert(typed)
			}
		},
		OnUtteranceEnd: func() {},
		OnSessionClosed: func() {
			logger.Info("streaming session closed")
		},
		OnError: func(err error) {
			logger.Error("streaming provider error", "err", err)
		},
		OnAutoEnd: func() {
			logger.Info("auto-end fired on silence")
		},
	}
}

func submitChunk(ctx context.Context, q *queue.Queue, svc provider.BatchService, limiter *transcription.RateLimiter, cr recorder.ChunkResult, logger *slog.Logger) {
	if svc == nil {
		return
	}
	ticket := q.NextSequence()
	requestID := uuid.NewString()
	go func() {
		if limiter != nil {
			if err := limiter.WaitAndRecord(ctx); err != nil {
				q.MarkFailed(ticket)
				return
			}
		}
		text, err := svc.Transcribe(ctx, cr.WAV)
		if err != nil {
			logger.Warn("transcription failed", "request_id", requestID, "err", err, "reason", cr.Reason)
			q.MarkFailed(ticket)
			return
		}
		logger.Debug("transcription succeeded", "request_id", requestID)
		q.SubmitResult(ticket, text)
	}()
}

func drainQueueToSink(ctx context.Context, q *queue.Queue, sink *controller.StdoutSink, logger *slog.Logger) {
	stream := q.TextStream()
	for {
		text, ok, err := stream.Next(ctx)
		if err != nil {
			return
		}
		if !ok {
			return
		}
		if err := sink.Insert(text + " "); err != nil {
			logger.Error("sink insert failed", "err", err)
		}
	}
}

func runCommandLoop(ctx context.Context, ctrl *controller.Controller, cfg *config.Config, credStore *auth.Store, logger *slog.Logger) {
	reader := bufio.NewReader(os.Stdin)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		switch strings.TrimSpace(line) {
		case "r":
			if ctrl.State() == controller.StateIdle {
				if err := ctrl.StartRecording(ctx); err != nil {
					logger.Error("start recording failed", "err", err)
				}
			} else if ctrl.State() == controller.StateRecording {
				ctrl.StopRecording(ctx)
			}
		case "c":
			ctrl.CancelRecording()
		case "l":
			runLogin(ctx, cfg, credStore, logger)
		case "q":
			return
		}
	}
}

// runLogin drives an interactive OAuth authorization-code login and
// persists the resulting credentials to disk.
func runLogin(ctx context.Context, cfg *config.Config, credStore *auth.Store, logger *slog.Logger) {
	loginCfg := auth.LoginConfig{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		AuthURL:      cfg.OAuth.AuthURL,
		TokenURL:     cfg.OAuth.TokenURL,
	}

	creds, err := auth.Login(ctx, loginCfg, func(url string) {
		fmt.Println("open this URL to authorize:")
		fmt.Println(url)
	})
	if err != nil {
		logger.Error("login failed", "err", err)
		return
	}
	if err := credStore.Save(creds); err != nil {
		logger.Error("failed to save credentials", "err", err)
		return
	}
	logger.Info("login succeeded, credentials saved")
}

// pcm16ToFloat32 converts little-endian 16-bit PCM bytes to normalized
// float32 samples in [-1, 1].
func pcm16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		sample := int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
		out[i] = float32(sample) / 32768.0
	}
	return out
}
