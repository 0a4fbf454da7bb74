// Perception - seeing assistant for blind and low-vision users.
// Scans the camera on an interval, narrates detected objects and takes
// voice commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/afero"

	"github.com/fi-losopher/Perception/internal/config"
	plog "github.com/fi-losopher/Perception/internal/log"
	"github.com/fi-losopher/Perception/pkg/assistant"
	"github.com/fi-losopher/Perception/pkg/audio"
	"github.com/fi-losopher/Perception/pkg/camera"
	"github.com/fi-losopher/Perception/pkg/detect"
	"github.com/fi-losopher/Perception/pkg/hearing"
	"github.com/fi-losopher/Perception/pkg/hub"
	"github.com/fi-losopher/Perception/pkg/speech"
	"github.com/fi-losopher/Perception/pkg/tts"
	"github.com/fi-losopher/Perception/pkg/web"
)

func main() {
	cfg := parseFlags()

	plog.Init(cfg.LogLevel)
	logger := plog.L()

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags over the environment configuration.
func parseFlags() config.Config {
	cfg := config.Load()

	flag.StringVar(&cfg.BackendURL, "backend", cfg.BackendURL, "Detection backend base URL")
	flag.Float64Var(&cfg.DetectionFrequency, "frequency", cfg.DetectionFrequency, "Seconds between scan cycles")
	flag.DurationVar(&cfg.DetectTimeout, "detect-timeout", cfg.DetectTimeout, "Per-frame detection timeout")
	flag.BoolVar(&cfg.DemoFallback, "demo", cfg.DemoFallback, "Narrate a fixed scene when detection fails")
	flag.IntVar(&cfg.CameraDevice, "camera", cfg.CameraDevice, "Camera device index")
	flag.IntVar(&cfg.CameraWidth, "width", cfg.CameraWidth, "Capture width")
	flag.IntVar(&cfg.CameraHeight, "height", cfg.CameraHeight, "Capture height")
	flag.IntVar(&cfg.JPEGQuality, "quality", cfg.JPEGQuality, "JPEG quality 1-100")
	flag.StringVar(&cfg.Voice, "voice", cfg.Voice, "Speech output: browser, tts, log")
	flag.StringVar(&cfg.TTSProvider, "tts", cfg.TTSProvider, "TTS provider: openai, google, chain, mock")
	flag.StringVar(&cfg.Speech, "speech", cfg.Speech, "Voice commands: browser, stream, whisper")
	flag.StringVar(&cfg.StreamURL, "stream-url", cfg.StreamURL, "Streaming recognizer websocket URL")
	flag.StringVar(&cfg.WhisperModel, "whisper-model", cfg.WhisperModel, "Whisper ggml model path")
	flag.StringVar(&cfg.RecordDir, "record", cfg.RecordDir, "Save utterances as WAV files in this directory")
	flag.BoolVar(&cfg.StartListening, "listen", cfg.StartListening, "Start with voice commands enabled")
	flag.StringVar(&cfg.Port, "port", cfg.Port, "Dashboard port")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.Parse()

	return cfg
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	detector := detect.New(cfg.BackendURL,
		detect.WithTimeout(cfg.DetectTimeout),
		detect.WithLogger(logger))

	cam := newCameraSlot(cfg, logger)

	var transcripts web.Transcripts
	bridge := speech.NewBridge()
	if cfg.Speech == config.SpeechBrowser {
		transcripts = bridge
	}
	speechHub := hub.New("speech",
		hub.WithLogger(logger),
		hub.WithHandler(web.TranscriptHandler(transcripts, logger)))

	voice, closeVoice, err := newVoice(ctx, cfg, speechHub, logger)
	if err != nil {
		return err
	}
	defer closeVoice()
	narrator := speech.NewNarrator(voice, logger)

	rec, closeRec, err := newRecognizer(cfg, bridge, logger)
	if err != nil {
		return err
	}
	defer closeRec()
	session := speech.NewSession(rec, speech.WithSessionLogger(logger))

	var srv *web.Server
	a := assistant.New(detector, cam.open, narrator,
		assistant.WithSession(session),
		assistant.WithInterval(cfg.Interval()),
		assistant.WithDetectTimeout(cfg.DetectTimeout),
		assistant.WithDemoFallback(cfg.DemoFallback),
		assistant.WithLogger(logger),
		assistant.WithOnChange(func(s assistant.State) {
			if srv != nil {
				srv.PublishState(s)
			}
		}),
	)

	srv = web.NewServer(":"+cfg.Port, a,
		web.WithTranscripts(transcripts),
		web.WithSpeechHub(speechHub),
		web.WithCameraManager(cam.manager),
		web.WithLogger(logger))

	logger.Info("perception starting",
		"backend", cfg.BackendURL,
		"interval", cfg.Interval(),
		"voice", cfg.Voice,
		"speech", cfg.Speech,
		"dashboard", "http://localhost:"+cfg.Port)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- a.Run(ctx) }()
	go func() { errCh <- srv.Run(ctx) }()

	if cfg.StartListening {
		if err := a.SetListening(ctx, true); err != nil {
			logger.Warn("voice commands not started", "error", err)
		}
	}

	// First exit stops the other.
	err = <-errCh
	cancel()
	if err2 := <-errCh; err == nil {
		err = err2
	}
	return err
}

// cameraSlot opens the capture device with the current managed settings
// and applies later changes to it.
type cameraSlot struct {
	manager *camera.Manager
	logger  *slog.Logger

	mu     sync.Mutex
	device *camera.Device
}

func newCameraSlot(cfg config.Config, logger *slog.Logger) *cameraSlot {
	cc := camera.DefaultConfig()
	cc.Device = cfg.CameraDevice
	cc.Width = cfg.CameraWidth
	cc.Height = cfg.CameraHeight
	cc.Quality = cfg.JPEGQuality

	s := &cameraSlot{manager: camera.NewManager(cc), logger: logger}
	s.manager.OnConfigChange = s.apply
	return s
}

func (s *cameraSlot) open(ctx context.Context) (camera.Camera, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := camera.Open(s.manager.GetConfig(), s.logger)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.device = d
	s.mu.Unlock()
	return d, nil
}

func (s *cameraSlot) apply(cfg camera.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil
	}
	return s.device.Apply(cfg)
}

// newVoice builds the speech output selected by cfg.Voice.
func newVoice(ctx context.Context, cfg config.Config, out *hub.Hub, logger *slog.Logger) (speech.Voice, func(), error) {
	switch cfg.Voice {
	case config.VoiceBrowser:
		return speech.NewBrowserVoice(out), func() {}, nil
	case config.VoiceLog:
		return speech.NewLogVoice(logger), func() {}, nil
	case config.VoiceTTS:
		provider, err := tts.New(ctx, cfg.TTSProvider, tts.Keys{OpenAI: cfg.OpenAIKey, Google: cfg.GoogleKey}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("tts provider: %w", err)
		}
		sink, err := audio.NewSink(audio.DefaultConfig(), logger)
		if err != nil {
			provider.Close()
			return nil, nil, fmt.Errorf("audio output: %w", err)
		}
		player := audio.NewPlayer(sink, logger)
		return speech.NewTTSVoice(provider, player), func() {
			player.Close()
			provider.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown voice %q", cfg.Voice)
	}
}

// newRecognizer builds the voice command input selected by cfg.Speech.
func newRecognizer(cfg config.Config, bridge *speech.Bridge, logger *slog.Logger) (speech.Recognizer, func(), error) {
	switch cfg.Speech {
	case config.SpeechBrowser:
		return bridge, func() {}, nil
	case config.SpeechStream:
		return speech.NewStreamRecognizer(cfg.StreamURL, nil, logger), func() {}, nil
	case config.SpeechWhisper:
		w, err := hearing.NewWhisper(cfg.WhisperModel, "en")
		if err != nil {
			return nil, nil, fmt.Errorf("whisper: %w", err)
		}
		opts := []hearing.Option{hearing.WithLogger(logger)}
		if cfg.RecordDir != "" {
			opts = append(opts, hearing.WithRecorder(hearing.NewRecorder(afero.NewOsFs(), cfg.RecordDir)))
		}
		open := func() (audio.Source, error) {
			return audio.NewSource(audio.MicConfig(), logger)
		}
		return hearing.NewRecognizer(open, w, opts...), func() { w.Close() }, nil
	default:
		return nil, nil, errors.New("unknown speech engine " + cfg.Speech)
	}
}
