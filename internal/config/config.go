// Package config provides configuration for Perception commands.
// Values come from PERCEPTION_* environment variables with defaults;
// commands override them with flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultBackendURL         = "http://localhost:5001"
	DefaultDetectionFrequency = 2.0 // seconds
	DefaultPort               = "8080"
	DefaultBackendPort        = "5001"
	DefaultJPEGQuality        = 80
	DefaultDetectTimeout      = 10 * time.Second
)

// Voice engines for speech output.
const (
	VoiceBrowser = "browser"
	VoiceTTS     = "tts"
	VoiceLog     = "log"
)

// Speech engines for voice commands.
const (
	SpeechBrowser = "browser"
	SpeechStream  = "stream"
	SpeechWhisper = "whisper"
)

// Config holds the assistant daemon configuration.
type Config struct {
	// Detection
	BackendURL         string
	DetectionFrequency float64 // seconds between scan cycles
	DetectTimeout      time.Duration
	DemoFallback       bool // substitute fixed detections when the backend fails

	// Camera
	CameraDevice int
	CameraWidth  int
	CameraHeight int
	JPEGQuality  int

	// Speech output
	Voice       string // browser, tts, log
	TTSProvider string // openai, google, chain, mock
	OpenAIKey   string
	GoogleKey   string

	// Speech input
	Speech         string // browser, stream, whisper
	StreamURL      string
	WhisperModel   string
	RecordDir      string
	StartListening bool

	// Dashboard
	Port string

	LogLevel string
}

// Load reads configuration from the environment.
func Load() Config {
	return Config{
		BackendURL:         getEnv("PERCEPTION_BACKEND_URL", DefaultBackendURL),
		DetectionFrequency: getFloat("PERCEPTION_DETECTION_FREQUENCY", DefaultDetectionFrequency),
		DetectTimeout:      getDuration("PERCEPTION_DETECT_TIMEOUT", DefaultDetectTimeout),
		DemoFallback:       getBool("PERCEPTION_DEMO_FALLBACK", false),

		CameraDevice: getInt("PERCEPTION_CAMERA_DEVICE", 0),
		CameraWidth:  getInt("PERCEPTION_CAMERA_WIDTH", 1280),
		CameraHeight: getInt("PERCEPTION_CAMERA_HEIGHT", 720),
		JPEGQuality:  getInt("PERCEPTION_JPEG_QUALITY", DefaultJPEGQuality),

		Voice:       getEnv("PERCEPTION_VOICE", VoiceBrowser),
		TTSProvider: getEnv("PERCEPTION_TTS_PROVIDER", "openai"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		GoogleKey:   os.Getenv("GOOGLE_API_KEY"),

		Speech:         getEnv("PERCEPTION_SPEECH", SpeechBrowser),
		StreamURL:      os.Getenv("PERCEPTION_STREAM_URL"),
		WhisperModel:   getEnv("PERCEPTION_WHISPER_MODEL", "models/ggml-base.en.bin"),
		RecordDir:      os.Getenv("PERCEPTION_RECORD_DIR"),
		StartListening: getBool("PERCEPTION_START_LISTENING", false),

		Port:     getEnv("PERCEPTION_PORT", DefaultPort),
		LogLevel: getEnv("PERCEPTION_LOG_LEVEL", "info"),
	}
}

// Interval returns the scan interval.
func (c Config) Interval() time.Duration {
	return time.Duration(c.DetectionFrequency * float64(time.Second))
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var problems []string

	if !strings.HasPrefix(c.BackendURL, "http://") && !strings.HasPrefix(c.BackendURL, "https://") {
		problems = append(problems, "backend URL must be http(s)")
	}
	if c.DetectionFrequency <= 0 {
		problems = append(problems, "detection frequency must be positive")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		problems = append(problems, "JPEG quality must be between 1 and 100")
	}
	switch c.Voice {
	case VoiceBrowser, VoiceTTS, VoiceLog:
	default:
		problems = append(problems, "unknown voice "+strconv.Quote(c.Voice))
	}
	switch c.Speech {
	case SpeechBrowser, SpeechWhisper:
	case SpeechStream:
		if c.StreamURL == "" {
			problems = append(problems, "stream speech engine requires a stream URL")
		}
	default:
		problems = append(problems, "unknown speech engine "+strconv.Quote(c.Speech))
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// BackendConfig holds the reference detection backend configuration.
type BackendConfig struct {
	Port           string
	ModelPath      string
	ClassNamesPath string
	Confidence     float64
	NMS            float64
	LogLevel       string
}

// LoadBackend reads the reference backend configuration from the environment.
func LoadBackend() BackendConfig {
	return BackendConfig{
		Port:           getEnv("PERCEPTION_BACKEND_PORT", DefaultBackendPort),
		ModelPath:      getEnv("PERCEPTION_MODEL_PATH", "models/yolov8n.onnx"),
		ClassNamesPath: getEnv("PERCEPTION_CLASS_NAMES", "models/coco.names"),
		Confidence:     getFloat("PERCEPTION_CONFIDENCE", 0.5),
		NMS:            getFloat("PERCEPTION_NMS", 0.4),
		LogLevel:       getEnv("PERCEPTION_LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultVal
}

func getFloat(key string, defaultVal float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultVal
}
