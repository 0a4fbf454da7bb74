// Package backend is the reference object detection service the assistant
// probes and posts frames to.
package backend

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/fi-losopher/Perception/pkg/detect"
	"github.com/fi-losopher/Perception/pkg/perception"
)

// Detector runs inference on an encoded image.
type Detector interface {
	Detect(img []byte) ([]perception.Detection, error)
}

// Server serves the detection API.
type Server struct {
	detector Detector
	loadErr  error
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLoadError marks the model or class names as failed to load. Health
// then reports an error and detection requests fail.
func WithLoadError(err error) Option {
	return func(s *Server) { s.loadErr = err }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server around detector, which may be nil when loading
// failed.
func New(detector Detector, opts ...Option) *Server {
	s := &Server{
		detector: detector,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.detector == nil && s.loadErr == nil {
		s.loadErr = errors.New("backend: no detector")
	}
	s.logger = s.logger.With("component", "backend")
	return s
}

// Router returns the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.cors, s.requestID)
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/detect", s.handleDetect).Methods(http.MethodPost, http.MethodOptions)
	return r
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// DetectRequest carries a base64 data URL image.
type DetectRequest struct {
	Image string `json:"image"`
}

// Object is one detection in image pixels.
type Object struct {
	Class      string         `json:"class"`
	Confidence float64        `json:"confidence"`
	Box        perception.Box `json:"box"`
}

// DetectResponse lists detections and the inference time in seconds.
type DetectResponse struct {
	Detections    []Object `json:"detections"`
	InferenceTime float64  `json:"inference_time"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "ok",
		Message: "Perception detection API is running. Use /api/detect for detection.",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.loadErr != nil {
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{
			Status:  "error",
			Message: "Backend service is running, but the model failed to load: " + s.loadErr.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: "Backend service is running."})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
		return
	}
	if s.loadErr != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "model or class names not loaded"})
		return
	}

	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no image data provided"})
		return
	}
	img, err := detect.DecodeDataURL(req.Image)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid image data"})
		return
	}

	start := s.now()
	dets, err := s.detector.Detect(img)
	if err != nil {
		s.logger.Error("inference failed", "error", err, "request_id", w.Header().Get("X-Request-ID"))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "detection failed: " + err.Error()})
		return
	}
	elapsed := s.now().Sub(start).Seconds()

	objects := make([]Object, len(dets))
	for i, d := range dets {
		objects[i] = Object{Class: d.Class, Confidence: d.Confidence, Box: d.Box}
	}

	s.logger.Debug("detect", "objects", len(objects), "inference_time", elapsed)
	writeJSON(w, http.StatusOK, DetectResponse{
		Detections:    objects,
		InferenceTime: math.Round(elapsed*1000) / 1000,
	})
}
