// Package detect is the client for the object-detection backend.
//
// The backend contract is two endpoints:
//
//	GET  {base}/api/health  -> {"status": "ok", "message": "..."}
//	POST {base}/api/detect  {"image": "data:image/jpeg;base64,..."}
//	                        -> {"detections": [{"class", "confidence", "box"}]}
package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/fi-losopher/Perception/internal/httpc"
	"github.com/fi-losopher/Perception/pkg/perception"
	"github.com/google/uuid"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 4096

// Health is the outcome of a health probe.
type Health struct {
	Status  perception.BackendStatus
	Message string
}

// Client talks to the detection backend.
type Client struct {
	baseURL   string
	http      *http.Client
	logger    *slog.Logger
	distance  func() string
	requestID func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = httpc.NewClient(d) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l.With("component", "detect.client") }
}

// WithDistance replaces the distance estimator.
func WithDistance(f func() string) Option {
	return func(c *Client) { c.distance = f }
}

// WithRequestIDs replaces the request ID generator.
func WithRequestIDs(f func() string) Option {
	return func(c *Client) { c.requestID = f }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		http:      httpc.NewClient(DefaultTimeout),
		logger:    slog.Default().With("component", "detect.client"),
		distance:  PlaceholderDistance,
		requestID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health probes the backend. Any network error or non-2xx status maps to
// BackendOffline and is also returned as a *DetectionError.
func (c *Client) Health(ctx context.Context) (Health, error) {
	rid := c.requestID()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return Health{Status: perception.BackendOffline}, &DetectionError{Op: "health", RequestID: rid, Err: err}
	}
	req.Header.Set("X-Request-ID", rid)

	resp, err := c.http.Do(req)
	if err != nil {
		return Health{Status: perception.BackendOffline, Message: err.Error()},
			&DetectionError{Op: "health", RequestID: rid, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		derr := c.statusError("health", rid, resp)
		return Health{Status: perception.BackendOffline, Message: derr.Message}, derr
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		// Reachable but not speaking the contract.
		return Health{Status: perception.BackendDegraded, Message: "unreadable health response"}, nil
	}

	status := perception.BackendDegraded
	if strings.EqualFold(body.Status, "ok") {
		status = perception.BackendOK
	}
	c.logger.Debug("backend health", "status", body.Status, "message", body.Message)
	return Health{Status: status, Message: body.Message}, nil
}

type detectRequest struct {
	Image string `json:"image"`
}

type rawDetection struct {
	Class      string         `json:"class"`
	Confidence float64        `json:"confidence"`
	Box        perception.Box `json:"box"`
}

type detectResponse struct {
	Detections    []rawDetection `json:"detections"`
	InferenceTime float64        `json:"inference_time"`
}

// Detect sends one JPEG frame to the backend and returns its detections,
// each with a placeholder distance estimate.
func (c *Client) Detect(ctx context.Context, jpeg []byte) ([]perception.Detection, error) {
	if len(jpeg) == 0 {
		return nil, ErrEmptyFrame
	}
	rid := c.requestID()
	start := time.Now()

	body, err := json.Marshal(detectRequest{Image: EncodeDataURL(jpeg)})
	if err != nil {
		return nil, &DetectionError{Op: "detect", RequestID: rid, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/detect", bytes.NewReader(body))
	if err != nil {
		return nil, &DetectionError{Op: "detect", RequestID: rid, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", rid)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &DetectionError{Op: "detect", RequestID: rid, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.statusError("detect", rid, resp)
	}

	var result detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &DetectionError{Op: "detect", StatusCode: resp.StatusCode, RequestID: rid,
			Err: fmt.Errorf("decode response: %w", err)}
	}

	dets := make([]perception.Detection, len(result.Detections))
	for i, d := range result.Detections {
		dets[i] = perception.Detection{
			Class:      d.Class,
			Confidence: d.Confidence,
			Box:        d.Box,
			Distance:   c.distance(),
		}
	}

	c.logger.Debug("detections received",
		"request_id", rid,
		"count", len(dets),
		"bytes", len(jpeg),
		"latency_ms", time.Since(start).Milliseconds(),
		"inference_s", result.InferenceTime,
	)
	return dets, nil
}

// statusError builds a DetectionError from a non-2xx response.
func (c *Client) statusError(op, rid string, resp *http.Response) *DetectionError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil {
		switch {
		case body.Error != "":
			msg = body.Error
		case body.Message != "":
			msg = body.Message
		}
	}
	return &DetectionError{Op: op, StatusCode: resp.StatusCode, Message: msg, RequestID: rid}
}

// EncodeDataURL wraps JPEG bytes in a base64 data URL.
func EncodeDataURL(jpeg []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
}

// DecodeDataURL extracts the payload of a base64 data URL. Bare base64
// without the "data:...;base64," prefix is accepted too.
func DecodeDataURL(s string) ([]byte, error) {
	if i := strings.Index(s, "base64,"); i >= 0 {
		s = s[i+len("base64,"):]
	}
	if s == "" {
		return nil, errors.New("detect: empty image data")
	}
	return base64.StdEncoding.DecodeString(s)
}

// PlaceholderDistance returns a random distance between 1 and 6 meters.
// There is no depth sensor; the value only fills the dashboard column.
func PlaceholderDistance() string {
	return FormatDistance(rand.Float64()*5 + 1)
}

// FormatDistance renders a distance in meters with one decimal.
func FormatDistance(meters float64) string {
	return fmt.Sprintf("%.1f meters", meters)
}

// Fallback returns the fixed detection set used in demo mode when the
// backend fails.
func Fallback() []perception.Detection {
	return []perception.Detection{
		{
			Class:      "person",
			Confidence: 0.85,
			Box:        perception.Box{X: 100, Y: 100, Width: 50, Height: 100},
			Distance:   "2 meters",
		},
		{
			Class:      "chair",
			Confidence: 0.75,
			Box:        perception.Box{X: 200, Y: 200, Width: 60, Height: 60},
			Distance:   "1.5 meters",
		},
	}
}
