package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fi-losopher/Perception/pkg/assistant"
	"github.com/fi-losopher/Perception/pkg/camera"
	"github.com/fi-losopher/Perception/pkg/command"
	"github.com/fi-losopher/Perception/pkg/perception"
	"github.com/fi-losopher/Perception/pkg/scan"
)

// fakeController records calls and serves a fixed state.
type fakeController struct {
	mu    sync.Mutex
	calls []string
	state assistant.State
	frame []byte
	err   error // returned by every operation when set
}

func (f *fakeController) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeController) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) State(ctx context.Context) (assistant.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone(), nil
}

func (f *fakeController) Frame() ([]byte, error) {
	if f.frame == nil {
		return nil, perception.ErrNoFrame
	}
	return f.frame, nil
}

func (f *fakeController) StartScan(ctx context.Context) error  { return f.record("start") }
func (f *fakeController) StopScan(ctx context.Context) error   { return f.record("stop") }
func (f *fakeController) ToggleScan(ctx context.Context) error { return f.record("toggle") }
func (f *fakeController) ToggleMute(ctx context.Context) error { return f.record("toggle-mute") }
func (f *fakeController) Describe(ctx context.Context) error   { return f.record("describe") }
func (f *fakeController) Help(ctx context.Context) error       { return f.record("help") }

func (f *fakeController) SetMuted(ctx context.Context, muted bool) error {
	if muted {
		return f.record("mute")
	}
	return f.record("unmute")
}

func (f *fakeController) SetListening(ctx context.Context, on bool) error {
	if on {
		return f.record("listen-on")
	}
	return f.record("listen-off")
}

func (f *fakeController) ToggleListening(ctx context.Context) error {
	return f.record("toggle-listening")
}

func (f *fakeController) HandleUtterance(ctx context.Context, text string) (command.Action, bool, error) {
	err := f.record("utterance:" + text)
	act, ok := command.Route(text)
	return act, ok, err
}

func (f *fakeController) RecheckBackend(ctx context.Context) (perception.BackendStatus, error) {
	return perception.BackendOK, f.record("recheck")
}

type fakeTranscripts struct {
	mu     sync.Mutex
	pushed []string
	failed []error
}

func (f *fakeTranscripts) Push(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, text)
	return true
}

func (f *fakeTranscripts) Fail(err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, err)
	return true
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(ctl *fakeController, opts ...Option) *Server {
	return NewServer(":0", ctl, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func do(t *testing.T, s *Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, data
}

func TestIndex(t *testing.T) {
	s := newTestServer(&fakeController{})
	resp, body := do(t, s, http.MethodGet, "/", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Errorf("content type = %q", resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(string(body), "/ws/speech") {
		t.Error("dashboard does not bridge speech")
	}
}

func TestStatus(t *testing.T) {
	ctl := &fakeController{state: assistant.State{
		Scan:       perception.Scanning,
		Backend:    perception.BackendDegraded,
		Muted:      true,
		Detections: []perception.Detection{{Class: "chair", Confidence: 0.75, Distance: "1.5 meters"}},
	}}
	s := newTestServer(ctl)

	resp, body := do(t, s, http.MethodGet, "/api/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got["scan"] != "scanning" || got["backend"] != "degraded" || got["listening"] != "disabled" || got["muted"] != true {
		t.Errorf("status = %s", body)
	}
	dets, _ := got["detections"].([]any)
	if len(dets) != 1 {
		t.Errorf("detections = %v", got["detections"])
	}
}

func TestActions(t *testing.T) {
	tests := []struct {
		path string
		body string
		want string
	}{
		{"/api/scan/start", "", "start"},
		{"/api/scan/stop", "", "stop"},
		{"/api/scan/toggle", "", "toggle"},
		{"/api/mute", "", "toggle-mute"},
		{"/api/mute", `{"muted":true}`, "mute"},
		{"/api/mute", `{"muted":false}`, "unmute"},
		{"/api/listening", "", "toggle-listening"},
		{"/api/listening", `{"enabled":true}`, "listen-on"},
		{"/api/listening", `{"enabled":false}`, "listen-off"},
		{"/api/describe", "", "describe"},
		{"/api/help", "", "help"},
		{"/api/health/recheck", "", "recheck"},
	}
	for _, tt := range tests {
		t.Run(tt.path+tt.body, func(t *testing.T) {
			ctl := &fakeController{}
			s := newTestServer(ctl)
			resp, body := do(t, s, http.MethodPost, tt.path, tt.body)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d body %s", resp.StatusCode, body)
			}
			if calls := ctl.called(); len(calls) != 1 || calls[0] != tt.want {
				t.Errorf("calls = %q, want [%s]", calls, tt.want)
			}
		})
	}
}

func TestActionErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"already scanning", scan.ErrAlreadyScanning, http.StatusOK},
		{"not scanning", scan.ErrNotScanning, http.StatusOK},
		{"offline", perception.ErrBackendOffline, http.StatusServiceUnavailable},
		{"stopped", assistant.ErrNotRunning, http.StatusServiceUnavailable},
		{"no speech", assistant.ErrNoSpeechInput, http.StatusNotImplemented},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeController{err: tt.err})
			resp, body := do(t, s, http.MethodPost, "/api/scan/start", "")
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (%s)", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestMuteBadBody(t *testing.T) {
	ctl := &fakeController{}
	s := newTestServer(ctl)
	resp, _ := do(t, s, http.MethodPost, "/api/mute", `{"muted":`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if len(ctl.called()) != 0 {
		t.Errorf("calls = %q", ctl.called())
	}
}

func TestUtterance(t *testing.T) {
	ctl := &fakeController{}
	s := newTestServer(ctl)

	resp, body := do(t, s, http.MethodPost, "/api/utterance", `{"text":"Describe the room"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got struct {
		Matched bool   `json:"matched"`
		Action  string `json:"action"`
	}
	json.Unmarshal(body, &got)
	if !got.Matched || got.Action != "describe" {
		t.Errorf("response = %s", body)
	}

	resp, _ = do(t, s, http.MethodPost, "/api/utterance", `{"text":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty text status = %d", resp.StatusCode)
	}
}

func TestFrame(t *testing.T) {
	ctl := &fakeController{}
	s := newTestServer(ctl)

	resp, _ := do(t, s, http.MethodGet, "/api/frame", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("no frame status = %d", resp.StatusCode)
	}

	ctl.frame = []byte{0xFF, 0xD8, 0xFF, 0xD9}
	resp, body := do(t, s, http.MethodGet, "/api/frame", "")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("status %d type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if len(body) != 4 {
		t.Errorf("body = %x", body)
	}
}

func TestCommands(t *testing.T) {
	s := newTestServer(&fakeController{})
	_, body := do(t, s, http.MethodGet, "/api/commands", "")
	var got struct {
		Commands []string `json:"commands"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Commands) != len(command.Commands()) {
		t.Errorf("commands = %q", got.Commands)
	}
}

func TestCameraSettings(t *testing.T) {
	s := newTestServer(&fakeController{})
	if resp, _ := do(t, s, http.MethodGet, "/api/camera", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("without manager status = %d", resp.StatusCode)
	}

	m := camera.NewManager(camera.DefaultConfig())
	var applied camera.Config
	m.OnConfigChange = func(cfg camera.Config) error {
		applied = cfg
		return nil
	}
	s = newTestServer(&fakeController{}, WithCameraManager(m))

	resp, body := do(t, s, http.MethodPost, "/api/camera", `{"preset":"low","quality":55}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body %s", resp.StatusCode, body)
	}
	if applied.Width != 640 || applied.Quality != 55 {
		t.Errorf("applied = %+v", applied)
	}

	resp, _ = do(t, s, http.MethodPost, "/api/camera", `{"width":10}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid width status = %d", resp.StatusCode)
	}

	resp, body = do(t, s, http.MethodGet, "/api/camera", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"presets"`) {
		t.Errorf("GET camera = %d %s", resp.StatusCode, body)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(&fakeController{})
	resp, _ := do(t, s, http.MethodGet, "/ws/status", "")
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestSpeechMessages(t *testing.T) {
	tr := &fakeTranscripts{}
	handle := TranscriptHandler(tr, quietLogger())

	handle([]byte(`{"type":"transcript","text":"stop scanning"}`))
	handle([]byte(`{"text":"help"}`))
	handle([]byte(`not json`))
	handle([]byte(`{"type":"error","error":"network"}`))

	if len(tr.pushed) != 2 || tr.pushed[0] != "stop scanning" || tr.pushed[1] != "help" {
		t.Errorf("pushed = %q", tr.pushed)
	}
	if len(tr.failed) != 1 || !errors.Is(tr.failed[0], perception.ErrRecognition) {
		t.Errorf("failed = %v", tr.failed)
	}
}

func TestTranscriptHandlerWithoutTarget(t *testing.T) {
	// must not panic
	TranscriptHandler(nil, quietLogger())([]byte(`{"text":"help"}`))
}
