// Package assistant is the root store. A single goroutine owns all state;
// every operation is posted to it as an event and acknowledged once
// applied. Frame capture, detection, health probes, speech and recognition
// run elsewhere and report back through the same event queue.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/fi-losopher/Perception/pkg/camera"
	"github.com/fi-losopher/Perception/pkg/command"
	"github.com/fi-losopher/Perception/pkg/detect"
	"github.com/fi-losopher/Perception/pkg/perception"
	"github.com/fi-losopher/Perception/pkg/scan"
	"github.com/fi-losopher/Perception/pkg/speech"
)

var (
	// ErrNotRunning is returned by operations after Run has returned.
	ErrNotRunning = errors.New("assistant: not running")

	// ErrNoSpeechInput is returned when listening is enabled without a
	// recognition session.
	ErrNoSpeechInput = errors.New("assistant: no speech input configured")
)

const (
	defaultDetectTimeout = 10 * time.Second
	defaultHealthTimeout = 5 * time.Second
)

// Assistant wires the scan controller, detection client, narrator and
// recognition session together.
type Assistant struct {
	detector detect.Detector
	openCam  camera.Opener
	narrator *speech.Narrator
	session  *speech.Session
	logger   *slog.Logger

	scan          *scan.Controller
	interval      time.Duration
	ticker        scan.TickerFunc
	demo          bool
	welcome       bool
	detectTimeout time.Duration
	healthTimeout time.Duration
	now           func() time.Time
	onChange      func(State)

	events  chan event
	done    chan struct{}
	runOnce sync.Once

	camMu sync.RWMutex
	cam   camera.Camera

	// loop-owned
	state    State
	inflight sync.WaitGroup
	runCtx   context.Context
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithSession enables voice commands through s.
func WithSession(s *speech.Session) Option {
	return func(a *Assistant) { a.session = s }
}

// WithInterval sets the time between scan cycles.
func WithInterval(d time.Duration) Option {
	return func(a *Assistant) { a.interval = d }
}

// WithTicker replaces the scan trigger, for tests.
func WithTicker(f scan.TickerFunc) Option {
	return func(a *Assistant) { a.ticker = f }
}

// WithDemoFallback substitutes the fixed demo detections when a detection
// request fails.
func WithDemoFallback(on bool) Option {
	return func(a *Assistant) { a.demo = on }
}

// WithWelcome speaks the welcome phrase on startup.
func WithWelcome(on bool) Option {
	return func(a *Assistant) { a.welcome = on }
}

// WithDetectTimeout bounds each detection request.
func WithDetectTimeout(d time.Duration) Option {
	return func(a *Assistant) { a.detectTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// WithOnChange registers a callback invoked from the event loop with every
// new state. It must not block.
func WithOnChange(f func(State)) Option {
	return func(a *Assistant) { a.onChange = f }
}

// New creates an assistant. It does nothing until Run is called.
func New(detector detect.Detector, openCam camera.Opener, narrator *speech.Narrator, opts ...Option) *Assistant {
	a := &Assistant{
		detector:      detector,
		openCam:       openCam,
		narrator:      narrator,
		logger:        slog.Default(),
		interval:      scan.DefaultInterval,
		welcome:       true,
		detectTimeout: defaultDetectTimeout,
		healthTimeout: defaultHealthTimeout,
		now:           time.Now,
		events:        make(chan event, 64),
		done:          make(chan struct{}),
		state:         initialState(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "assistant")

	scanOpts := []scan.Option{}
	if a.ticker != nil {
		scanOpts = append(scanOpts, scan.WithTicker(a.ticker))
	}
	a.scan = scan.New(a.interval, scanOpts...)
	a.state.Demo = a.demo

	if a.session != nil {
		a.session.OnTranscript = func(text string) { a.post(transcriptEvent{text: text}) }
		a.session.OnError = func(err error) { a.post(recognitionFailed{err: err}) }
	}
	return a
}

// Run acquires the camera, probes the backend and processes events until
// ctx is cancelled. On return the trigger, recognition session, narrator
// and camera are released. Run may be called once.
func (a *Assistant) Run(ctx context.Context) error {
	ran := false
	a.runOnce.Do(func() { ran = true })
	if !ran {
		return errors.New("assistant: Run called twice")
	}

	defer a.shutdown()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.runCtx = ctx

	a.acquireCamera(ctx)
	if a.welcome {
		a.speak(perception.PhraseWelcome)
	}
	a.applyHealth(a.probe(ctx))
	a.publish()

	a.logger.Info("assistant started",
		"interval", a.interval,
		"backend", a.state.Backend,
		"camera", a.state.CameraReady,
		"demo", a.demo)

	return a.loop(ctx)
}

func (a *Assistant) loop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("event loop panic", "error", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("assistant: event loop panic: %v", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.scan.C():
			if cycle, ok := a.scan.Tick(); ok {
				a.dispatch(cycle)
			}
		case ev := <-a.events:
			ev.handle(a)
			a.publish()
		}
	}
}

func (a *Assistant) shutdown() {
	close(a.done)

	a.scan.Close()
	if a.session != nil {
		a.session.Close()
	}
	a.narrator.Close()
	a.inflight.Wait()

	a.camMu.Lock()
	if a.cam != nil {
		if err := a.cam.Close(); err != nil {
			a.logger.Warn("camera close failed", "error", err)
		}
		a.cam = nil
	}
	a.camMu.Unlock()

	a.logger.Info("assistant stopped")
}

func (a *Assistant) acquireCamera(ctx context.Context) {
	if a.openCam == nil {
		a.speak(perception.PhraseNoCamera)
		return
	}
	cam, err := a.openCam(ctx)
	if err != nil {
		a.logger.Error("camera unavailable", "error", err)
		a.speak(perception.PhraseNoCamera)
		return
	}
	a.camMu.Lock()
	a.cam = cam
	a.camMu.Unlock()
	a.reduce(cameraSet{ready: true})
}

func (a *Assistant) probe(ctx context.Context) detect.Health {
	ctx, cancel := context.WithTimeout(ctx, a.healthTimeout)
	defer cancel()
	h, err := a.detector.Health(ctx)
	if err != nil {
		a.logger.Warn("backend health check failed", "error", err)
	}
	return h
}

// Frame returns the latest camera frame as JPEG.
func (a *Assistant) Frame() ([]byte, error) {
	a.camMu.RLock()
	defer a.camMu.RUnlock()
	if a.cam == nil {
		return nil, perception.ErrCameraAccess
	}
	return a.cam.Frame()
}

// reduce applies act to the loop-owned state.
func (a *Assistant) reduce(act action) {
	a.state = reduce(a.state, act)
	a.state.UpdatedAt = a.now()
}

func (a *Assistant) publish() {
	if a.onChange != nil {
		a.onChange(a.state.Clone())
	}
}

func (a *Assistant) speak(text string) {
	if a.narrator.Speak(text) {
		a.reduce(spoke{text: text})
	}
}

// post queues an event from any goroutine. It gives up once the loop has
// stopped.
func (a *Assistant) post(ev event) {
	select {
	case a.events <- ev:
	case <-a.done:
	}
}

// do runs fn on the event loop and waits for its result.
func (a *Assistant) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case a.events <- request{fn: fn, reply: reply}:
	case <-a.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-a.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns a copy of the current state.
func (a *Assistant) State(ctx context.Context) (State, error) {
	var s State
	err := a.do(ctx, func() error {
		s = a.state.Clone()
		return nil
	})
	return s, err
}

// StartScan begins scanning. It fails with perception.ErrBackendOffline
// when the backend is offline and scan.ErrAlreadyScanning when scanning.
func (a *Assistant) StartScan(ctx context.Context) error {
	return a.do(ctx, a.startScan)
}

// StopScan stops scanning and clears the detection set. It fails with
// scan.ErrNotScanning when idle.
func (a *Assistant) StopScan(ctx context.Context) error {
	return a.do(ctx, a.stopScan)
}

// ToggleScan starts or stops scanning.
func (a *Assistant) ToggleScan(ctx context.Context) error {
	return a.do(ctx, func() error {
		if a.scan.Scanning() {
			return a.stopScan()
		}
		return a.startScan()
	})
}

// SetMuted gates all speech output.
func (a *Assistant) SetMuted(ctx context.Context, muted bool) error {
	return a.do(ctx, func() error {
		a.setMuted(muted)
		return nil
	})
}

// ToggleMute flips the mute state.
func (a *Assistant) ToggleMute(ctx context.Context) error {
	return a.do(ctx, func() error {
		a.setMuted(!a.state.Muted)
		return nil
	})
}

// SetListening enables or disables voice commands.
func (a *Assistant) SetListening(ctx context.Context, on bool) error {
	return a.do(ctx, func() error { return a.setListening(on) })
}

// ToggleListening flips the listening state.
func (a *Assistant) ToggleListening(ctx context.Context) error {
	return a.do(ctx, func() error {
		return a.setListening(a.state.Listening != perception.Listening)
	})
}

// Describe speaks a summary of the current detections.
func (a *Assistant) Describe(ctx context.Context) error {
	return a.do(ctx, func() error {
		a.describe()
		return nil
	})
}

// Help speaks the list of voice commands.
func (a *Assistant) Help(ctx context.Context) error {
	return a.do(ctx, func() error {
		a.speak(perception.PhraseHelp)
		return nil
	})
}

// HandleUtterance records a transcript and applies the command it names.
// It reports whether the utterance matched a command.
func (a *Assistant) HandleUtterance(ctx context.Context, text string) (command.Action, bool, error) {
	var (
		act command.Action
		ok  bool
	)
	err := a.do(ctx, func() error {
		act, ok = a.handleUtterance(text)
		return nil
	})
	return act, ok, err
}

// RecheckBackend probes the backend again and applies the result.
func (a *Assistant) RecheckBackend(ctx context.Context) (perception.BackendStatus, error) {
	h, err := a.detector.Health(ctx)
	if err != nil {
		a.logger.Warn("backend recheck failed", "error", err)
	}
	if ctx.Err() != nil {
		return perception.BackendUnknown, ctx.Err()
	}
	var status perception.BackendStatus
	err = a.do(ctx, func() error {
		a.applyHealth(h)
		status = a.state.Backend
		return nil
	})
	return status, err
}

func (a *Assistant) startScan() error {
	cycle, err := a.scan.Start(a.state.Backend)
	switch {
	case errors.Is(err, perception.ErrBackendOffline):
		a.speak(perception.PhraseBackendOffline)
		return err
	case err != nil:
		return err
	}

	a.reduce(scanStarted{session: cycle.Session})
	a.speak(perception.PhraseScanStarted)
	a.logger.Info("scan started", "session", cycle.Session, "interval", a.scan.Interval())
	a.dispatch(cycle)
	return nil
}

func (a *Assistant) stopScan() error {
	session := a.scan.Session()
	if err := a.scan.Stop(); err != nil {
		return err
	}
	a.reduce(scanStopped{})
	a.speak(perception.PhraseScanStopped)
	a.logger.Info("scan stopped", "session", session)
	return nil
}

func (a *Assistant) setMuted(muted bool) {
	if a.state.Muted == muted {
		return
	}
	a.narrator.SetMuted(muted)
	a.reduce(muteSet{muted: muted})
	a.logger.Info("mute changed", "muted", muted)
}

func (a *Assistant) setListening(on bool) error {
	want := perception.Disabled
	if on {
		want = perception.Listening
	}
	if a.state.Listening == want {
		return nil
	}
	if a.session == nil {
		return ErrNoSpeechInput
	}

	if on {
		a.session.Start()
		a.reduce(listenSet{state: perception.Listening})
		a.speak(perception.PhraseVoiceOn)
	} else {
		a.session.Stop()
		a.reduce(listenSet{state: perception.Disabled})
		a.speak(perception.PhraseVoiceOff)
	}
	return nil
}

func (a *Assistant) describe() {
	a.speak(perception.DescribePhrase(a.scan.Detections()))
}

func (a *Assistant) handleUtterance(text string) (command.Action, bool) {
	a.reduce(heard{text: command.Normalize(text)})

	act, ok := command.Route(text)
	if !ok {
		a.logger.Debug("utterance ignored", "text", text)
		return act, false
	}
	a.logger.Info("voice command", "action", act, "text", text)

	switch act {
	case command.StartScan:
		if !a.scan.Scanning() {
			_ = a.startScan()
		}
	case command.StopScan:
		if a.scan.Scanning() {
			_ = a.stopScan()
		}
	case command.Mute:
		a.setMuted(true)
	case command.Unmute:
		a.setMuted(false)
	case command.Describe:
		a.describe()
	case command.Help:
		a.speak(perception.PhraseHelp)
	}
	return act, true
}

func (a *Assistant) applyHealth(h detect.Health) {
	prev := a.state.Backend
	a.reduce(backendSet{status: h.Status, message: h.Message})
	if h.Status != prev {
		a.logger.Info("backend status", "status", h.Status, "message", h.Message)
	}
	if h.Status != perception.BackendOffline {
		return
	}
	if a.scan.Scanning() {
		_ = a.scan.Stop()
		a.reduce(scanStopped{})
	}
	if prev != perception.BackendOffline {
		a.speak(perception.PhraseBackendOffline)
	}
}

// dispatch runs one detection cycle in the background.
func (a *Assistant) dispatch(cycle scan.Cycle) {
	frame, err := a.Frame()
	if err != nil {
		a.frameFailed(cycle, err)
		return
	}
	if !a.state.CameraReady {
		a.logger.Info("camera frames resumed")
		a.reduce(cameraSet{ready: true})
	}

	ctx, cancel := context.WithTimeout(a.runCtx, a.detectTimeout)
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		defer cancel()
		start := time.Now()
		dets, err := a.detector.Detect(ctx, frame)
		a.post(detectionDone{cycle: cycle, dets: dets, err: err, took: time.Since(start)})
	}()
}

// frameFailed handles a cycle without a frame. A lost camera is announced
// once; the notice repeats only after frames have come back.
func (a *Assistant) frameFailed(cycle scan.Cycle, err error) {
	if errors.Is(err, perception.ErrNoFrame) || !a.state.CameraReady {
		a.logger.Debug("no frame for scan cycle", "seq", cycle.Seq, "error", err)
		return
	}
	a.logger.Warn("camera lost", "seq", cycle.Seq, "error", err)
	a.reduce(cameraSet{ready: false})
	a.speak(perception.PhraseNoCamera)
}

func (a *Assistant) applyDetections(ev detectionDone) {
	if !a.scan.Live(ev.cycle) {
		a.logger.Debug("stale detection result dropped",
			"session", ev.cycle.Session, "seq", ev.cycle.Seq)
		return
	}

	dets := ev.dets
	if ev.err != nil {
		a.logger.Warn("detection failed", "seq", ev.cycle.Seq, "error", ev.err)
		if !a.demo {
			a.speak(perception.PhraseDetectFailed)
			return
		}
		dets = detect.Fallback()
	}

	if !a.scan.Apply(ev.cycle, dets) {
		return
	}
	a.reduce(detected{dets: dets})
	a.logger.Debug("detections applied", "seq", ev.cycle.Seq, "count", len(dets), "took", ev.took)

	if phrase := perception.FeedbackPhrase(dets); phrase != "" {
		a.speak(phrase)
	}
}

// event is anything processed by the loop.
type event interface{ handle(a *Assistant) }

type request struct {
	fn    func() error
	reply chan error
}

func (r request) handle(a *Assistant) { r.reply <- r.fn() }

type detectionDone struct {
	cycle scan.Cycle
	dets  []perception.Detection
	err   error
	took  time.Duration
}

func (e detectionDone) handle(a *Assistant) { a.applyDetections(e) }

type transcriptEvent struct{ text string }

func (e transcriptEvent) handle(a *Assistant) {
	if a.state.Listening != perception.Listening {
		return
	}
	a.handleUtterance(e.text)
}

type recognitionFailed struct{ err error }

func (e recognitionFailed) handle(a *Assistant) {
	a.logger.Error("voice recognition stopped", "error", e.err)
	if a.state.Listening != perception.Listening {
		return
	}
	a.reduce(listenSet{state: perception.Disabled})
	a.speak(perception.PhraseVoiceFailed)
}
