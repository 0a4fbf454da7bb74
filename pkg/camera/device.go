package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fi-losopher/Perception/pkg/perception"
	"gocv.io/x/gocv"
)

// maxReadFailures is how many consecutive failed reads end the capture loop.
const maxReadFailures = 50

// capturer is the part of gocv.VideoCapture the capture loop uses.
type capturer interface {
	Read(m *gocv.Mat) bool
	Set(prop gocv.VideoCaptureProperties, param float64)
	Close() error
}

// Device captures from a local camera with gocv. A background goroutine
// owns the capture handle: it reads frames continuously, keeps only the
// latest one JPEG-encoded and applies setting changes between reads.
type Device struct {
	logger *slog.Logger

	mu      sync.RWMutex
	cfg     Config
	latest  []byte
	readErr error

	capture capturer
	updates chan Config
	stop    chan struct{}
	done    chan struct{}
	closeMu sync.Once
}

// Open opens the camera described by cfg and starts capturing.
func Open(cfg Config, logger *slog.Logger) (*Device, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera: invalid config: %v", errs)
	}
	if logger == nil {
		logger = slog.Default()
	}

	capture, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: open device %d: %v", perception.ErrCameraAccess, cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: device %d not opened", perception.ErrCameraAccess, cfg.Device)
	}

	d := newDevice(cfg, capture, logger)
	d.logger.Info("camera opened", "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)
	return d, nil
}

func newDevice(cfg Config, capture capturer, logger *slog.Logger) *Device {
	d := &Device{
		logger:  logger.With("component", "camera", "device", cfg.Device),
		cfg:     cfg,
		capture: capture,
		updates: make(chan Config),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	applyProperties(capture, cfg)
	go d.loop()
	return d
}

func applyProperties(c capturer, cfg Config) {
	c.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	c.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	c.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
}

func frameInterval(fps int) time.Duration {
	return time.Second / time.Duration(max(fps, 1))
}

// Apply hands new capture size, rate and quality to the capture loop and
// waits until they are in effect. Changing the device index requires
// reopening.
func (d *Device) Apply(cfg Config) error {
	if cfg.Device != d.config().Device {
		return errors.New("camera: device index cannot change while open")
	}
	select {
	case d.updates <- cfg:
	case <-d.done:
		return fmt.Errorf("%w: capture stopped", perception.ErrCameraAccess)
	}
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
	return nil
}

func (d *Device) loop() {
	defer close(d.done)

	img := gocv.NewMat()
	defer img.Close()

	cfg := d.config()
	ticker := time.NewTicker(frameInterval(cfg.Framerate))
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-d.stop:
			return
		case next := <-d.updates:
			applyProperties(d.capture, next)
			if next.Framerate != cfg.Framerate {
				ticker.Reset(frameInterval(next.Framerate))
			}
			cfg = next
			continue
		case <-ticker.C:
		}

		if ok := d.capture.Read(&img); !ok || img.Empty() {
			failures++
			if failures >= maxReadFailures {
				d.setReadErr(fmt.Errorf("%w: device stopped producing frames", perception.ErrCameraAccess))
				d.logger.Error("camera read failing, capture stopped", "failures", failures)
				return
			}
			continue
		}
		failures = 0

		jpeg, err := encodeJPEG(img, cfg.Quality)
		if err != nil {
			d.logger.Warn("frame encode failed", "error", err)
			continue
		}

		d.mu.Lock()
		d.latest = jpeg
		d.mu.Unlock()
	}
}

func encodeJPEG(img gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	raw := buf.GetBytes()
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (d *Device) config() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

func (d *Device) setReadErr(err error) {
	d.mu.Lock()
	d.readErr = err
	d.mu.Unlock()
}

// Frame implements Camera.
func (d *Device) Frame() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.readErr != nil {
		return nil, d.readErr
	}
	if len(d.latest) == 0 {
		return nil, perception.ErrNoFrame
	}
	out := make([]byte, len(d.latest))
	copy(out, d.latest)
	return out, nil
}

// Close stops capturing and releases the device.
func (d *Device) Close() error {
	var err error
	d.closeMu.Do(func() {
		close(d.stop)
		<-d.done
		err = d.capture.Close()
		d.logger.Info("camera released")
	})
	return err
}

var _ Camera = (*Device)(nil)
