package camera

import (
	"fmt"
	"strings"
	"sync"
)

// Update is a partial settings change from the dashboard. Preset applies
// first; the remaining fields override it.
type Update struct {
	Preset    string `json:"preset,omitempty"`
	Width     *int   `json:"width,omitempty"`
	Height    *int   `json:"height,omitempty"`
	Framerate *int   `json:"framerate,omitempty"`
	Quality   *int   `json:"quality,omitempty"`
}

// Manager owns the capture settings and pushes accepted changes to the
// open device.
type Manager struct {
	mu     sync.Mutex
	config Config

	// OnConfigChange applies a validated config, typically Device.Apply.
	// An error rolls the change back.
	OnConfigChange func(cfg Config) error
}

// NewManager creates a manager starting from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{config: cfg}
}

// GetConfig returns the current settings.
func (m *Manager) GetConfig() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// SetConfig validates and applies cfg.
func (m *Manager) SetConfig(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("camera: invalid config: %s", strings.Join(errs, "; "))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OnConfigChange != nil {
		if err := m.OnConfigChange(cfg); err != nil {
			return fmt.Errorf("camera: apply config: %w", err)
		}
	}
	m.config = cfg
	return nil
}

// UpdateConfig applies a partial change. The device index never changes.
func (m *Manager) UpdateConfig(u Update) error {
	cfg := m.GetConfig()

	if u.Preset != "" {
		preset, ok := GetPreset(u.Preset)
		if !ok {
			return fmt.Errorf("camera: unknown preset %q", u.Preset)
		}
		preset.Device = cfg.Device
		cfg = preset
	}
	for _, f := range []struct {
		v   *int
		dst *int
	}{
		{u.Width, &cfg.Width},
		{u.Height, &cfg.Height},
		{u.Framerate, &cfg.Framerate},
		{u.Quality, &cfg.Quality},
	} {
		if f.v != nil {
			*f.dst = *f.v
		}
	}

	return m.SetConfig(cfg)
}
