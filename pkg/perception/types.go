// Package perception holds the domain types shared by the scan loop,
// the detection client, speech output and the dashboard.
package perception

// Box is a bounding box in frame pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one object reported by the detection backend.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"` // 0-1
	Box        Box     `json:"box"`

	// Distance is a placeholder estimate, not a measurement.
	Distance string `json:"distance"`
}

// ScanState is the scan controller state.
type ScanState int

const (
	Idle ScanState = iota
	Scanning
)

func (s ScanState) String() string {
	if s == Scanning {
		return "scanning"
	}
	return "idle"
}

// MarshalText implements encoding.TextMarshaler.
func (s ScanState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ListeningState is the voice-command session state.
type ListeningState int

const (
	Disabled ListeningState = iota
	Listening
)

func (s ListeningState) String() string {
	if s == Listening {
		return "listening"
	}
	return "disabled"
}

// MarshalText implements encoding.TextMarshaler.
func (s ListeningState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BackendStatus is the result of the backend health probe.
type BackendStatus int

const (
	BackendUnknown BackendStatus = iota
	BackendOK
	BackendDegraded
	BackendOffline
)

func (s BackendStatus) String() string {
	switch s {
	case BackendOK:
		return "ok"
	case BackendDegraded:
		return "degraded"
	case BackendOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s BackendStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CanScan reports whether scanning may start with this status.
func (s BackendStatus) CanScan() bool {
	return s != BackendOffline
}

// CloneDetections returns a copy of dets that never aliases the input.
// A nil or empty input yields an empty, non-nil slice.
func CloneDetections(dets []Detection) []Detection {
	out := make([]Detection, len(dets))
	copy(out, dets)
	return out
}
