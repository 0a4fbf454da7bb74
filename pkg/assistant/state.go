package assistant

import (
	"time"

	"github.com/fi-losopher/Perception/pkg/perception"
)

// State is everything the dashboard shows.
type State struct {
	Scan           perception.ScanState      `json:"scan"`
	Session        string                    `json:"session,omitempty"`
	Listening      perception.ListeningState `json:"listening"`
	Backend        perception.BackendStatus  `json:"backend"`
	BackendMessage string                    `json:"backend_message,omitempty"`
	Muted          bool                      `json:"muted"`
	Detections     []perception.Detection    `json:"detections"`
	Transcript     string                    `json:"transcript,omitempty"`
	LastSpoken     string                    `json:"last_spoken,omitempty"`
	CameraReady    bool                      `json:"camera_ready"`
	Demo           bool                      `json:"demo,omitempty"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// Clone returns a copy that shares no memory with s.
func (s State) Clone() State {
	s.Detections = perception.CloneDetections(s.Detections)
	return s
}

func initialState() State {
	return State{Detections: []perception.Detection{}}
}

// action is one pure state mutation.
type action interface{ apply(State) State }

type (
	scanStarted struct{ session string }
	scanStopped struct{}
	detected    struct{ dets []perception.Detection }
	muteSet     struct{ muted bool }
	listenSet   struct{ state perception.ListeningState }
	backendSet  struct {
		status  perception.BackendStatus
		message string
	}
	heard     struct{ text string }
	spoke     struct{ text string }
	cameraSet struct{ ready bool }
)

func (a scanStarted) apply(s State) State {
	s.Scan = perception.Scanning
	s.Session = a.session
	return s
}

func (scanStopped) apply(s State) State {
	s.Scan = perception.Idle
	s.Session = ""
	s.Detections = []perception.Detection{}
	return s
}

func (a detected) apply(s State) State {
	s.Detections = perception.CloneDetections(a.dets)
	return s
}

func (a muteSet) apply(s State) State {
	s.Muted = a.muted
	return s
}

func (a listenSet) apply(s State) State {
	s.Listening = a.state
	return s
}

func (a backendSet) apply(s State) State {
	s.Backend = a.status
	s.BackendMessage = a.message
	return s
}

func (a heard) apply(s State) State {
	s.Transcript = a.text
	return s
}

func (a spoke) apply(s State) State {
	s.LastSpoken = a.text
	return s
}

func (a cameraSet) apply(s State) State {
	s.CameraReady = a.ready
	return s
}

// reduce returns the state after a. It never aliases the input's slices.
func reduce(s State, a action) State {
	return a.apply(s.Clone())
}
