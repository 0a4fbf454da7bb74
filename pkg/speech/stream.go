package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fi-losopher/Perception/pkg/perception"
)

// Transcript is one message from a transcript stream.
type Transcript struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// StreamRecognizer reads transcripts from a WebSocket server. Only final
// transcripts are emitted.
type StreamRecognizer struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewStreamRecognizer creates a recognizer for the server at url.
func NewStreamRecognizer(url string, header http.Header, logger *slog.Logger) *StreamRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamRecognizer{
		url:    url,
		header: header,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.With("component", "speech-stream"),
	}
}

// Run dials the server and emits final transcripts until ctx is cancelled
// or the server closes the stream.
func (r *StreamRecognizer) Run(ctx context.Context, emit func(string)) error {
	conn, _, err := r.dialer.DialContext(ctx, r.url, r.header)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: dial %s: %v", perception.ErrRecognition, r.url, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("%w: read: %v", perception.ErrRecognition, err)
		}

		var msg Transcript
		if err := json.Unmarshal(data, &msg); err != nil {
			r.logger.Debug("ignoring malformed transcript", "error", err)
			continue
		}
		text := strings.TrimSpace(msg.Text)
		if !msg.Final || text == "" {
			continue
		}
		emit(text)
	}
}
