// Package hub fans websocket messages out to every connected dashboard and
// hands inbound text messages to a single handler.
package hub

// Message is one websocket frame queued for clients.
type Message struct {
	Data   []byte
	Binary bool
}

// Handler receives text messages sent by clients.
type Handler func(data []byte)
