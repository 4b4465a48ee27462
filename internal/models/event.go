package models

import "time"

// InputKind discriminates the shape of an inbound event. The transport
// boundary decides the kind once; nothing downstream inspects raw payloads.
type InputKind string

const (
	// InputText is a free-text message.
	InputText InputKind = "text"
	// InputWidget is an interactive-button tap carrying a widget token.
	InputWidget InputKind = "widget"
	// InputLocation is a shared geographic coordinate pair.
	InputLocation InputKind = "location"
)

// Event is one inbound platform event, normalized at the transport boundary.
type Event struct {
	ID         string    `json:"id"` // assigned per event for tracing
	From       int64     `json:"from"`
	FirstName  string    `json:"first_name,omitempty"`
	LastName   string    `json:"last_name,omitempty"`
	Kind       InputKind `json:"kind"`
	Text       string    `json:"text,omitempty"`
	Token      string    `json:"token,omitempty"`       // widget token for InputWidget
	CallbackID string    `json:"callback_id,omitempty"` // platform callback handle for InputWidget
	MessageID  int64     `json:"message_id,omitempty"`  // message owning the tapped keyboard
	Latitude   float64   `json:"latitude,omitempty"`
	Longitude  float64   `json:"longitude,omitempty"`
	Time       time.Time `json:"time"`
}
