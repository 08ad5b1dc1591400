// Package server defines the wire-level event envelope and payload types that
// are reused across client, hub, and relay logic.
package server

import (
	"encoding/json"
	"strings"
)

// Event names exchanged over the WebSocket channel.
const (
	EventJoinRoom       = "join_room"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventUserStatus     = "user_status"
)

// Presence status values carried by user_status events.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Event is the inbound JSON envelope: an event name plus a raw data payload
// that is decoded once the event kind is known.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// envelope is the outbound counterpart of Event with a typed payload.
type envelope struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// JoinRequest is the payload of a join_room event.
type JoinRequest struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

// ChatMessage is the payload of send_message and receive_message events.
// The time field is a client-formatted local time string; the relay never
// interprets it.
type ChatMessage struct {
	Room    string `json:"room"`
	Author  string `json:"author"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// PresenceUpdate is the payload of a user_status event.
type PresenceUpdate struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

// Frame pairs an inbound event with the client it arrived on so the hub can
// exclude the sender from deliveries.
type Frame struct {
	Sender *Client
	Event  Event
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
