// Package testhelpers provides common utilities and helper functions for testing the RelayChat server.
//
// This package contains reusable test utilities that are shared across unit and integration tests.
// It provides functions for creating test servers, making HTTP requests, speaking the event
// envelope protocol over WebSocket connections, and asserting response properties to reduce
// code duplication in test files.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relaychat/internal/server"
)

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
// It fails the test with a descriptive error message if the content types don't match.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket creates a WebSocket connection to the specified URL using
// the given Origin header. It returns the connection or an error if the
// connection fails.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// JoinRoom sends a join_room event over the WebSocket connection.
func JoinRoom(conn *websocket.Conn, room, username string) error {
	return WriteEvent(conn, server.EventJoinRoom, server.JoinRequest{Room: room, Username: username})
}

// SendChatMessage sends a send_message event carrying the given payload.
func SendChatMessage(conn *websocket.Conn, msg server.ChatMessage) error {
	return WriteEvent(conn, server.EventSendMessage, msg)
}

// WriteEvent marshals an event envelope and sends it as a text frame.
func WriteEvent(conn *websocket.Conn, name string, data any) error {
	frame := struct {
		Name string `json:"event"`
		Data any    `json:"data"`
	}{Name: name, Data: data}
	return conn.WriteJSON(frame)
}

// EventReader reads event envelopes from a WebSocket connection. The server's
// write pump may coalesce queued envelopes into a single frame separated by
// newlines; the reader splits such frames and hands out one event at a time.
type EventReader struct {
	conn    *websocket.Conn
	pending []server.Event
}

// NewEventReader wraps a WebSocket connection in an EventReader.
func NewEventReader(conn *websocket.Conn) *EventReader {
	return &EventReader{conn: conn}
}

// Next returns the next event from the connection, failing the test if
// nothing arrives before the timeout.
func (r *EventReader) Next(t *testing.T, timeout time.Duration) server.Event {
	t.Helper()

	if len(r.pending) > 0 {
		event := r.pending[0]
		r.pending = r.pending[1:]
		return event
	}

	if err := r.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	_, raw, err := r.conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}

	for _, part := range bytes.Split(raw, []byte{'\n'}) {
		if len(part) == 0 {
			continue
		}
		var event server.Event
		if err := json.Unmarshal(part, &event); err != nil {
			t.Fatalf("Failed to unmarshal event envelope %q: %v", part, err)
		}
		r.pending = append(r.pending, event)
	}

	if len(r.pending) == 0 {
		t.Fatal("Received frame contained no events")
	}

	event := r.pending[0]
	r.pending = r.pending[1:]
	return event
}

// NextChatMessage reads the next event and asserts it is a receive_message
// carrying the returned payload.
func (r *EventReader) NextChatMessage(t *testing.T, timeout time.Duration) server.ChatMessage {
	t.Helper()

	event := r.Next(t, timeout)
	if event.Name != server.EventReceiveMessage {
		t.Fatalf("Expected %s event, got %q", server.EventReceiveMessage, event.Name)
	}

	var msg server.ChatMessage
	if err := json.Unmarshal(event.Data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal chat message: %v", err)
	}
	return msg
}

// NextPresenceUpdate reads the next event and asserts it is a user_status
// carrying the returned payload.
func (r *EventReader) NextPresenceUpdate(t *testing.T, timeout time.Duration) server.PresenceUpdate {
	t.Helper()

	event := r.Next(t, timeout)
	if event.Name != server.EventUserStatus {
		t.Fatalf("Expected %s event, got %q", server.EventUserStatus, event.Name)
	}

	var update server.PresenceUpdate
	if err := json.Unmarshal(event.Data, &update); err != nil {
		t.Fatalf("Failed to unmarshal presence update: %v", err)
	}
	return update
}

// ExpectNoPendingEvent asserts that the reader has no buffered event and that
// nothing more arrives on the connection before the timeout elapses.
func (r *EventReader) ExpectNoPendingEvent(t *testing.T, timeout time.Duration) {
	t.Helper()

	if len(r.pending) > 0 {
		t.Fatalf("Expected no event, but %d are already buffered (next: %q)", len(r.pending), r.pending[0].Name)
	}
	ExpectNoEvent(t, r.conn, timeout)
}

// ExpectNoEvent asserts that nothing arrives on the connection before the
// timeout elapses. A clean close is also accepted.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no event, but received %q", raw)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of events: %v", err)
}

// SendRawMessage sends a raw byte message over the WebSocket connection.
func SendRawMessage(conn *websocket.Conn, messageType int, data []byte) error {
	return conn.WriteMessage(messageType, data)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
