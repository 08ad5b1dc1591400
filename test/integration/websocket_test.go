// Package integration contains integration tests for the RelayChat server.
//
// These tests verify that multiple components work together correctly by testing
// the complete system behavior with real HTTP servers, WebSocket connections,
// and end-to-end functionality. Integration tests ensure that the system works
// as expected when all components are assembled together.
package integration

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/test/testhelpers"
)

const eventTimeout = 2 * time.Second

func configureServerForTest(t *testing.T, baseURL string, customize func(cfg *server.Config)) {
	if t == nil {
		panic("testing.T is required")
	}
	t.Helper()
	cfg := server.NewConfig()
	cfg.AllowedOrigins = append([]string{baseURL}, cfg.AllowedOrigins...)
	if customize != nil {
		customize(cfg)
	}
	server.SetConfig(cfg)
	t.Cleanup(func() {
		server.SetConfig(nil)
	})
}

func buildWebSocketURL(t *testing.T, serverURL string) string {
	t.Helper()
	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	return u.String()
}

// startRelayServer starts the hub and an HTTP test server wired with the
// application routes, and returns the WebSocket and HTTP base URLs.
func startRelayServer(t *testing.T) (wsURL, serverURL string) {
	t.Helper()

	server.StartHub()

	mux := server.SetupRoutes()
	testServer := httptest.NewServer(mux)
	t.Cleanup(testServer.Close)
	configureServerForTest(t, testServer.URL, nil)

	return buildWebSocketURL(t, testServer.URL), testServer.URL
}

func connectClient(t *testing.T, wsURL, origin string) *websocket.Conn {
	t.Helper()
	conn, err := testhelpers.ConnectWebSocket(wsURL, origin)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// TestWebSocketEndpointIntegration tests the WebSocket endpoint with full server
// integration. It verifies that connections can be established and that join,
// message, and presence events flow end to end.
func TestWebSocketEndpointIntegration(t *testing.T) {
	wsURL, serverURL := startRelayServer(t)

	t.Run("Successful WebSocket Connection", func(t *testing.T) {
		dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
		headers := http.Header{}
		headers.Set("Origin", serverURL)

		conn, resp, err := dialer.Dial(wsURL, headers)
		if err != nil {
			t.Fatalf("Failed to connect to WebSocket: %v", err)
		}
		defer func() { _ = conn.Close() }()
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusSwitchingProtocols {
			t.Errorf("Expected status %d, got %d", http.StatusSwitchingProtocols, resp.StatusCode)
		}
	})

	t.Run("Join broadcasts online presence to room peers", func(t *testing.T) {
		first := connectClient(t, wsURL, serverURL)
		firstReader := testhelpers.NewEventReader(first)

		if err := testhelpers.JoinRoom(first, "presence-room", "alice"); err != nil {
			t.Fatalf("Failed to join room: %v", err)
		}
		time.Sleep(100 * time.Millisecond)

		second := connectClient(t, wsURL, serverURL)
		secondReader := testhelpers.NewEventReader(second)
		if err := testhelpers.JoinRoom(second, "presence-room", "bob"); err != nil {
			t.Fatalf("Failed to join room: %v", err)
		}

		update := firstReader.NextPresenceUpdate(t, eventTimeout)
		if update.Username != "bob" || update.Status != server.StatusOnline {
			t.Errorf("Expected bob online, got %+v", update)
		}

		// The joining client receives nothing about its own join
		secondReader.ExpectNoPendingEvent(t, 300*time.Millisecond)
	})

	t.Run("Message is relayed verbatim to room peers excluding sender", func(t *testing.T) {
		sender := connectClient(t, wsURL, serverURL)
		receiver := connectClient(t, wsURL, serverURL)
		senderReader := testhelpers.NewEventReader(sender)
		receiverReader := testhelpers.NewEventReader(receiver)

		if err := testhelpers.JoinRoom(receiver, "relay-room", "bob"); err != nil {
			t.Fatalf("Failed to join room: %v", err)
		}
		time.Sleep(100 * time.Millisecond)
		if err := testhelpers.JoinRoom(sender, "relay-room", "alice"); err != nil {
			t.Fatalf("Failed to join room: %v", err)
		}

		update := receiverReader.NextPresenceUpdate(t, eventTimeout)
		if update.Username != "alice" || update.Status != server.StatusOnline {
			t.Errorf("Expected alice online, got %+v", update)
		}

		sent := server.ChatMessage{Room: "relay-room", Author: "alice", Message: "hi", Time: "10:15:00 AM"}
		if err := testhelpers.SendChatMessage(sender, sent); err != nil {
			t.Fatalf("Failed to send message: %v", err)
		}

		received := receiverReader.NextChatMessage(t, eventTimeout)
		if received != sent {
			t.Errorf("Expected message %+v, got %+v", sent, received)
		}

		senderReader.ExpectNoPendingEvent(t, 300*time.Millisecond)
	})

	t.Run("Disconnect broadcasts offline presence", func(t *testing.T) {
		staying := connectClient(t, wsURL, serverURL)
		stayingReader := testhelpers.NewEventReader(staying)
		leaving := connectClient(t, wsURL, serverURL)

		if err := testhelpers.JoinRoom(staying, "offline-room", "bob"); err != nil {
			t.Fatalf("Failed to join room: %v", err)
		}
		time.Sleep(100 * time.Millisecond)
		if err := testhelpers.JoinRoom(leaving, "offline-room", "alice"); err != nil {
			t.Fatalf("Failed to join room: %v", err)
		}

		update := stayingReader.NextPresenceUpdate(t, eventTimeout)
		if update.Username != "alice" || update.Status != server.StatusOnline {
			t.Errorf("Expected alice online, got %+v", update)
		}

		if err := testhelpers.CloseWebSocket(leaving); err != nil {
			t.Fatalf("Failed to close connection: %v", err)
		}

		update = stayingReader.NextPresenceUpdate(t, eventTimeout)
		if update.Username != "alice" || update.Status != server.StatusOffline {
			t.Errorf("Expected alice offline, got %+v", update)
		}
	})

	t.Run("Disconnect before join produces no presence event", func(t *testing.T) {
		observer := connectClient(t, wsURL, serverURL)
		observerReader := testhelpers.NewEventReader(observer)
		if err := testhelpers.JoinRoom(observer, "silent-room", "bob"); err != nil {
			t.Fatalf("Failed to join room: %v", err)
		}
		time.Sleep(100 * time.Millisecond)

		drifter := connectClient(t, wsURL, serverURL)
		time.Sleep(100 * time.Millisecond)
		if err := testhelpers.CloseWebSocket(drifter); err != nil {
			t.Fatalf("Failed to close connection: %v", err)
		}

		observerReader.ExpectNoPendingEvent(t, 300*time.Millisecond)
	})
}

// TestRejoinSwitchesRoomWithoutOfflineEvent pins the documented gap: switching
// rooms replaces the membership but emits no offline event for the room left
// behind.
func TestRejoinSwitchesRoomWithoutOfflineEvent(t *testing.T) {
	wsURL, serverURL := startRelayServer(t)

	observer := connectClient(t, wsURL, serverURL)
	observerReader := testhelpers.NewEventReader(observer)
	switcher := connectClient(t, wsURL, serverURL)
	switcherReader := testhelpers.NewEventReader(switcher)

	if err := testhelpers.JoinRoom(observer, "rejoin-old", "bob"); err != nil {
		t.Fatalf("Failed to join room: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := testhelpers.JoinRoom(switcher, "rejoin-old", "alice"); err != nil {
		t.Fatalf("Failed to join room: %v", err)
	}

	update := observerReader.NextPresenceUpdate(t, eventTimeout)
	if update.Username != "alice" || update.Status != server.StatusOnline {
		t.Errorf("Expected alice online, got %+v", update)
	}

	// Switch rooms; the old room's member gets no offline event
	if err := testhelpers.JoinRoom(switcher, "rejoin-new", "alice"); err != nil {
		t.Fatalf("Failed to rejoin: %v", err)
	}
	observerReader.ExpectNoPendingEvent(t, 300*time.Millisecond)

	// The switcher no longer receives messages for the old room
	msg := server.ChatMessage{Room: "rejoin-old", Author: "bob", Message: "anyone there?", Time: "10:16:00 AM"}
	if err := testhelpers.SendChatMessage(observer, msg); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	switcherReader.ExpectNoPendingEvent(t, 300*time.Millisecond)
}

// TestUnknownRoomMessageIsSilentlyDropped verifies that sending to a room with
// no members is a no-op rather than an error.
func TestUnknownRoomMessageIsSilentlyDropped(t *testing.T) {
	wsURL, serverURL := startRelayServer(t)

	sender := connectClient(t, wsURL, serverURL)
	senderReader := testhelpers.NewEventReader(sender)
	if err := testhelpers.JoinRoom(sender, "drop-room", "alice"); err != nil {
		t.Fatalf("Failed to join room: %v", err)
	}

	msg := server.ChatMessage{Room: "ghost-room", Author: "alice", Message: "hello?", Time: "10:17:00 AM"}
	if err := testhelpers.SendChatMessage(sender, msg); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}

	senderReader.ExpectNoPendingEvent(t, 300*time.Millisecond)
}
