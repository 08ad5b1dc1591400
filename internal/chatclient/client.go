// Package chatclient implements the browser-side channel contract in Go for
// use in tests and tooling: join a room, send messages with local echo, and
// fold presence updates into a local status map.
//
// The client holds the same view state the web UI does: current room and
// username, the message history, and a username-to-status presence map that is
// updated only by inbound user_status events. There is no presence snapshot;
// peers that were already online before this client joined stay unknown until
// a fresh join or disconnect regenerates their status.
package chatclient

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relaychat/internal/server"
)

// Client is a RelayChat channel client backed by a single WebSocket
// connection. All exported methods are safe for concurrent use.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	room     string
	username string
	history  []server.ChatMessage
	presence map[string]string
	readErr  error

	done chan struct{}
}

type outboundEvent struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Dial connects to a relay WebSocket endpoint and starts the client's read
// loop. The origin header is set when non-empty so the server's origin check
// passes.
func Dial(url, origin string) (*Client, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:     conn,
		presence: make(map[string]string),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// JoinRoom announces this client as a member of the given room. It is a no-op
// when either the room or the username is empty, mirroring the view layer's
// join guard. Joining another room replaces the previous membership.
func (c *Client) JoinRoom(room, username string) error {
	if room == "" || username == "" {
		return nil
	}

	c.mu.Lock()
	c.room = room
	c.username = username
	c.mu.Unlock()

	return c.writeEvent(server.EventJoinRoom, server.JoinRequest{Room: room, Username: username})
}

// SendMessage appends the message to the local history first (local echo) and
// then transmits it. The server excludes the sender from the broadcast, so
// this local copy is the only way the sender sees its own message.
func (c *Client) SendMessage(text string) error {
	c.mu.Lock()
	msg := server.ChatMessage{
		Room:    c.room,
		Author:  c.username,
		Message: text,
		Time:    time.Now().Format("3:04:05 PM"),
	}
	c.history = append(c.history, msg)
	c.mu.Unlock()

	return c.writeEvent(server.EventSendMessage, msg)
}

// History returns a copy of the message log: local echoes plus every
// receive_message event seen so far, in arrival order.
func (c *Client) History() []server.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]server.ChatMessage(nil), c.history...)
}

// Presence returns a copy of the username-to-status map folded from inbound
// user_status events.
func (c *Client) Presence() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[string]string, len(c.presence))
	for user, status := range c.presence {
		snapshot[user] = status
	}
	return snapshot
}

// Room returns the room this client last joined.
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Done is closed once the read loop has terminated.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ReadErr returns the error that terminated the read loop, if it has
// terminated.
func (c *Client) ReadErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// Close sends a close frame and tears down the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) writeEvent(name string, data any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(outboundEvent{Name: name, Data: data})
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}

		// The relay's write pump may coalesce queued envelopes into one
		// frame, separated by newlines.
		for _, part := range bytes.Split(raw, []byte{'\n'}) {
			if len(part) == 0 {
				continue
			}
			var event server.Event
			if err := json.Unmarshal(part, &event); err != nil {
				continue
			}
			c.applyEvent(event)
		}
	}
}

func (c *Client) applyEvent(event server.Event) {
	switch event.Name {
	case server.EventReceiveMessage:
		var msg server.ChatMessage
		if len(event.Data) > 0 {
			_ = json.Unmarshal(event.Data, &msg)
		}
		c.mu.Lock()
		c.history = append(c.history, msg)
		c.mu.Unlock()

	case server.EventUserStatus:
		var update server.PresenceUpdate
		if len(event.Data) > 0 {
			_ = json.Unmarshal(event.Data, &update)
		}
		c.mu.Lock()
		c.presence[update.Username] = update.Status
		c.mu.Unlock()
	}
}
