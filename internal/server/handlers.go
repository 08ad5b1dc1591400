// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler handles WebSocket upgrade requests and manages client connections.
// It validates that the request uses the GET method, upgrades the HTTP connection
// to WebSocket, creates a new Client with a fresh connection identity, and hands
// it to the hub, which launches the read/write pumps.
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, hub, r.RemoteAddr)

	// Register the client with the hub; the hub will launch the pump goroutines.
	client.hub.register <- client
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "RelayChat server is running!")
}

// TestPageHandler serves an HTML test page for exercising the relay.
// It provides a minimal chat view: join a room with a username, exchange
// messages with local echo, and watch presence updates for room peers.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>RelayChat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            width: 420px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            float: left;
        }
        #users {
            border: 1px solid #ccc;
            height: 300px;
            width: 160px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px;
            float: left;
        }
        input[type="text"] {
            width: 200px;
            padding: 5px;
            margin-right: 10px;
        }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status {
            margin: 10px 0;
            padding: 5px;
            border-radius: 3px;
        }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        .online { color: green; }
        .offline { color: gray; }
        .controls { clear: both; }
    </style>
</head>
<body>
    <h1>RelayChat Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="usernameInput" placeholder="Username...">
        <input type="text" id="roomInput" placeholder="Room...">
        <button id="joinButton" onclick="joinRoom()" disabled>Join Room</button>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>

    <div id="messages"></div>
    <div id="users"><h3>Online Users</h3></div>

    <div class="controls">
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <script>
        let ws = null;
        let room = '';
        let username = '';
        const presence = {};
        const messagesDiv = document.getElementById('messages');
        const usersDiv = document.getElementById('users');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const joinButton = document.getElementById('joinButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addMessage(msg, own) {
            const el = document.createElement('div');
            el.style.margin = '5px 0';
            el.style.color = own ? 'blue' : 'green';
            el.innerHTML = '<strong>' + msg.author + ':</strong> ' + msg.message +
                ' <span style="color: gray; font-size: smaller;">' + msg.time + '</span>';
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function addInfo(text) {
            const el = document.createElement('div');
            el.style.color = 'gray';
            el.innerHTML = '<em>' + text + '</em>';
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function renderPresence() {
            usersDiv.innerHTML = '<h3>Online Users</h3>';
            for (const [user, status] of Object.entries(presence)) {
                const el = document.createElement('p');
                el.className = status;
                el.textContent = user + ' - ' + status;
                usersDiv.appendChild(el);
            }
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = connected ? 'status connected' : 'status disconnected';
            joinButton.disabled = !connected;
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            ws = new WebSocket('ws://' + window.location.host + '/ws');

            ws.onopen = function() {
                addInfo('Connected to RelayChat server');
                updateStatus(true);
            };

            ws.onmessage = function(event) {
                // Queued envelopes may arrive coalesced, separated by newlines.
                for (const part of event.data.split('\n')) {
                    if (!part) continue;
                    const frame = JSON.parse(part);
                    if (frame.event === 'receive_message') {
                        addMessage(frame.data, false);
                    } else if (frame.event === 'user_status') {
                        presence[frame.data.username] = frame.data.status;
                        renderPresence();
                    }
                }
            };

            ws.onclose = function() {
                addInfo('Connection closed');
                updateStatus(false);
                ws = null;
            };

            ws.onerror = function(error) {
                addInfo('Connection error: ' + error);
                updateStatus(false);
            };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function joinRoom() {
            const u = document.getElementById('usernameInput').value.trim();
            const r = document.getElementById('roomInput').value.trim();
            if (u === '' || r === '' || !ws || ws.readyState !== WebSocket.OPEN) {
                return;
            }
            username = u;
            room = r;
            ws.send(JSON.stringify({event: 'join_room', data: {room: room, username: username}}));
            addInfo('Joined room ' + room + ' as ' + username);
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            if (!text || !ws || ws.readyState !== WebSocket.OPEN) {
                return;
            }
            const msg = {
                room: room,
                author: username,
                message: text,
                time: new Date().toLocaleTimeString()
            };
            addMessage(msg, true); // local echo; the server never sends our message back
            ws.send(JSON.stringify({event: 'send_message', data: msg}));
            messageInput.value = '';
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}
