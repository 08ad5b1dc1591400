// Package server coordinates client registration, event routing, and
// connection cleanup for the RelayChat WebSocket relay via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Hub manages all WebSocket client connections and drives the relay core.
// Client registration/unregistration and inbound frames are funneled through
// channels into a single event loop, so the relay state needs no locking;
// the client map is additionally mutex-protected for shutdown and send paths.
type Hub struct {
	clients    map[ConnID]*Client
	relay      *Relay
	inbound    chan Frame
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates and initializes a new Hub instance with all necessary
// channels, an empty relay, and the client map. The returned Hub is ready to
// manage WebSocket connections once Run is started.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[ConnID]*Client),
		relay:      NewRelay(),
		inbound:    make(chan Frame),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// GetInboundChan returns the channel used for submitting inbound event frames.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetInboundChan() chan<- Frame {
	return h.inbound
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send operation to prevent race conditions
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	// Check if client is still registered and not closed
	registered, exists := h.clients[client.id]
	if !exists || registered != client || client.closed {
		return false
	}

	// Try to send the message (channel might be closed, so we need to recover from panic)
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, and inbound event routing. This method should be called in
// a separate goroutine as it runs indefinitely.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client.id] = client
			clientCount := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Client %s registered from %s. Total clients: %d", client.id, client.addr, clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.handleUnregister(client)

		case frame := <-h.inbound:
			h.handleFrame(frame)
		}
	}
}

var hub = NewHub()

// handleUnregister tears down a departing client: the relay emits offline
// presence for its room before the membership record is dropped, then the
// client is removed and its send channel closed.
func (h *Hub) handleUnregister(client *Client) {
	if client == nil {
		return
	}

	h.deliver(h.relay.Disconnect(client.id))

	h.mutex.Lock()
	if registered, ok := h.clients[client.id]; ok && registered == client {
		delete(h.clients, client.id)
		client.closed = true
		clientCount := len(h.clients)
		h.mutex.Unlock()
		// Close the channel after releasing the lock
		close(client.send)
		log.Printf("Client %s unregistered from %s. Total clients: %d", client.id, client.addr, clientCount)
	} else {
		h.mutex.Unlock()
	}
}

// handleFrame decodes an inbound event by name and routes it through the
// relay. Unknown event names are logged and dropped; no error is surfaced to
// the sender.
func (h *Hub) handleFrame(frame Frame) {
	if frame.Sender == nil {
		log.Printf("Received frame without sender; skipping")
		return
	}

	switch frame.Event.Name {
	case EventJoinRoom:
		var req JoinRequest
		if !decodePayload(frame, &req) {
			return
		}
		log.Printf("Client %s joined room %q as %q", frame.Sender.id, req.Room, req.Username)
		h.deliver(h.relay.Join(frame.Sender.id, req))

	case EventSendMessage:
		var msg ChatMessage
		if !decodePayload(frame, &msg) {
			return
		}
		h.deliver(h.relay.Forward(frame.Sender.id, msg))

	default:
		log.Printf("Ignoring unknown event %q from %s", frame.Event.Name, frame.Sender.addr)
	}
}

// decodePayload fills the typed payload from the frame's raw data. An absent
// data field yields a zero-value payload; fields are never validated beyond
// JSON syntax.
func decodePayload(frame Frame, payload any) bool {
	if len(frame.Event.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(frame.Event.Data, payload); err != nil {
		log.Printf("Invalid %s payload from %s: %v", frame.Event.Name, frame.Sender.addr, err)
		return false
	}
	return true
}

// deliver marshals each delivery into the wire envelope and sends it to its
// target. Clients that fail to accept a send are removed.
func (h *Hub) deliver(deliveries []Delivery) {
	if len(deliveries) == 0 {
		return
	}

	var clientsToRemove []*Client
	for _, delivery := range deliveries {
		h.mutex.RLock()
		client := h.clients[delivery.Target]
		h.mutex.RUnlock()
		if client == nil {
			continue
		}

		payload, err := json.Marshal(envelope{Name: delivery.Event, Data: delivery.Data})
		if err != nil {
			log.Printf("Error marshaling %s event for %s: %v", delivery.Event, client.addr, err)
			continue
		}

		if !h.safeSend(client, payload) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}

	h.removeFailedClients(clientsToRemove)
}

// removeFailedClients removes clients that failed to receive deliveries and
// closes their channels. Their memberships are cleaned up when the pump
// teardown reaches the unregister path.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if registered, exists := h.clients[client.id]; exists && registered == client {
			delete(h.clients, client.id)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			log.Printf("Client %s from %s removed due to full send buffer", client.id, client.addr)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients gracefully closes all active client connections
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	// Close all client connections
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	// Signal shutdown
	h.cancel()

	// Wait for Run() to complete
	<-h.done

	// Wait for all client goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
