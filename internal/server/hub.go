// Package server coordinates client registration, room membership, fan-out
// and connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/vanishchat/internal/relay"
	"github.com/samber/lo"
)

// Hub manages all WebSocket client connections and the rooms they are
// subscribed to. It is the relay's Transport: the engine addresses clients
// by room, and the hub delivers frames into each client's send buffer.
type Hub struct {
	clients    map[*Client]bool
	rooms      map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        *slog.Logger
}

var _ relay.Transport = (*Hub)(nil)

// NewHub creates and initializes a new Hub instance with all necessary
// channels and maps. The returned Hub is ready once Run is started.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
	}
}

// Register hands a client to the running hub, which launches its pumps.
// It returns false once the hub is shutting down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// unregisterClient is called by a read pump on exit. After shutdown the
// hub has already detached every client, so nothing needs to be sent.
func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of connections subscribed to room.
func (h *Hub) RoomSize(room string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[room])
}

// Subscribe adds conn to room. Unknown or unregistered connections are ignored.
func (h *Hub) Subscribe(conn relay.Conn, room string) {
	client, ok := conn.(*Client)
	if !ok {
		h.log.Error("Subscribe called with foreign connection", "remote_addr", conn.RemoteAddr())
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, registered := h.clients[client]; !registered {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[client] = struct{}{}
	client.rooms[room] = struct{}{}
}

// Send delivers frame to a single connection.
func (h *Hub) Send(conn relay.Conn, frame []byte) {
	client, ok := conn.(*Client)
	if !ok {
		h.log.Error("Send called with foreign connection", "remote_addr", conn.RemoteAddr())
		return
	}
	if !h.safeSend(client, frame) {
		h.removeFailedClients([]*Client{client})
	}
}

// BroadcastExcept delivers frame to every member of room except one.
func (h *Hub) BroadcastExcept(room string, except relay.Conn, frame []byte) {
	members := lo.Filter(h.roomSnapshot(room), func(client *Client, _ int) bool {
		return except == nil || relay.Conn(client) != except
	})
	h.fanOut(room, members, frame)
}

// Broadcast delivers frame to every member of room.
func (h *Hub) Broadcast(room string, frame []byte) {
	h.fanOut(room, h.roomSnapshot(room), frame)
}

func (h *Hub) fanOut(room string, members []*Client, frame []byte) {
	if len(members) == 0 {
		return
	}
	h.log.Debug("Broadcasting frame", "room", room, "targets", len(members))

	var failed []*Client
	for _, client := range members {
		if !h.safeSend(client, frame) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

func (h *Hub) safeSend(client *Client, message []byte) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Recovered from panic in safeSend", "panic", r)
			sent = false
		}
	}()

	// Hold the lock during the entire send so unregister cannot close the
	// channel underneath us.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// roomSnapshot returns a thread-safe snapshot of the members of room.
func (h *Hub) roomSnapshot(room string) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return lo.Keys(h.rooms[room])
}

// detachLocked removes client from the hub and all of its rooms. The caller
// holds the write lock and closes the send channel after releasing it.
func (h *Hub) detachLocked(client *Client) bool {
	if _, ok := h.clients[client]; !ok {
		return false
	}
	delete(h.clients, client)
	client.closed = true

	for room := range client.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	client.rooms = make(map[string]struct{})
	return true
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. It runs until Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.log.Info("Client registered", "remote_addr", client.addr, "clients", clientCount)

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
			h.mutex.Lock()
			removed := h.detachLocked(client)
			clientCount := len(h.clients)
			h.mutex.Unlock()
			if removed {
				close(client.send)
				h.log.Info("Client unregistered", "remote_addr", client.addr, "clients", clientCount)
			}
		}
	}
}

// removeFailedClients drops clients whose send buffer is full and closes
// their channels, which makes their write pumps hang up.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if h.detachLocked(client) {
			channelsToClose = append(channelsToClose, client.send)
			h.log.Warn("Client removed due to full send buffer", "remote_addr", client.addr)
		}
	}
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients detaches every client, closes its send channel so the
// write pump exits, and closes the underlying connection so the read pump
// exits.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections")

	h.mutex.Lock()
	clients := lo.Keys(h.clients)
	for _, client := range clients {
		h.detachLocked(client)
	}
	h.rooms = make(map[string]map[*Client]struct{})
	h.mutex.Unlock()

	for _, client := range clients {
		close(client.send)
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Warn("Error closing client connection", "remote_addr", client.addr, "error", err)
			}
		}
	}

	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines
// to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
