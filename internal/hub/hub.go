package hub

import (
	"encoding/json"
	"sync"

	"github.com/weiawesome/flow-market/pkg/log"
)

// Hub is the connection registry of one process: every live client and,
// per room, the clients that joined it.
type Hub struct {
	clients    map[string]*Client            // clientID -> client
	rooms      map[string]map[string]*Client // room -> clientID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *RoomMessage
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

// RoomMessage is an encoded frame addressed to one room.
type RoomMessage struct {
	Room    string
	Message []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *RoomMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	l := log.L()
	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			l.Debug().Str(log.FieldConnID, client.ID).Int("clients", h.ClientCount()).Msg("client registered")

		case client := <-h.unregister:
			rooms := h.Rooms(client)
			h.remove(client)
			l.Debug().Str(log.FieldConnID, client.ID).Strs("rooms", rooms).Int("clients", h.ClientCount()).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Stop ends Run and closes every client's send channel.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Join adds client to room's broadcast group. Joining twice is a no-op.
// It reports false when the client has already disconnected.
func (h *Hub) Join(client *Client, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.closed {
		return false
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[client.ID] = client
	client.rooms[room] = struct{}{}
	return true
}

// Leave removes client from room's broadcast group.
func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, room)
}

func (h *Hub) leaveLocked(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

// BroadcastToRoom encodes message as JSON and queues it for every member of room.
func (h *Hub) BroadcastToRoom(room string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	h.BroadcastRawToRoom(room, data)
	return nil
}

// BroadcastRawToRoom queues an already encoded frame for every member of room.
func (h *Hub) BroadcastRawToRoom(room string, data []byte) {
	select {
	case h.broadcast <- &RoomMessage{Room: room, Message: data}:
	case <-h.done:
	}
}

// RoomSize returns the number of local clients in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Rooms returns the rooms client has joined.
func (h *Hub) Rooms(client *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]string, 0, len(client.rooms))
	for room := range client.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (h *Hub) deliver(msg *RoomMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.rooms[msg.Room] {
		select {
		case client.Send <- msg.Message:
		default:
			// Send buffer full: drop the connection rather than block the room.
			go h.Unregister(client)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.closed {
		return
	}
	for room := range client.rooms {
		h.leaveLocked(client, room)
	}
	delete(h.clients, client.ID)
	client.closed = true
	close(client.Send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		if !client.closed {
			client.closed = true
			close(client.Send)
		}
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]*Client)
}
