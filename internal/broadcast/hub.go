package broadcast

import (
	"encoding/json"
	"sync"
)

// Event types pushed to subscribers.
const (
	EventLobbyUpdate    = "lobby_update"
	EventInterestUpdate = "interest_update"
	EventGameStart      = "game_start"
)

// Event is one push frame. RoomClass is empty for events addressed to every subscriber.
type Event struct {
	Type      string          `json:"type"`
	RoomClass string          `json:"roomClass,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEvent marshals payload into an Event.
func NewEvent(eventType, roomClass string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, RoomClass: roomClass, Payload: raw}, nil
}

// Client is the outbound queue of one subscriber.
type Client chan []byte

const clientBuffer = 16

// Hub fans encoded events out to the subscribers on this node.
type Hub struct {
	rooms map[string]map[Client]bool
	mu    sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[Client]bool)}
}

// Subscribe registers a new client for roomClass.
func (h *Hub) Subscribe(roomClass string) Client {
	c := make(Client, clientBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomClass]; !ok {
		h.rooms[roomClass] = make(map[Client]bool)
	}
	h.rooms[roomClass][c] = true
	return c
}

// Unsubscribe removes the client and closes its channel.
func (h *Hub) Unsubscribe(roomClass string, c Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[roomClass]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	close(c)
	if len(clients) == 0 {
		delete(h.rooms, roomClass)
	}
}

// Subscribers counts the clients of roomClass.
func (h *Hub) Subscribers(roomClass string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomClass])
}

// Deliver routes an encoded event to the clients it addresses.
// Slow clients drop the frame rather than block the hub.
func (h *Hub) Deliver(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	if ev.RoomClass != "" {
		for c := range h.rooms[ev.RoomClass] {
			send(c, msg)
		}
		return
	}
	for _, clients := range h.rooms {
		for c := range clients {
			send(c, msg)
		}
	}
}

func send(c Client, msg []byte) {
	select {
	case c <- msg:
	default:
	}
}
