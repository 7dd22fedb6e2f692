package socket

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"appsync/pkg/events"
	"appsync/pkg/logger"
	"appsync/pkg/timex"
)

const queueSize = 1024

// Message is the envelope written to every websocket client.
type Message struct {
	Event   events.Kind     `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type ConnectedPayload struct {
	UserID    int64  `json:"user_id"`
	SessionID string `json:"session_id"`
	Room      string `json:"room"`
	Timestamp string `json:"timestamp"`
}

type outbound struct {
	room   string
	origin string
	data   []byte
}

// Hub fans change events out to the sessions of one owner. Rooms are only
// mutated by the Run goroutine.
type Hub struct {
	Rooms      map[string]map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	queue      chan outbound
	done       chan struct{}
	mu         sync.Mutex
}

var _ events.Publisher = (*Hub)(nil)

func NewHub() *Hub {
	return newHub(queueSize)
}

func newHub(size int) *Hub {
	return &Hub{
		Rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		queue:      make(chan outbound, size),
		done:       make(chan struct{}),
	}
}

func RoomName(ownerID int64) string {
	return "owner_" + strconv.FormatInt(ownerID, 10)
}

func encode(kind events.Kind, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Event: kind, Payload: raw})
}

// Publish queues an event for ownerID's room and returns immediately. When the
// queue is full the event is dropped.
func (h *Hub) Publish(ownerID int64, kind events.Kind, payload any, originSession string) {
	data, err := encode(kind, payload)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s event: %v", kind, err)
		return
	}
	room := RoomName(ownerID)
	select {
	case h.queue <- outbound{room: room, origin: originSession, data: data}:
	default:
		logger.Sugar.Warnf("Event queue full, dropping %s for %s", kind, room)
	}
}

// Run drains the register, unregister and event queues until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil

		case client := <-h.Register:
			h.add(client)

		case client := <-h.Unregister:
			h.remove(client)

		case msg := <-h.queue:
			h.deliver(msg)
		}
	}
}

func (h *Hub) add(client *Client) {
	room := RoomName(client.OwnerID)
	h.mu.Lock()
	if h.Rooms[room] == nil {
		h.Rooms[room] = make(map[*Client]bool)
	}
	h.Rooms[room][client] = true
	h.mu.Unlock()

	logger.Sugar.Infof("Client %s joined %s", client.SessionID, room)
	data, err := encode(events.Connected, ConnectedPayload{
		UserID:    client.OwnerID,
		SessionID: client.SessionID,
		Room:      room,
		Timestamp: timex.Format(timex.Now()),
	})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling connected event: %v", err)
		return
	}
	select {
	case client.Send <- data:
	default:
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	room := RoomName(client.OwnerID)
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.Rooms[room][client]; !ok {
		return
	}
	delete(h.Rooms[room], client)
	close(client.Send)
	if len(h.Rooms[room]) == 0 {
		delete(h.Rooms, room)
		logger.Sugar.Infof("Closed empty room: %s", room)
	}
}

func (h *Hub) deliver(msg outbound) {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.Rooms[msg.room]))
	for client := range h.Rooms[msg.room] {
		if msg.origin == "" || client.SessionID != msg.origin {
			targets = append(targets, client)
		}
	}
	h.mu.Unlock()

	for _, client := range targets {
		select {
		case client.Send <- msg.data:
		default:
			// Lagging client; drop it rather than stall the room.
			logger.Sugar.Warnf("Client %s's send buffer is full. Unregistering.", client.SessionID)
			h.remove(client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	var all []*Client
	for _, clients := range h.Rooms {
		for client := range clients {
			all = append(all, client)
		}
	}
	h.mu.Unlock()
	for _, client := range all {
		h.remove(client)
	}
}

// RoomSize reports how many clients are connected to ownerID's room.
func (h *Hub) RoomSize(ownerID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Rooms[RoomName(ownerID)])
}
