package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MsgUploadStatus  MessageType = "upload_status"
	MsgPingCompleted MessageType = "ping_completed"
	MsgError         MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans session events out to the participant's open connections.
// A participant may be connected from several devices.
type Hub struct {
	conns map[string]map[*Connection]struct{} // username -> connections

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
	disconnect chan string
	done       chan struct{}
	closeOnce  sync.Once

	log *zap.Logger
}

// Connection represents a WebSocket connection
type Connection struct {
	Username string
	Send     chan []byte
	Hub      *Hub
}

// BroadcastMessage is a message for every connection of one participant
type BroadcastMessage struct {
	Username string
	Message  *Message
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		conns:      make(map[string]map[*Connection]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
		disconnect: make(chan string),
		done:       make(chan struct{}),
		log:        logger,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.Username] == nil {
				h.conns[conn.Username] = make(map[*Connection]struct{})
			}
			h.conns[conn.Username][conn] = struct{}{}
			h.mu.Unlock()
			h.log.Info("Participant connected", zap.String("username", conn.Username))

		case conn := <-h.unregister:
			h.mu.Lock()
			if h.remove(conn) {
				h.log.Info("Participant disconnected", zap.String("username", conn.Username))
			}
			h.mu.Unlock()

		case username := <-h.disconnect:
			h.mu.Lock()
			for conn := range h.conns[username] {
				h.remove(conn)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg.Message)
			if err != nil {
				h.log.Error("Failed to encode message", zap.Error(err))
				continue
			}
			h.mu.RLock()
			for conn := range h.conns[msg.Username] {
				select {
				case conn.Send <- data:
				default:
					// Drop message if buffer full
				}
			}
			h.mu.RUnlock()

		case <-h.done:
			h.mu.Lock()
			for _, conns := range h.conns {
				for conn := range conns {
					h.remove(conn)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// remove drops conn and closes its send channel. Callers hold h.mu.
func (h *Hub) remove(conn *Connection) bool {
	conns, ok := h.conns[conn.Username]
	if !ok {
		return false
	}
	if _, ok := conns[conn]; !ok {
		return false
	}
	delete(conns, conn)
	close(conn.Send)
	if len(conns) == 0 {
		delete(h.conns, conn.Username)
	}
	return true
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.Send)
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Connected reports how many connections username has open.
func (h *Hub) Connected(username string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[username])
}

// SendToUser sends a message to every connection of a participant (implements service.Broadcaster)
func (h *Hub) SendToUser(username, msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("Failed to encode payload", zap.String("type", msgType), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- &BroadcastMessage{
		Username: username,
		Message:  &Message{Type: MessageType(msgType), Payload: data},
	}:
	case <-h.done:
	}
}

// DisconnectUser closes every connection of a participant (implements service.Broadcaster)
func (h *Hub) DisconnectUser(username string) {
	select {
	case h.disconnect <- username:
	case <-h.done:
	}
}

// Close disconnects everyone and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
