package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"supplychain-ledger/pkg/logger"

	"github.com/gofiber/contrib/websocket"
)

// Event is one accepted ledger transition as pushed to live subscribers.
type Event struct {
	Type          string    `json:"type"`
	ProductID     string    `json:"productId"`
	TransactionID string    `json:"transaction_id"`
	Sequence      int64     `json:"sequence"`
	Action        string    `json:"action"`
	FromUser      string    `json:"from_user"`
	ToUser        string    `json:"to_user"`
	Status        string    `json:"status"`
	Location      string    `json:"location,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Sink receives raw frames; *websocket.Conn satisfies it.
type Sink interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

const broadcastBuffer = 256

type Hub struct {
	Clients    map[Sink]bool
	Register   chan Sink
	Unregister chan Sink
	Broadcast  chan []byte
	mutex      sync.Mutex
	log        *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		Clients:    make(map[Sink]bool),
		Register:   make(chan Sink),
		Unregister: make(chan Sink),
		Broadcast:  make(chan []byte, broadcastBuffer),
		log:        log.Named("ws"),
	}
}

// Publish queues an event without blocking. When the buffer is full the event
// is dropped; subscribers can always re-read history from the ledger.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	msg, err := json.Marshal(evt)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal ledger event")
		return
	}
	select {
	case h.Broadcast <- msg:
	default:
		h.log.Warn().Str("productId", evt.ProductID).Int64("sequence", evt.Sequence).Msg("live feed full, event dropped")
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.Clients)
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for conn := range h.Clients {
				conn.Close()
				delete(h.Clients, conn)
			}
			h.mutex.Unlock()
			return

		case conn := <-h.Register:
			h.mutex.Lock()
			h.Clients[conn] = true
			h.mutex.Unlock()
			h.log.Debug().Msg("live feed subscriber connected")

		case conn := <-h.Unregister:
			h.mutex.Lock()
			if _, ok := h.Clients[conn]; ok {
				delete(h.Clients, conn)
				conn.Close()
			}
			h.mutex.Unlock()

		case message := <-h.Broadcast:
			h.mutex.Lock()
			for conn := range h.Clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					delete(h.Clients, conn)
				}
			}
			h.mutex.Unlock()
		}
	}
}
