package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"parking-access-backend/internal/notification"
)

// Message types sent to dashboards.
const (
	TypeConnectionAck = "CONNECTION_ACK"
	TypeNewEntry      = "NEW_ENTRY"
	TypeNewExit       = "NEW_EXIT"
	TypeNewAlert      = "NEW_ALERT"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// Message is the envelope of every websocket frame.
type Message struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Message string        `json:"message,omitempty"`
	Payload *EventPayload `json:"payload,omitempty"`
}

// EventPayload describes the domain event behind a message.
type EventPayload struct {
	PlateNumber   string `json:"plateNumber,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
	AlertType     string `json:"alertType,omitempty"`
	Message       string `json:"message,omitempty"`
	Time          string `json:"time"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans domain events out to connected dashboards.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	count      chan chan int
	started    chan struct{}
	startOnce  sync.Once
	done       chan struct{}
	log        *zap.Logger
}

// NewHub creates a hub; Run must be started before clients connect.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		count:      make(chan chan int),
		started:    make(chan struct{}),
		done:       make(chan struct{}),
		log:        logger.Named("live"),
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.startOnce.Do(func() { close(h.started) })
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.log.Debug("dashboard connected", zap.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.log.Debug("dashboard disconnected", zap.Int("clients", len(h.clients)))

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Too slow to keep up; drop the client.
					delete(h.clients, c)
					close(c.send)
				}
			}

		case reply := <-h.count:
			reply <- len(h.clients)

		case <-ctx.Done():
			close(h.done)
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		}
	}
}

// Clients returns the number of connected dashboards. It is 0 before Run
// starts and after it stops.
func (h *Hub) Clients() int {
	select {
	case <-h.started:
	default:
		return 0
	}
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

func (h *Hub) Name() string { return "live" }

// Deliver broadcasts an event. It never waits for slow clients.
func (h *Hub) Deliver(_ context.Context, e notification.Event) error {
	msg, ok := messageFor(e)
	if !ok {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal live message: %w", err)
	}

	select {
	case h.broadcast <- data:
		return nil
	default:
		return fmt.Errorf("broadcast channel is full, dropping %s", msg.Type)
	}
}

func messageFor(e notification.Event) (Message, bool) {
	payload := &EventPayload{
		PlateNumber: e.Plate,
		Time:        e.At.UTC().Format(time.RFC3339),
	}
	msg := Message{ID: uuid.NewString(), Payload: payload}

	switch e.Kind {
	case notification.KindEntry:
		msg.Type = TypeNewEntry
	case notification.KindExit:
		// Unpaid attempts reach dashboards through their alert.
		if e.ExitStatus != notification.ExitPaid {
			return Message{}, false
		}
		msg.Type = TypeNewExit
		payload.PaymentStatus = string(e.ExitStatus)
	case notification.KindAlert:
		msg.Type = TypeNewAlert
		payload.AlertType = string(e.AlertType)
		payload.Message = e.Message
	default:
		return Message{}, false
	}
	return msg, true
}

// ServeWS upgrades the request and streams messages until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ack, _ := json.Marshal(Message{
		ID:      uuid.NewString(),
		Type:    TypeConnectionAck,
		Message: "Successfully connected to WebSocket server!",
	})
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
		conn.Close()
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
}

// readPump only watches for the close; dashboards never send anything we use.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}
