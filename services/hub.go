package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 10 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 256
	maxChatLength  = 500
)

// Hub owns the websocket connections. Every connection becomes a User;
// commands it sends are applied to rooms on the Loop.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	mutex      sync.RWMutex
	loop       *Loop
	registry   *Registry
	logger     *zap.Logger
}

type Client struct {
	hub    *Hub
	id     string
	socket *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	user   *User
}

// Message is the envelope of every frame in both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outgoingMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type joinRoomCommand struct {
	ID string `json:"id"`
}

type messageCommand struct {
	Text string `json:"text"`
}

type answerCommand struct {
	Index int `json:"index"`
}

func NewHub(loop *Loop, registry *Registry, bus *LifecycleBus, logger *zap.Logger) *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
		loop:       loop,
		registry:   registry,
		logger:     logger,
	}
	bus.Subscribe(h.forwardLifecycle)
	return h
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Client registered", zap.String("client_id", client.id), zap.String("nickname", client.user.Nickname), zap.Int("total_clients", total))

			h.loop.Post(func() {
				client.Send(EventRoomList, h.registry.Summaries())
			})

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.once.Do(func() { close(client.done) })
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Client unregistered", zap.String("client_id", client.id), zap.String("nickname", client.user.Nickname), zap.Int("total_clients", total))

			user := client.user
			h.loop.Post(func() {
				if room := user.Room(); room != nil {
					room.Leave(user)
				}
			})
		}
	}
}

// forwardLifecycle mirrors room lifecycle events to every connection so
// the lobby view stays current.
func (h *Hub) forwardLifecycle(event LifecycleEvent) {
	var messageType string
	switch event.Kind {
	case RoomCreated:
		messageType = EventRoomCreated
	case RoomUpdated:
		messageType = EventRoomUpdated
	case RoomDeleted:
		messageType = EventRoomDeleted
	default:
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for client := range h.clients {
		client.Send(messageType, event.Room)
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// RegisterClient wraps an upgraded connection for nickname and starts its
// pumps.
func (h *Hub) RegisterClient(conn *websocket.Conn, nickname string) *Client {
	client := &Client{
		hub:    h,
		id:     uuid.NewString(),
		socket: conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
	client.user = NewUser(client.id, nickname, client)

	select {
	case h.register <- client:
	case <-h.stopped:
		conn.Close()
		return client
	}

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// Send queues one event for the connection. A connection whose buffer is
// full is dropped.
func (c *Client) Send(event string, payload any) {
	data, err := json.Marshal(outgoingMessage{Type: event, Payload: payload})
	if err != nil {
		c.hub.logger.Error("Error marshaling message", zap.String("type", event), zap.Error(err))
		return
	}

	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("Client send buffer full, closing connection", zap.String("client_id", c.id))
		c.socket.Close()
	}
}

func (c *Client) User() *User {
	return c.user
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	c.socket.SetReadLimit(maxMessageSize)
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.logger.Debug("Error unmarshaling message", zap.String("client_id", c.id), zap.Error(err))
			continue
		}

		c.hub.loop.Post(func() {
			c.handleMessage(msg)
		})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case <-c.done:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			c.socket.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage runs on the Loop.
func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case CommandPing:
		c.Send(EventPong, nil)

	case CommandJoinRoom:
		var cmd joinRoomCommand
		if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
			c.Send(EventError, "invalid join request")
			return
		}
		room, ok := c.hub.registry.Room(cmd.ID)
		if !ok {
			c.Send(EventError, "room not found")
			return
		}
		room.Join(c.user)

	case CommandLeaveRoom:
		if room := c.user.Room(); room != nil {
			room.Leave(c.user)
		}

	case CommandMessage:
		var cmd messageCommand
		if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
			return
		}
		text := strings.TrimSpace(cmd.Text)
		if text == "" {
			return
		}
		if utf8.RuneCountInString(text) > maxChatLength {
			text = string([]rune(text)[:maxChatLength])
		}
		if room, ok := c.user.Room().(interface{ BroadcastMessage(*User, string) }); ok {
			room.BroadcastMessage(c.user, text)
		}

	case CommandAnswer:
		var cmd answerCommand
		if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
			return
		}
		if room, ok := c.user.Room().(*GameRoom); ok {
			room.SubmitAnswer(c.user, cmd.Index)
		}

	default:
		c.hub.logger.Debug("Unknown message type", zap.String("type", msg.Type), zap.String("client_id", c.id))
	}
}
