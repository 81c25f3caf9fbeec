package gateway

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/chatconn/internal/logging"
)

var ErrClientClosed = errors.New("client connection closed")

// Client is an authenticated admin connection.
type Client struct {
	ConnID      string
	Info        ClientInfo
	AuthMethod  string
	ConnectedAt time.Time

	socket *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func NewClient(conn *websocket.Conn, info ClientInfo, authMethod string) *Client {
	return &Client{
		ConnID:      uuid.NewString(),
		Info:        info,
		AuthMethod:  authMethod,
		ConnectedAt: time.Now(),
		socket:      conn,
	}
}

// Send writes one frame. Safe for concurrent use.
func (c *Client) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return c.socket.WriteJSON(f)
}

func (c *Client) SendEvent(event string, payload any, seq int64) error {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return err
	}
	return c.Send(f)
}

func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

func (c *Client) RespondError(reqID string, shape ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, shape))
}

// ReadFrame blocks for the next frame. Only the read loop may call it.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.socket.Close()
}

// ClientRegistry tracks connected admin clients by connection id.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logging.Logger
}

func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client), log: log}
}

func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	r.clients[c.ConnID] = c
	r.mu.Unlock()
	r.log.Info().Str("conn_id", c.ConnID).Str("client", c.Info.ID).Msg("client connected")
}

func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	delete(r.clients, connID)
	r.mu.Unlock()
	r.log.Info().Str("conn_id", connID).Msg("client disconnected")
}

func (r *ClientRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	return c, ok
}

func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast sends an event to every client. Failed sends are logged.
func (r *ClientRegistry) Broadcast(event string, payload any, seq int64) {
	r.mu.RLock()
	targets := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		if err := c.SendEvent(event, payload, seq); err != nil {
			r.log.Warn().Err(err).Str("conn_id", c.ConnID).Str("event", event).Msg("broadcast send failed")
		}
	}
}

func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}
