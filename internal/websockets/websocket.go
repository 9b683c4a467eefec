package websockets

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tabletally/config"
	"tabletally/internal/events"
	"tabletally/internal/logger"
	"tabletally/internal/repositories"

	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	statusUnauthenticated = iota
	statusAuthenticated
)

const (
	authDeadline  = 10 * time.Second
	writeDeadline = 10 * time.Second
	sendBuffer    = 32
)

// Manager streams sync and submission events to connected clients. A client
// must authenticate with its API token inside authDeadline; until then it
// receives nothing. Events carrying a user id go only to that user's
// connections, the rest broadcast.
type Manager struct {
	clients  map[string]*client
	mu       sync.RWMutex
	config   config.Config
	userRepo repositories.UserRepository
	log      logger.Logger
}

type client struct {
	id     string
	userID uuid.UUID
	status int
	conn   *websocket.Conn
	send   chan events.Event
}

type clientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

func New(
	eventBus *events.EventBus,
	config config.Config,
	userRepo repositories.UserRepository,
) (*Manager, error) {
	m := &Manager{
		clients:  make(map[string]*client),
		config:   config,
		userRepo: userRepo,
		log:      logger.New("websockets"),
	}

	for _, channel := range []events.Channel{events.SYNC_CHANNEL, events.SUBMIT_CHANNEL} {
		if err := eventBus.Subscribe(channel, m.dispatch); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// dispatch routes an event bus message to the matching connections
func (m *Manager) dispatch(event events.Event) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.clients {
		if c.status != statusAuthenticated {
			continue
		}
		if event.UserID != nil && *event.UserID != c.userID {
			continue
		}
		select {
		case c.send <- event:
		default:
			m.log.Warn("Dropping event for slow client", "clientID", c.id, "eventID", event.ID)
		}
	}

	return nil
}

// HandleWebSocket owns one connection for its lifetime. The read loop
// handles auth and pings; a separate goroutine drains the send channel.
func (m *Manager) HandleWebSocket(conn *websocket.Conn) {
	log := m.log.Function("HandleWebSocket")

	c := &client{
		id:     uuid.New().String(),
		status: statusUnauthenticated,
		conn:   conn,
		send:   make(chan events.Event, sendBuffer),
	}

	m.register(c)
	defer m.unregister(c)

	done := make(chan struct{})
	go m.writeLoop(c, done)
	defer close(done)

	_ = conn.SetReadDeadline(time.Now().Add(authDeadline))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn("Ignoring malformed client message", "clientID", c.id)
			continue
		}

		switch msg.Type {
		case "auth":
			if err := m.authenticate(c, msg.Token); err != nil {
				log.Warn("Client authentication failed", "clientID", c.id, "error", err)
				return
			}
			_ = conn.SetReadDeadline(time.Time{})
			log.Info("Client authenticated", "clientID", c.id, "userID", c.userID)
		case "ping":
			// Keepalive only
		default:
			log.Warn("Unknown client message type", "clientID", c.id, "type", msg.Type)
		}
	}
}

func (m *Manager) writeLoop(c *client, done <-chan struct{}) {
	for {
		select {
		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// authenticate validates the client's bearer token and binds the connection
// to the token's user
func (m *Manager) authenticate(c *client, tokenString string) error {
	log := m.log.Function("authenticate")

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(m.config.AuthTokenSecret), nil
	})
	if err != nil || !token.Valid {
		return log.Err("invalid token", err, "clientID", c.id)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return log.Err("token has no subject", err, "clientID", c.id)
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		return log.Err("token subject is not a user id", err, "clientID", c.id)
	}

	user, err := m.userRepo.GetByID(context.Background(), userID)
	if err != nil || user == nil {
		return log.ErrMsg("user not found")
	}

	m.mu.Lock()
	c.userID = user.ID
	c.status = statusAuthenticated
	m.mu.Unlock()

	return nil
}

func (m *Manager) register(c *client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.id] = c
}

func (m *Manager) unregister(c *client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, c.id)
}

// ClientCount reports the number of open connections
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}
