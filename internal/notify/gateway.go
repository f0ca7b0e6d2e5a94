package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/claims-service/internal/auth"
	"github.com/Dan9191/claims-service/internal/models"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

// Authenticator resolves a bearer token to a user
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// Gateway serves the websocket endpoint and forwards bus events to sockets
type Gateway struct {
	bus      Bus
	auth     Authenticator
	upgrader websocket.Upgrader
	log      *logrus.Logger

	mu    sync.Mutex
	conns map[string]*models.User
}

// NewGateway creates a websocket gateway. allowedOrigins follows the CORS
// list: "*" accepts any origin, requests without an Origin are accepted.
func NewGateway(bus Bus, authn Authenticator, allowedOrigins []string, log *logrus.Logger) *Gateway {
	g := &Gateway{
		bus:   bus,
		auth:  authn,
		log:   log,
		conns: make(map[string]*models.User),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
	return g
}

// Connections returns the number of open sockets
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// ServeHTTP authenticates the caller and upgrades the connection
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := g.auth.Authenticate(r.Context(), auth.TokenFromRequest(r, true))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "Authentication required"})
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warnf("Error upgrading connection: %v", err)
		return
	}

	go g.handleConnection(conn, user)
}

func (g *Gateway) handleConnection(conn *websocket.Conn, user *models.User) {
	connID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	logger := g.log.WithFields(logrus.Fields{"conn_id": connID, "user_id": user.ID})

	g.mu.Lock()
	g.conns[connID] = user
	g.mu.Unlock()

	defer func() {
		cancel()
		g.mu.Lock()
		delete(g.conns, connID)
		g.mu.Unlock()
		conn.Close()
		logger.Debug("Socket disconnected")
	}()

	broadcast, err := g.bus.Subscribe(ctx, TopicClaims)
	if err != nil {
		logger.Errorf("Failed to subscribe socket: %v", err)
		return
	}
	defer broadcast.Close()

	direct, err := g.bus.Subscribe(ctx, UserTopic(user.ID))
	if err != nil {
		logger.Errorf("Failed to subscribe socket: %v", err)
		return
	}
	defer direct.Close()

	logger.Debug("Socket connected")
	go g.readLoop(conn, cancel)

	welcome := models.Event{
		Type:      models.EventWelcome,
		UserID:    user.ID,
		Data:      map[string]string{"connectionId": connID, "message": "Connected to claims notifications"},
		Timestamp: time.Now().UTC(),
	}
	if err := g.write(conn, welcome); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-broadcast.Events():
			if !ok {
				return
			}
			if !visibleTo(ev, user) {
				continue
			}
			if err := g.write(conn, ev); err != nil {
				return
			}
		case ev, ok := <-direct.Events():
			if !ok {
				return
			}
			if err := g.write(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes client frames so control messages are processed, and
// cancels the connection on the first read error
func (g *Gateway) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Debugf("Error reading websocket message: %v", err)
			}
			return
		}
	}
}

func (g *Gateway) write(conn *websocket.Conn, ev models.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}

// visibleTo limits patients to events about their own claims. Insurers see
// every broadcast, and broadcasts without an owner reach everyone.
func visibleTo(ev models.Event, user *models.User) bool {
	if user.Role == models.RoleInsurer || ev.UserID == "" {
		return true
	}
	return ev.UserID == user.ID
}
