package handlers

import (
	"net/http"
	"sync"

	"github.com/foodloop/foodloop/internal/models"
	jwtutil "github.com/foodloop/foodloop/pkg/jwt"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hubClient pairs a connection with its write mutex. gorilla/websocket
// allows at most one concurrent writer per connection, so every write
// goes through writeMu.
type hubClient struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

// NotificationHub tracks the live WebSocket connection of each user and
// pushes freshly created notifications to it. One connection per user;
// a newer connection replaces the previous one.
type NotificationHub struct {
	mu      sync.Mutex
	clients map[string]*hubClient
}

func NewNotificationHub() *NotificationHub {
	return &NotificationHub{
		clients: make(map[string]*hubClient),
	}
}

// Push implements the realtime pusher hook of the notification
// service. Delivery is best effort; the stored feed is authoritative.
func (h *NotificationHub) Push(userID string, notif *models.Notification) {
	h.mu.Lock()
	client, ok := h.clients[userID]
	h.mu.Unlock()
	if !ok {
		return
	}

	client.writeMu.Lock()
	err := client.conn.WriteJSON(notif)
	client.writeMu.Unlock()
	if err != nil {
		logrus.WithError(err).WithField("userID", userID).Warn("WebSocket push failed")
		h.remove(userID, client.conn)
	}
}

func (h *NotificationHub) add(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	if old, ok := h.clients[userID]; ok {
		old.conn.Close()
	}
	h.clients[userID] = &hubClient{conn: conn}
	h.mu.Unlock()
}

func (h *NotificationHub) remove(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	if client, ok := h.clients[userID]; ok && client.conn == conn {
		delete(h.clients, userID)
	}
	h.mu.Unlock()
	conn.Close()
}

// WSNotificationHandler serves GET /ws/notifications?token=, a one-way
// stream of the caller's notifications.
type WSNotificationHandler struct {
	Hub       *NotificationHub
	JWTSecret string
}

func NewWSNotificationHandler(hub *NotificationHub, jwtSecret string) *WSNotificationHandler {
	return &WSNotificationHandler{Hub: hub, JWTSecret: jwtSecret}
}

func (h *WSNotificationHandler) StreamHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}
	claims, err := jwtutil.ValidateToken(token, h.JWTSecret)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket auth failed")
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	userID := claims.UserID
	h.Hub.add(userID, conn)
	logrus.WithField("userID", userID).Info("Notification stream connected")

	defer func() {
		h.Hub.remove(userID, conn)
		logrus.WithField("userID", userID).Info("Notification stream disconnected")
	}()

	// The stream is one-way; reads only detect the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
