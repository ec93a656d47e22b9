package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foodloop/foodloop/internal/models"
	jwtutil "github.com/foodloop/foodloop/pkg/jwt"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// dialStream connects a WebSocket client to the stream endpoint and
// waits until the hub has registered it.
func dialStream(t *testing.T, hub *NotificationHub, srv *httptest.Server, userID primitive.ObjectID) *websocket.Conn {
	t.Helper()

	token, err := jwtutil.GenerateToken(userID.Hex(), "stream@example.com", models.RoleRecipient, testJWTSecret, 1)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[userID.Hex()]
		return ok
	}, time.Second, 10*time.Millisecond, "hub never registered the connection")

	return conn
}

func TestStreamHandlerRejectsBadToken(t *testing.T) {
	hub := NewNotificationHub()
	handler := NewWSNotificationHandler(hub, testJWTSecret)
	srv := httptest.NewServer(http.HandlerFunc(handler.StreamHandler))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "?token=garbage")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHubPushDeliversNotification(t *testing.T) {
	hub := NewNotificationHub()
	handler := NewWSNotificationHandler(hub, testJWTSecret)
	srv := httptest.NewServer(http.HandlerFunc(handler.StreamHandler))
	defer srv.Close()

	userID := primitive.NewObjectID()
	conn := dialStream(t, hub, srv, userID)
	defer conn.Close()

	donationID := primitive.NewObjectID()
	hub.Push(userID.Hex(), &models.Notification{
		ID:         primitive.NewObjectID(),
		UserID:     userID,
		Type:       models.NotifDonationClaimed,
		Title:      "Donation Claimed",
		DonationID: &donationID,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.Notification
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, models.NotifDonationClaimed, got.Type)
	assert.Equal(t, userID, got.UserID)

	// Pushing to a user with no connection is a no-op.
	hub.Push(primitive.NewObjectID().Hex(), &models.Notification{Type: models.NotifSystem})
}

func TestHubPushConcurrentWriters(t *testing.T) {
	hub := NewNotificationHub()
	handler := NewWSNotificationHandler(hub, testJWTSecret)
	srv := httptest.NewServer(http.HandlerFunc(handler.StreamHandler))
	defer srv.Close()

	userID := primitive.NewObjectID()
	conn := dialStream(t, hub, srv, userID)
	defer conn.Close()

	// Drain on the client side so the server's write buffer never fills.
	const pushes = 50
	received := make(chan struct{}, pushes)
	go func() {
		for {
			var n models.Notification
			if err := conn.ReadJSON(&n); err != nil {
				return
			}
			received <- struct{}{}
		}
	}()

	// Many lifecycle events can target one user at once; writes on the
	// shared connection must come out serialized and intact.
	var wg sync.WaitGroup
	for i := 0; i < pushes; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hub.Push(userID.Hex(), &models.Notification{
				ID:      primitive.NewObjectID(),
				UserID:  userID,
				Type:    models.NotifSystem,
				Title:   fmt.Sprintf("event %d", i),
				Message: "concurrent delivery",
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < pushes; i++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatalf("received only %d of %d pushed notifications", i, pushes)
		}
	}
}

func TestHubReplacesOldConnection(t *testing.T) {
	hub := NewNotificationHub()
	handler := NewWSNotificationHandler(hub, testJWTSecret)
	srv := httptest.NewServer(http.HandlerFunc(handler.StreamHandler))
	defer srv.Close()

	userID := primitive.NewObjectID()
	first := dialStream(t, hub, srv, userID)
	defer first.Close()

	hub.mu.Lock()
	oldClient := hub.clients[userID.Hex()]
	hub.mu.Unlock()

	second := dialStream(t, hub, srv, userID)
	defer second.Close()

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return hub.clients[userID.Hex()] != oldClient
	}, time.Second, 10*time.Millisecond, "hub never swapped to the new connection")

	hub.Push(userID.Hex(), &models.Notification{
		ID:     primitive.NewObjectID(),
		UserID: userID,
		Type:   models.NotifSystem,
		Title:  "after reconnect",
	})

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.Notification
	require.NoError(t, second.ReadJSON(&got))
	assert.Equal(t, "after reconnect", got.Title)
}
