package controller

import (
	"io"
	"log"
	"net"
	"sync"
	"testing"
	"time"

	wsclient "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/require"

	"lexnexy/models"
)

// startHubServer runs the websocket stream on a real listener so a client
// connection can be dialed against it.
func startHubServer(t *testing.T, hub *NotificationHub, userID uint) string {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/stream", func(c *fiber.Ctx) error {
		c.Locals("userID", userID)
		return c.Next()
	}, websocket.New(hub.HandleNotificationWS))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() {
		_ = app.Shutdown()
	})

	return "ws://" + ln.Addr().String() + "/stream"
}

func TestBroadcastDeliversUnderConcurrentSenders(t *testing.T) {
	hub := NewNotificationHub(log.New(io.Discard, "", 0))
	url := startHubServer(t, hub, 7)

	conn, _, err := wsclient.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.conns[7]) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// several request goroutines fanning out to the same recipient at once;
	// the connection's write lock must keep every frame intact
	const senders = 8
	const perSender = 25

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				hub.Broadcast(7, &models.Notification{
					UserID:   7,
					Type:     models.NotificationTypeFirmAnnouncement,
					Title:    "Ping",
					Priority: models.NotificationPriorityNormal,
				})
			}
		}()
	}

	deadline := time.Now().Add(5 * time.Second)
	for received := 0; received < senders*perSender; received++ {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var got models.Notification
		require.NoError(t, conn.ReadJSON(&got))
		require.Equal(t, "Ping", got.Title)
	}
	wg.Wait()

	// the connection survived every concurrent write
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	require.Len(t, hub.conns[7], 1)
}

func TestBroadcastDropsClosedConnections(t *testing.T) {
	hub := NewNotificationHub(log.New(io.Discard, "", 0))
	url := startHubServer(t, hub, 9)

	conn, _, err := wsclient.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.conns[9]) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	// once the server notices the close, the registration is gone and
	// broadcasting to the user is a no-op
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.conns[9]) == 0
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(9, &models.Notification{UserID: 9, Title: "Gone"})
}
