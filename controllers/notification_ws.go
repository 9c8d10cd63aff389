package controller

import (
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"

	"lexnexy/models"
)

// NotificationHub is the realtime delivery channel. Each connected client
// registers under their user ID; Broadcast writes the notification to every
// open connection of the recipient and silently drops the ones that fail.
// The underlying websocket allows one writer at a time, so every connection
// carries its own write lock and concurrent broadcasts queue behind it.
type NotificationHub struct {
	mu     sync.RWMutex
	conns  map[uint]map[*websocket.Conn]*sync.Mutex
	logger *log.Logger
}

func NewNotificationHub(logger *log.Logger) *NotificationHub {
	return &NotificationHub{
		conns:  make(map[uint]map[*websocket.Conn]*sync.Mutex),
		logger: logger,
	}
}

// Broadcast pushes one notification to every live connection of the user.
func (h *NotificationHub) Broadcast(userID uint, notification *models.Notification) {
	type target struct {
		conn *websocket.Conn
		wmu  *sync.Mutex
	}

	h.mu.RLock()
	targets := make([]target, 0, len(h.conns[userID]))
	for conn, wmu := range h.conns[userID] {
		targets = append(targets, target{conn: conn, wmu: wmu})
	}
	h.mu.RUnlock()

	for _, tg := range targets {
		tg.wmu.Lock()
		err := tg.conn.WriteJSON(notification)
		tg.wmu.Unlock()
		if err != nil {
			h.logger.Printf("websocket write to user %d failed: %v", userID, err)
			h.unregister(userID, tg.conn)
			tg.conn.Close()
		}
	}
}

// HandleNotificationWS keeps the client connection registered until it
// closes. The JWT middleware has already resolved the user.
func (h *NotificationHub) HandleNotificationWS(c *websocket.Conn) {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		c.Close()
		return
	}

	h.register(userID, c)
	defer func() {
		h.unregister(userID, c)
		c.Close()
	}()

	// Drain client frames; the channel is one way
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *NotificationHub) register(userID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]*sync.Mutex)
	}
	h.conns[userID][conn] = &sync.Mutex{}
}

func (h *NotificationHub) unregister(userID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[userID], conn)
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
}
