package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	eventProfileUpdated = "profile.updated"
	eventSignedIn       = "session.signed_in"
	eventSignedOut      = "session.signed_out"

	wsPingInterval = 25 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// realtimeEvent is the JSON frame pushed to websocket clients.
type realtimeEvent struct {
	Kind    string       `json:"kind"`
	Table   string       `json:"table,omitempty"`
	Op      string       `json:"op,omitempty"`
	Profile *userProfile `json:"profile,omitempty"`
}

// wsClient is one open socket. gorilla/websocket allows a single concurrent
// writer, so every write goes through send.
type wsClient struct {
	userID int
	conn   *websocket.Conn
	mu     sync.Mutex
}

func (c *wsClient) send(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(messageType, data)
}

// realtimeHub tracks open sockets per user.
type realtimeHub struct {
	mu      sync.RWMutex
	clients map[int]map[*wsClient]struct{}
}

func newRealtimeHub() *realtimeHub {
	return &realtimeHub{clients: make(map[int]map[*wsClient]struct{})}
}

func (h *realtimeHub) register(c *wsClient) {
	h.mu.Lock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*wsClient]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.mu.Unlock()
}

func (h *realtimeHub) unregister(c *wsClient) {
	h.mu.Lock()
	if set := h.clients[c.userID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// connected returns the number of open sockets for userID.
func (h *realtimeHub) connected(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// broadcast sends e to every socket the user has open. Write failures are
// logged; the read loop of the failed socket does the cleanup.
func (h *realtimeHub) broadcast(userID int, e realtimeEvent) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Printf("[realtimeHub.broadcast] marshal %s: %v", e.Kind, err)
		return
	}

	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.send(websocket.TextMessage, msg); err != nil {
			log.Printf("[realtimeHub.broadcast] user %d: %v", userID, err)
		}
	}
}

/* ─── Websocket handler ──────────────────────────────────────────────── */

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // CORS middleware already restricts origins
}

// realtime upgrades to a websocket and pushes the user's profile whenever
// the profile or goals rows change, plus session events.
// GET /api/realtime.
func (h *Handler) realtime(c *gin.Context) {
	userID := c.GetInt("user_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[realtime] upgrade failed for user %d: %v", userID, err)
		return
	}
	cl := &wsClient{userID: userID, conn: conn}

	done := make(chan struct{})
	defer close(done)

	if h.profiles != nil {
		// Change callbacks run on the feed's goroutine; reload elsewhere so a
		// slow store never stalls other subscribers.
		unsubscribe := h.profiles.onExternalChange(userID, func(e changeEvent) {
			go h.pushProfile(cl, e)
		})
		defer unsubscribe()
	}
	h.hub.register(cl)

	go func() {
		t := time.NewTicker(wsPingInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := cl.send(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// read loop ends on client close/error
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.hub.unregister(cl)
			return
		}
	}
}

// pushProfile reloads the profile after a change event and sends it to cl.
func (h *Handler) pushProfile(cl *wsClient, e changeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()

	p, err := h.profiles.load(ctx, cl.userID)
	if err != nil {
		log.Printf("[pushProfile] reload for user %d failed: %v", cl.userID, err)
		return
	}
	msg, err := json.Marshal(realtimeEvent{Kind: eventProfileUpdated, Table: e.Table, Op: e.Op, Profile: &p})
	if err != nil {
		log.Printf("[pushProfile] marshal: %v", err)
		return
	}
	if err := cl.send(websocket.TextMessage, msg); err != nil {
		log.Printf("[pushProfile] user %d: %v", cl.userID, err)
	}
}
