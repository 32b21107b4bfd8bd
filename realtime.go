package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	subscriberBuf  = 16
)

// Origin checks are done by the CORS layer and the bearer token.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// attendanceEvent is pushed to live subscribers on every check-in/out.
type attendanceEvent struct {
	Type          string    `json:"type"`
	SessionID     int       `json:"session_id"`
	UserID        int       `json:"user_id"`
	At            time.Time `json:"at"`
	TotalDuration int       `json:"total_duration"`
}

type liveSubscriber struct {
	send chan []byte
}

// attendanceHub fans attendance events out to WebSocket subscribers per session.
type attendanceHub struct {
	mu   sync.Mutex
	subs map[int]map[*liveSubscriber]struct{}
	log  *zap.Logger
}

func newAttendanceHub(log *zap.Logger) *attendanceHub {
	return &attendanceHub{
		subs: make(map[int]map[*liveSubscriber]struct{}),
		log:  log,
	}
}

func (h *attendanceHub) subscribe(sessionID int) *liveSubscriber {
	s := &liveSubscriber{send: make(chan []byte, subscriberBuf)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*liveSubscriber]struct{})
	}
	h.subs[sessionID][s] = struct{}{}
	return s
}

// unsubscribe removes s and closes its channel. Safe to call more than once.
func (h *attendanceHub) unsubscribe(sessionID int, s *liveSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sessionID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	close(s.send)
	if len(set) == 0 {
		delete(h.subs, sessionID)
	}
}

func (h *attendanceHub) subscriberCount(sessionID int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

// publish delivers ev to every subscriber of the session without blocking;
// subscribers whose buffer is full miss the event.
func (h *attendanceHub) publish(sessionID int, ev attendanceEvent) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal attendance event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[sessionID] {
		select {
		case s.send <- msg:
		default:
			h.log.Warn("dropping attendance event for slow subscriber", zap.Int("session_id", sessionID))
		}
	}
}

// liveAttendance streams check-in/check-out events for a session over a WebSocket.
// GET /api/sport-events/:eventId/sessions/:sessionId/live?token=...
func (h *Handler) liveAttendance(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, sessionID, ok := sessionPathIDs(c)
	if !ok {
		return
	}
	if _, err := loadVisibleSession(c, h.db, eventID, sessionID, userID); err != nil {
		h.fail(c, err, "failed to fetch session")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.hub.subscribe(sessionID)
	go h.readLive(conn, sessionID, sub)
	h.writeLive(conn, sub)
}

// readLive discards client messages and keeps the read deadline fresh via pongs.
// Any read error ends the subscription.
func (h *Handler) readLive(conn *websocket.Conn, sessionID int, sub *liveSubscriber) {
	defer func() {
		h.hub.unsubscribe(sessionID, sub)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLive forwards hub events to the socket and pings on an interval.
func (h *Handler) writeLive(conn *websocket.Conn, sub *liveSubscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
