package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/victornm/adaptivequiz/internal/domain"
	"github.com/victornm/adaptivequiz/internal/errors"
	"github.com/victornm/adaptivequiz/internal/leaderboard"
)

const (
	eventLeaderboardSnapshot = "leaderboard.snapshot"

	writeWait  = 10 * time.Second
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// hub fans leaderboard notifications out to the connected websocket clients.
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	send chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*client]struct{})}
}

func (h *hub) join() *client {
	c := &client{send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	return c
}

func (h *hub) leave(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// broadcast never blocks. A client too slow to drain its buffer misses the message, the next one carries
// the full leaderboard again.
func (h *hub) broadcast(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- b:
		default:
		}
	}
}

// StreamLeaderboard upgrades to a websocket that first receives the current top of the leaderboard by best
// score, then every leaderboard.updated.
func (a *API) StreamLeaderboard(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(ctx, "api: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Join before reading the snapshot so no update in between is lost.
	cl := a.hub.join()
	defer a.hub.leave(cl)

	l, err := a.ls.Top(ctx, leaderboard.TopRequest{Metric: domain.MetricBest, Limit: defaultLimit})
	if err != nil {
		_ = conn.WriteJSON(Notification{Event: "error", Data: errors.Convert(err)})
		return
	}

	snapshot, err := json.Marshal(Notification{Event: eventLeaderboardSnapshot, Data: toLeaderboard(l)})
	if err != nil {
		slog.ErrorContext(ctx, "api: marshal leaderboard snapshot failed", "error", err)
		return
	}

	// Clients never send anything, reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	msg := snapshot
	for {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			slog.DebugContext(ctx, "api: websocket write failed", "error", err)
			return
		}

		select {
		case msg = <-cl.send:
		case <-closed:
			return
		}
	}
}
