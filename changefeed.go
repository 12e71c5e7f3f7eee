package chronicle

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ChangeEvent is published after every committed chunk append or branch
// switch, so a host's live-mirror collection can resync reactively
// instead of only via switchBranch's inline resync hint.
type ChangeEvent struct {
	DocID     string    `json:"docId"`
	Epoch     int64     `json:"epoch"`
	BranchID  string    `json:"branchId"`
	Serial    int64     `json:"serial"`
	CCType    int       `json:"ccType"`
	IsDeleted bool      `json:"isDeleted"`
	At        time.Time `json:"at"`
}

// ChangeFeedPublisher receives a ChangeEvent after every committed write.
// Publish must not block the caller indefinitely; implementations that
// fan out to slow subscribers should buffer or drop.
type ChangeFeedPublisher interface {
	Publish(ctx context.Context, ev ChangeEvent)
}

// ChangeFeedHub is a ChangeFeedPublisher that broadcasts events to
// websocket subscribers, grounded on the teacher's push-on-write
// replication pattern: every committed write fans out to a set of live
// connections rather than requiring subscribers to poll.
type ChangeFeedHub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	conns    map[*websocket.Conn]chan ChangeEvent
}

// NewChangeFeedHub returns a ChangeFeedPublisher with an HTTP handler
// subscribers connect to over websocket.
func NewChangeFeedHub() *ChangeFeedHub {
	return &ChangeFeedHub{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		conns:    make(map[*websocket.Conn]chan ChangeEvent),
	}
}

// ServeHTTP upgrades the connection and streams ChangeEvents to it until
// the client disconnects.
func (h *ChangeFeedHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ch := make(chan ChangeEvent, 64)
	h.mu.Lock()
	h.conns[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// Publish fans ev out to every connected subscriber. A subscriber whose
// buffer is full is dropped for this event rather than blocking the
// write path.
func (h *ChangeFeedHub) Publish(_ context.Context, ev ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.conns {
		select {
		case ch <- ev:
		default:
			log.Printf("chronicle: change feed subscriber %v is slow, dropping event", conn.RemoteAddr())
		}
	}
}

// Close disconnects every subscriber.
func (h *ChangeFeedHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.conns {
		close(ch)
		conn.Close()
		delete(h.conns, conn)
	}
}
