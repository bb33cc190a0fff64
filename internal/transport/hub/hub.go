// Package hub provides the development and test RoomTransport: an
// in-process websocket fan-out. Kiosk clients join a room over
// GET /rooms/{roomID}/ws and receive every broadcast payload in order.
//
// Per-client delivery runs through a single writer goroutine fed from a
// buffered queue, which preserves the reliable-ordered contract the playout
// scheduler depends on. A slow client that fills its queue is disconnected
// rather than allowed to stall the room.
package hub

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/omkarlalla-code/kiosk-project/internal/transport"
)

// clientQueueDepth is the per-client outbound queue size.
const clientQueueDepth = 64

// writeTimeout bounds a single websocket write to one client.
const writeTimeout = 5 * time.Second

// client is one connected websocket participant.
type client struct {
	conn  *websocket.Conn
	queue chan []byte
	done  chan struct{}
}

// Hub implements [transport.RoomTransport] with in-process rooms.
type Hub struct {
	// publicURL is the websocket URL advertised to clients in MintAccess.
	publicURL string

	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
}

// Compile-time interface assertion.
var _ transport.RoomTransport = (*Hub)(nil)

// New creates a Hub advertising publicURL (e.g., "ws://localhost:8080") to
// joining clients.
func New(publicURL string) *Hub {
	return &Hub{
		publicURL: publicURL,
		rooms:     make(map[string]map[*client]struct{}),
	}
}

// Handler returns the http.Handler serving the join endpoint:
//
//	GET /rooms/{roomID}/ws — upgrade to websocket, subscribe to the room
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rooms/{roomID}/ws", h.handleJoin)
	return mux
}

// handleJoin upgrades the connection and pumps the room broadcast queue
// until the client disconnects or the room is deleted.
func (h *Hub) handleJoin(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("hub: websocket accept failed", "room", roomID, "err", err)
		return
	}

	c := &client{
		conn:  conn,
		queue: make(chan []byte, clientQueueDepth),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[roomID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	slog.Debug("hub: client joined", "room", roomID)

	go h.writeLoop(roomID, c)

	// Drain inbound frames so pings are answered; payloads from clients are
	// ignored — the datachannel is server → client only.
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}
	h.drop(roomID, c, websocket.StatusNormalClosure, "client closed")
}

// writeLoop is the single writer for one client.
func (h *Hub) writeLoop(roomID string, c *client) {
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.queue:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				h.drop(roomID, c, websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}

// drop removes a client from its room and closes the connection. Safe to
// call multiple times for the same client. The room entry itself stays —
// room lifetime is owned by MintAccess and DeleteRoom, so a kiosk that
// reconnects between broadcasts does not lose the room.
func (h *Hub) drop(roomID string, c *client, code websocket.StatusCode, reason string) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if ok {
		if _, member := room[c]; member {
			delete(room, c)
			close(c.done)
		}
	}
	h.mu.Unlock()
	_ = c.conn.Close(code, reason)
}

// Send broadcasts payload to every participant in roomID. Returns
// [transport.ErrRoomGone] when the room was never minted or has been
// deleted. A minted room with no participants yet is a successful no-op:
// visuals dispatched before the kiosk connects are not an error.
func (h *Hub) Send(_ context.Context, roomID string, payload []byte) error {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return transport.ErrRoomGone
	}
	clients := make([]*client, 0, len(room))
	for c := range room {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c.queue <- payload:
		default:
			// Queue full: the client is stalled. Disconnect it instead of
			// blocking the room broadcast.
			slog.Warn("hub: dropping stalled client", "room", roomID)
			h.drop(roomID, c, websocket.StatusPolicyViolation, "client too slow")
		}
	}
	return nil
}

// DeleteRoom disconnects all participants and removes the room.
func (h *Hub) DeleteRoom(_ context.Context, roomID string) error {
	h.mu.Lock()
	room := h.rooms[roomID]
	delete(h.rooms, roomID)
	clients := make([]*client, 0, len(room))
	for c := range room {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		close(c.done)
		_ = c.conn.Close(websocket.StatusGoingAway, "room deleted")
	}
	return nil
}

// MintAccess creates the room and returns its join URL. The hub performs
// no authentication; the token is the room id itself. The room exists from
// this moment, so broadcasts racing the kiosk's first connection succeed.
func (h *Hub) MintAccess(roomID, _ string) (transport.Access, error) {
	h.mu.Lock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*client]struct{})
	}
	h.mu.Unlock()

	return transport.Access{
		URL:   h.publicURL + "/rooms/" + roomID + "/ws",
		Token: roomID,
	}, nil
}

// Participants returns the number of connected clients in roomID.
func (h *Hub) Participants(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomID])
}
