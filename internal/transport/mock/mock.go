// Package mock provides a test double for the transport.RoomTransport
// interface. It records every broadcast so tests can assert on dispatch
// order and payloads without a live SFU.
package mock

import (
	"context"
	"sync"

	"github.com/omkarlalla-code/kiosk-project/internal/transport"
)

// SentPayload records one Send invocation.
type SentPayload struct {
	RoomID  string
	Payload []byte
}

// Transport is a mock implementation of transport.RoomTransport.
// The zero value accepts every call.
type Transport struct {
	mu sync.Mutex

	// SendErr, if non-nil, is returned from every Send.
	SendErr error

	// DeleteErr, if non-nil, is returned from every DeleteRoom.
	DeleteErr error

	// Sent records Send invocations in order.
	Sent []SentPayload

	// Deleted records DeleteRoom invocations in order.
	Deleted []string
}

// Compile-time interface assertion.
var _ transport.RoomTransport = (*Transport)(nil)

// Send records the payload.
func (t *Transport) Send(_ context.Context, roomID string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SendErr != nil {
		return t.SendErr
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	t.Sent = append(t.Sent, SentPayload{RoomID: roomID, Payload: cp})
	return nil
}

// DeleteRoom records the room id.
func (t *Transport) DeleteRoom(_ context.Context, roomID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Deleted = append(t.Deleted, roomID)
	return t.DeleteErr
}

// MintAccess returns a static dev access.
func (t *Transport) MintAccess(roomID, identity string) (transport.Access, error) {
	return transport.Access{URL: "ws://mock", Token: roomID + ":" + identity}, nil
}

// SentTo returns the payloads sent to roomID, in order.
func (t *Transport) SentTo(roomID string) [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out [][]byte
	for _, s := range t.Sent {
		if s.RoomID == roomID {
			out = append(out, s.Payload)
		}
	}
	return out
}

// DeletedRooms returns the room ids passed to DeleteRoom, in order.
func (t *Transport) DeletedRooms() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.Deleted))
	copy(out, t.Deleted)
	return out
}

// SendCount returns the total number of successful Send calls.
func (t *Transport) SendCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Sent)
}
