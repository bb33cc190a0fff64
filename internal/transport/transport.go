// Package transport abstracts the SFU room layer the kiosk server speaks
// to: reliable datachannel broadcast into a room, best-effort room deletion,
// and capability-token minting for clients joining a room.
//
// Two implementations exist: the LiveKit-backed production transport
// (livekit subpackage) and an in-process websocket hub used for development
// and tests (hub subpackage).
package transport

import (
	"context"
	"errors"
)

// ErrRoomGone is returned by Send when the target room no longer exists.
// Callers with scheduled messages treat it as non-fatal and drop silently.
var ErrRoomGone = errors.New("room gone")

// Access is what a client needs to join a session's room.
type Access struct {
	// URL is the transport endpoint the client connects to.
	URL string

	// Token is the short-lived per-session capability token.
	Token string
}

// RoomTransport is the narrow interface the session registry and the
// datachannel router require from the SFU.
//
// Send must be reliable and ordered within one room from this publisher.
// Implementations must be safe for concurrent use.
type RoomTransport interface {
	// Send broadcasts payload to every participant in the room.
	Send(ctx context.Context, roomID string, payload []byte) error

	// DeleteRoom releases the room. Idempotent; deleting an unknown room is
	// not an error.
	DeleteRoom(ctx context.Context, roomID string) error

	// MintAccess creates join credentials for identity in roomID.
	MintAccess(roomID, identity string) (Access, error)
}
