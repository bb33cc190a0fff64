// Package livekit provides the production RoomTransport backed by a LiveKit
// server: reliable datachannel broadcast via the RoomService SendData RPC,
// room deletion, and JWT capability tokens for joining clients.
package livekit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/twitchtv/twirp"

	"github.com/omkarlalla-code/kiosk-project/internal/transport"
)

// Transport implements [transport.RoomTransport] against a LiveKit server.
type Transport struct {
	url       string
	apiKey    string
	apiSecret string
	tokenTTL  time.Duration
	rooms     *lksdk.RoomServiceClient
}

// Compile-time interface assertion.
var _ transport.RoomTransport = (*Transport)(nil)

// Config holds the LiveKit connection settings.
type Config struct {
	// URL is the LiveKit server URL as handed to clients (ws:// or wss://).
	URL string

	// APIKey and APISecret authenticate RPCs and sign capability tokens.
	APIKey    string
	APISecret string

	// TokenTTL bounds the validity of minted tokens.
	TokenTTL time.Duration
}

// New creates a Transport for the LiveKit server described by cfg.
func New(cfg Config) (*Transport, error) {
	if cfg.URL == "" {
		return nil, errors.New("livekit: URL must not be empty")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("livekit: APIKey and APISecret must not be empty")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 30 * time.Minute
	}
	return &Transport{
		url:       cfg.URL,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		tokenTTL:  cfg.TokenTTL,
		rooms:     lksdk.NewRoomServiceClient(lksdk.ToHttpURL(cfg.URL), cfg.APIKey, cfg.APISecret),
	}, nil
}

// Send broadcasts payload into roomID as a reliable data packet. The SFU
// guarantees ordered delivery per publisher, which preserves the preload →
// show ordering the scheduler depends on.
func (t *Transport) Send(ctx context.Context, roomID string, payload []byte) error {
	_, err := t.rooms.SendData(ctx, &livekit.SendDataRequest{
		Room: roomID,
		Data: payload,
		Kind: livekit.DataPacket_RELIABLE,
	})
	if err != nil {
		if isNotFound(err) {
			return transport.ErrRoomGone
		}
		return fmt.Errorf("livekit: send data to room %q: %w", roomID, err)
	}
	return nil
}

// DeleteRoom releases the LiveKit room. Deleting an already-gone room
// returns nil.
func (t *Transport) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := t.rooms.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: roomID})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("livekit: delete room %q: %w", roomID, err)
	}
	return nil
}

// MintAccess signs a join-scoped JWT for identity in roomID.
func (t *Transport) MintAccess(roomID, identity string) (transport.Access, error) {
	at := auth.NewAccessToken(t.apiKey, t.apiSecret)
	at.SetVideoGrant(&auth.VideoGrant{
		RoomJoin: true,
		Room:     roomID,
	}).
		SetIdentity(identity).
		SetValidFor(t.tokenTTL)

	token, err := at.ToJWT()
	if err != nil {
		return transport.Access{}, fmt.Errorf("livekit: mint token for room %q: %w", roomID, err)
	}
	return transport.Access{URL: t.url, Token: token}, nil
}

// isNotFound reports whether err is a twirp not-found from the RoomService.
func isNotFound(err error) bool {
	var te twirp.Error
	return errors.As(err, &te) && te.Code() == twirp.NotFound
}
