// Package session provides the process-wide registry of kiosk sessions:
// creation, activity refresh, idle and hard-duration timeouts, termination,
// and the 1 Hz remaining-time broadcast.
package session

import (
	"sync"
	"time"
)

// State is the lifecycle state of a session.
type State string

const (
	StateActive State = "active"
	StateEnded  State = "ended"
)

// EndReason tags why a session ended.
type EndReason string

const (
	// EndManual is an explicit client termination (DELETE /session/{id}).
	EndManual EndReason = "manual"

	// EndTimeout is the inactivity timeout.
	EndTimeout EndReason = "timeout"

	// EndDuration is the hard session duration expiry.
	EndDuration EndReason = "duration"

	// EndOperator is an operator force-terminate.
	EndOperator EndReason = "operator_terminated"

	// EndShutdown is a server shutdown.
	EndShutdown EndReason = "shutdown"
)

// Session is one time-bounded kiosk interaction. All mutation goes through
// the registry under the session's own lock; cross-session operations never
// contend.
type Session struct {
	// ID is the server-minted opaque session identifier.
	ID string

	// KioskID identifies the physical kiosk that started the session.
	KioskID string

	// RoomID is the transport-level room carrying the datachannel.
	RoomID string

	// CreatedAt is the session creation instant.
	CreatedAt time.Time

	// DurationS is the nominal session duration in seconds.
	DurationS int64

	mu           sync.Mutex
	state        State
	endReason    EndReason
	lastActivity time.Time
	endedAt      time.Time

	// idleTimer and durationTimer are owned by the registry and stopped on
	// end. Nil once the session has ended.
	idleTimer     *time.Timer
	durationTimer *time.Timer
}

// Snapshot is an immutable copy of a session's mutable state, safe to hand
// to HTTP handlers and logs.
type Snapshot struct {
	ID           string    `json:"session_id"`
	KioskID      string    `json:"kiosk_id"`
	RoomID       string    `json:"room_name"`
	CreatedAt    time.Time `json:"created_at"`
	DurationS    int64     `json:"duration_seconds"`
	LastActivity time.Time `json:"last_activity"`
	State        State     `json:"state"`
	EndReason    EndReason `json:"end_reason,omitempty"`
	EndedAt      time.Time `json:"ended_at,omitzero"`
}

// snapshot copies the mutable state under the session lock.
func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:           s.ID,
		KioskID:      s.KioskID,
		RoomID:       s.RoomID,
		CreatedAt:    s.CreatedAt,
		DurationS:    s.DurationS,
		LastActivity: s.lastActivity,
		State:        s.state,
		EndReason:    s.endReason,
		EndedAt:      s.endedAt,
	}
}

// Active reports whether the session is in the active state.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateActive
}

// remaining computes the clamped remaining seconds at now.
func (s *Session) remaining(now time.Time) int64 {
	elapsed := int64(now.Sub(s.CreatedAt).Seconds())
	if r := s.DurationS - elapsed; r > 0 {
		return r
	}
	return 0
}
