// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// AuthQueue is the durable queue carrying AuthEvent messages.
const AuthQueue = "auth.events"

// AuthEventType names what happened in an AuthEvent.
type AuthEventType string

const (
	EventLoginSucceeded  AuthEventType = "login.succeeded"
	EventLoginFailed     AuthEventType = "login.failed"
	EventAccountLocked   AuthEventType = "login.locked"
	EventPasswordUpgrade AuthEventType = "password.upgraded"
	EventTokenRefreshed  AuthEventType = "token.refreshed"
	EventLogout          AuthEventType = "session.logout"
	EventLogoutAll       AuthEventType = "session.logout_all"
)

// AuthEvent is published for every security-relevant auth outcome.  It
// never carries passwords or raw tokens, and Identifier and Origin are
// masked before the event is built.
type AuthEvent struct {
	ID         string        `json:"id"`
	Type       AuthEventType `json:"type"`
	UserID     uint64        `json:"user_id,omitempty"`
	Identifier string        `json:"identifier,omitempty"`
	Origin     string        `json:"origin,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// NewAuthEvent stamps a fresh id and the given time.
func NewAuthEvent(typ AuthEventType, at time.Time) AuthEvent {
	return AuthEvent{ID: uuid.NewString(), Type: typ, OccurredAt: at.UTC()}
}
