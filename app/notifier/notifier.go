// Package notifier delivers verification and password reset tokens to account owners.
package notifier

import (
	"context"
	"net/url"
	"strings"
	"time"
)

type EventType string

const (
	EventVerifyEmail   EventType = "verify_email"
	EventPasswordReset EventType = "password_reset"
)

const (
	verifyPath = "/auth/verify"
	resetPath  = "/auth/reset-password"
)

// Message carries a freshly issued token to its owner.
type Message struct {
	Email     string
	Token     string
	ExpiresAt time.Time
}

type Notifier interface {
	SendVerification(ctx context.Context, msg Message) error
	SendPasswordReset(ctx context.Context, msg Message) error
}

// Event is the JSON payload published for the mail service.
type Event struct {
	Type      EventType `json:"type"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newEvent(eventType EventType, appOrigin string, msg Message) Event {
	path := verifyPath
	if eventType == EventPasswordReset {
		path = resetPath
	}

	return Event{
		Type:      eventType,
		Email:     msg.Email,
		Token:     msg.Token,
		Link:      strings.TrimRight(appOrigin, "/") + path + "?token=" + url.QueryEscape(msg.Token),
		ExpiresAt: msg.ExpiresAt.UTC(),
	}
}
