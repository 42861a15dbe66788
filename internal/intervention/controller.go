// Package intervention implements the two-level auto-reply suppression
// control: session-wide pause/resume, and per-conversation trailing-
// punctuation markers from operators (spec section 4.C).
package intervention

import (
	"context"
	"strings"
)

// SessionStore is the slice of the SQL port the controller needs for
// session-level auto-reply state.
type SessionStore interface {
	SetSessionAutoReply(ctx context.Context, sessionID, state string) error
	GetSessionAutoReply(ctx context.Context, sessionID string) (string, error)
}

// ConversationStore is the slice of the SQL port the controller needs for
// conversation-level auto-reply state.
type ConversationStore interface {
	SetConversationAutoReply(ctx context.Context, chatKey, state string) error
	GetConversationAutoReply(ctx context.Context, chatKey string) (string, error)
}

// Outcome is the result of handling a punctuation-control message.
type Outcome int

const (
	NoChange Outcome = iota
	Paused
	Resumed
)

const (
	autoReplyOn  = "on"
	autoReplyOff = "off"
)

// Controller implements the pause/resume and punctuation-marker logic.
// It takes a chatKey -> session id resolver so a chatKey can be
// traced back to its owning session for the strict precedence rule.
type Controller struct {
	sessions      SessionStore
	conversations ConversationStore
	// sessionOf resolves a chatKey to its owning WaSession id.
	sessionOf func(ctx context.Context, chatKey string) (string, error)
}

// New constructs a Controller.
func New(sessions SessionStore, conversations ConversationStore, sessionOf func(ctx context.Context, chatKey string) (string, error)) *Controller {
	return &Controller{sessions: sessions, conversations: conversations, sessionOf: sessionOf}
}

// PauseSession flips a session's auto-reply state off. Admin-triggered.
func (c *Controller) PauseSession(ctx context.Context, sessionID string) error {
	return c.sessions.SetSessionAutoReply(ctx, sessionID, autoReplyOff)
}

// ResumeSession flips a session's auto-reply state on. Admin-triggered.
func (c *Controller) ResumeSession(ctx context.Context, sessionID string) error {
	return c.sessions.SetSessionAutoReply(ctx, sessionID, autoReplyOn)
}

// HandlePunctuationControl inspects text for a trailing ASCII comma or
// full stop and toggles the conversation's auto-reply state accordingly.
// Only ASCII forms are recognized by design, so fullwidth CJK punctuation
// never false-triggers it.
func (c *Controller) HandlePunctuationControl(ctx context.Context, chatKey, text string) (Outcome, error) {
	trimmed := strings.TrimRight(text, " \t\r\n")
	if trimmed == "" {
		return NoChange, nil
	}

	last := trimmed[len(trimmed)-1]
	switch last {
	case ',':
		if err := c.conversations.SetConversationAutoReply(ctx, chatKey, autoReplyOff); err != nil {
			return NoChange, err
		}
		return Paused, nil
	case '.':
		if err := c.conversations.SetConversationAutoReply(ctx, chatKey, autoReplyOn); err != nil {
			return NoChange, err
		}
		return Resumed, nil
	default:
		return NoChange, nil
	}
}

// ShouldAutoReply reports whether both the owning session and the
// conversation have auto-reply enabled. Session precedence is strict: a
// paused session suppresses replies regardless of conversation state.
func (c *Controller) ShouldAutoReply(ctx context.Context, chatKey string) (bool, error) {
	sessionID, err := c.sessionOf(ctx, chatKey)
	if err != nil {
		return false, err
	}

	sessionState, err := c.sessions.GetSessionAutoReply(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if sessionState != autoReplyOn {
		return false, nil
	}

	convState, err := c.conversations.GetConversationAutoReply(ctx, chatKey)
	if err != nil {
		return false, err
	}
	return convState == autoReplyOn, nil
}

// SafeTrim removes a single trailing ASCII comma or full stop from text,
// preventing the LLM's own output from toggling the punctuation markers.
func SafeTrim(text string) string {
	if text == "" {
		return text
	}
	last := text[len(text)-1]
	if last == ',' || last == '.' {
		return text[:len(text)-1]
	}
	return text
}
