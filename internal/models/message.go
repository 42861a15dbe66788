package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleHuman     = "human"
)

// Message lifecycle statuses.
const (
	MessageStatusPending    = "pending"
	MessageStatusProcessing = "processing"
	MessageStatusCompleted  = "completed"
	MessageStatusFailed     = "failed"
	MessageStatusSuppressed = "suppressed"
)

// validMessageTransitions encodes the message status machine, in the
// teacher's isValidStatusTransition style but with the pipeline's own
// terminal states (completed and suppressed are terminal; failed may go
// back to processing on an explicit retry).
var validMessageTransitions = map[string]map[string]bool{
	MessageStatusPending: {
		MessageStatusProcessing: true,
		MessageStatusCompleted:  true, // punctuation control / intervention short-circuits
		MessageStatusSuppressed: true,
		MessageStatusFailed:     true,
	},
	MessageStatusProcessing: {
		MessageStatusCompleted: true,
		MessageStatusFailed:    true,
	},
	MessageStatusFailed: {
		MessageStatusProcessing: true, // explicit retry
	},
}

// Message is an append-only per-chat record. For a given
// (chatKey, turn, role) the message is logically unique; a user message
// and an assistant message may share a turn (request/response pair).
type Message struct {
	ID      string
	ChatKey string
	Turn    int
	Role    string
	Text    string
	Status  string
	Ts      time.Time
}

// NewMessage constructs a Message in pending status.
func NewMessage(chatKey string, turn int, role, text string) (*Message, error) {
	if chatKey == "" {
		return nil, errors.New("chatKey is required")
	}
	if turn < 0 {
		return nil, errors.New("turn must be >= 0")
	}
	if role != RoleUser && role != RoleAssistant && role != RoleHuman {
		return nil, errors.New("invalid message role")
	}

	return &Message{
		ID:      uuid.NewString(),
		ChatKey: chatKey,
		Turn:    turn,
		Role:    role,
		Text:    text,
		Status:  MessageStatusPending,
		Ts:      time.Now(),
	}, nil
}

// TransitionTo validates and applies a status transition.
func (m *Message) TransitionTo(status string) error {
	if m.Status == status {
		return nil
	}
	allowed, ok := validMessageTransitions[m.Status]
	if !ok || !allowed[status] {
		return errors.New("invalid message status transition: " + m.Status + " -> " + status)
	}
	m.Status = status
	return nil
}
