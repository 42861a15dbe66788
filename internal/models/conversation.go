package models

import (
	"fmt"
	"time"
)

// Conversation is one chat within a WaSession. Its identity, chatKey, is
// waAccountId + ":" + remoteChatId.
type Conversation struct {
	ChatKey        string
	WaSessionID    string
	RemoteChatID   string
	LastTurn       int
	AutoReplyState string
	UpdatedAt      time.Time
}

// ChatKey derives the canonical chat identifier from a WhatsApp account id
// and a remote chat id.
func ChatKey(waAccountID, remoteChatID string) string {
	return waAccountID + ":" + remoteChatID
}

// NewConversation constructs a fresh Conversation with lastTurn = 0 and
// auto-reply on, mirroring the session default.
func NewConversation(waSessionID, waAccountID, remoteChatID string) *Conversation {
	return &Conversation{
		ChatKey:        ChatKey(waAccountID, remoteChatID),
		WaSessionID:    waSessionID,
		RemoteChatID:   remoteChatID,
		LastTurn:       0,
		AutoReplyState: AutoReplyOn,
		UpdatedAt:      time.Now(),
	}
}

// AdvanceTurn moves lastTurn forward, rejecting any attempt to regress it
// (data-model invariant: lastTurn never decreases).
func (c *Conversation) AdvanceTurn(turn int) error {
	if turn <= c.LastTurn {
		return fmt.Errorf("turn regression: chat %s attempted turn %d, current %d", c.ChatKey, turn, c.LastTurn)
	}
	c.LastTurn = turn
	c.UpdatedAt = time.Now()
	return nil
}
