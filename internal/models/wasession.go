// Package models provides the persisted domain types for the message
// processing pipeline: WaSession, Conversation, Message, Job, Agent and
// KbChunk, per the data model.
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// WaSession status values.
const (
	SessionStatusConnecting = "connecting"
	SessionStatusScanQR     = "scan_qr"
	SessionStatusWorking    = "working"
	SessionStatusFailed     = "failed"
	SessionStatusStopped    = "stopped"
)

// AutoReplyState values, shared between WaSession and Conversation.
const (
	AutoReplyOn  = "on"
	AutoReplyOff = "off"
)

// WaSession is a tenant-owned binding to one WhatsApp account.
//
// waAccountId is the external identity used to derive chatKey; id is the
// internal primary key (open question #1).
type WaSession struct {
	ID             string
	UserID         string
	WaAccountID    string
	AgentID        *string
	GatewayAPIURL  string
	GatewayAPIKey  string // encrypted at rest, see internal/crypto
	WebhookSecret  string
	Status         string
	AutoReplyState string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewWaSession constructs a WaSession in its initial connecting state.
func NewWaSession(userID, waAccountID, gatewayAPIURL, encryptedGatewayAPIKey, webhookSecret string) (*WaSession, error) {
	if userID == "" {
		return nil, errors.New("userId is required")
	}
	if waAccountID == "" {
		return nil, errors.New("waAccountId is required")
	}
	if webhookSecret == "" {
		return nil, errors.New("webhookSecret is required")
	}

	now := time.Now()
	return &WaSession{
		ID:             uuid.NewString(),
		UserID:         userID,
		WaAccountID:    waAccountID,
		GatewayAPIURL:  gatewayAPIURL,
		GatewayAPIKey:  encryptedGatewayAPIKey,
		WebhookSecret:  webhookSecret,
		Status:         SessionStatusConnecting,
		AutoReplyState: AutoReplyOn,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// IsValidSessionStatus reports whether s is one of the known statuses.
func IsValidSessionStatus(s string) bool {
	switch s {
	case SessionStatusConnecting, SessionStatusScanQR, SessionStatusWorking, SessionStatusFailed, SessionStatusStopped:
		return true
	default:
		return false
	}
}

// IsValidAutoReplyState reports whether s is "on" or "off".
func IsValidAutoReplyState(s string) bool {
	return s == AutoReplyOn || s == AutoReplyOff
}
