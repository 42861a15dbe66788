// Package gateway multiplexes the single ports.Gateway port across many
// WhatsApp sessions, each with its own gateway base URL and API key
// (spec section 3 "WaSession"). pkg/whatsapp.Client is constructed per
// credential pair; this package resolves and caches one per session id.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/wa-agent/backend/internal/ports"
	"github.com/wa-agent/backend/pkg/whatsapp"
)

// CredentialResolver looks up a session's decrypted gateway base URL
// and API key.
type CredentialResolver interface {
	GatewayCredentials(ctx context.Context, sessionID string) (baseURL, apiKey string, err error)
}

// Multiplexer implements ports.Gateway by resolving per-session
// credentials and delegating to a cached pkg/whatsapp.Client.
type Multiplexer struct {
	sessions CredentialResolver

	mu      sync.RWMutex
	clients map[string]*whatsapp.Client
}

var _ ports.Gateway = (*Multiplexer)(nil)

// New constructs a Multiplexer.
func New(sessions CredentialResolver) *Multiplexer {
	return &Multiplexer{sessions: sessions, clients: make(map[string]*whatsapp.Client)}
}

func (m *Multiplexer) clientFor(ctx context.Context, sessionID string) (*whatsapp.Client, error) {
	m.mu.RLock()
	c, ok := m.clients[sessionID]
	m.mu.RUnlock()
	if ok {
		return c, nil
	}

	baseURL, apiKey, err := m.sessions.GatewayCredentials(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	c = whatsapp.NewClient(baseURL, apiKey)
	m.mu.Lock()
	m.clients[sessionID] = c
	m.mu.Unlock()
	return c, nil
}

// Forget evicts a cached client, forcing the next call to re-resolve
// credentials (e.g. after a session's gateway key is rotated).
func (m *Multiplexer) Forget(sessionID string) {
	m.mu.Lock()
	delete(m.clients, sessionID)
	m.mu.Unlock()
}

// CreateSession implements ports.Gateway.
func (m *Multiplexer) CreateSession(ctx context.Context, sessionID string, webhook ports.WebhookConfig) error {
	c, err := m.clientFor(ctx, sessionID)
	if err != nil {
		return err
	}
	return c.CreateSession(ctx, sessionID, webhook)
}

// GetSessionStatus implements ports.Gateway.
func (m *Multiplexer) GetSessionStatus(ctx context.Context, sessionID string) (ports.SessionStatus, error) {
	c, err := m.clientFor(ctx, sessionID)
	if err != nil {
		return ports.SessionStatus{}, err
	}
	return c.GetSessionStatus(ctx, sessionID)
}

// SendMessage implements ports.Gateway.
func (m *Multiplexer) SendMessage(ctx context.Context, sessionID, chatID, text string) error {
	c, err := m.clientFor(ctx, sessionID)
	if err != nil {
		return err
	}
	return c.SendMessage(ctx, sessionID, chatID, text)
}

// SendTyping implements ports.Gateway.
func (m *Multiplexer) SendTyping(ctx context.Context, sessionID, chatID string, duration time.Duration) error {
	c, err := m.clientFor(ctx, sessionID)
	if err != nil {
		return err
	}
	return c.SendTyping(ctx, sessionID, chatID, duration)
}

// RestartSession implements ports.Gateway.
func (m *Multiplexer) RestartSession(ctx context.Context, sessionID string) error {
	c, err := m.clientFor(ctx, sessionID)
	if err != nil {
		return err
	}
	return c.RestartSession(ctx, sessionID)
}
