package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/wa-agent/backend/internal/models"
	"github.com/wa-agent/backend/internal/ports"
)

// SessionRepository persists WaSession rows (spec section 3) and backs the
// intervention.SessionStore and handlers.SessionSecretResolver ports.
type SessionRepository struct {
	db     *sql.DB
	crypto ports.Crypto
}

// NewSessionRepository constructs a SessionRepository. crypto encrypts the
// gateway API key at rest (spec section 6.5).
func NewSessionRepository(db *sql.DB, crypto ports.Crypto) *SessionRepository {
	return &SessionRepository{db: db, crypto: crypto}
}

// Create binds a new WaSession, encrypting the gateway API key before
// persisting it.
func (r *SessionRepository) Create(ctx context.Context, userID, waAccountID, gatewayAPIURL, gatewayAPIKey, webhookSecret string) (*models.WaSession, error) {
	defer timer("wa_sessions", "create")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	encrypted, err := r.crypto.Encrypt(gatewayAPIKey)
	if err != nil {
		observe("wa_sessions", "create", err)
		return nil, wrap("encrypt gateway api key", err)
	}

	sess, err := models.NewWaSession(userID, waAccountID, gatewayAPIURL, encrypted, webhookSecret)
	if err != nil {
		observe("wa_sessions", "create", err)
		return nil, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO wa_sessions (id, user_id, wa_account_id, gateway_api_url, gateway_api_key, webhook_secret, status, auto_reply_state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sess.ID, sess.UserID, sess.WaAccountID, sess.GatewayAPIURL, sess.GatewayAPIKey, sess.WebhookSecret,
		sess.Status, sess.AutoReplyState, sess.CreatedAt, sess.UpdatedAt,
	)
	observe("wa_sessions", "create", err)
	if err != nil {
		return nil, wrap("create wa session", err)
	}
	return sess, nil
}

// WebhookSecretFor implements handlers.SessionSecretResolver: resolves the
// plaintext webhookSecret and waAccountId bound to a gateway session id
// (spec section 4.B step 1).
func (r *SessionRepository) WebhookSecretFor(ctx context.Context, sessionID string) (secret, waAccountID string, found bool, err error) {
	defer timer("wa_sessions", "webhook_secret_for")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, parseErr := uuid.Parse(sessionID); parseErr != nil {
		return "", "", false, nil
	}

	err = r.db.QueryRowContext(ctx, `SELECT webhook_secret, wa_account_id FROM wa_sessions WHERE id = $1`, sessionID).
		Scan(&secret, &waAccountID)
	if err == sql.ErrNoRows {
		observe("wa_sessions", "webhook_secret_for", nil)
		return "", "", false, nil
	}
	observe("wa_sessions", "webhook_secret_for", err)
	if err != nil {
		return "", "", false, wrap("resolve webhook secret", err)
	}
	return secret, waAccountID, true, nil
}

// GatewayCredentials resolves the decrypted gateway API key and base URL
// for a session, for constructing a pkg/whatsapp.Client per outbound call.
func (r *SessionRepository) GatewayCredentials(ctx context.Context, sessionID string) (baseURL, apiKey string, err error) {
	defer timer("wa_sessions", "gateway_credentials")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var encrypted string
	err = r.db.QueryRowContext(ctx, `SELECT gateway_api_url, gateway_api_key FROM wa_sessions WHERE id = $1`, sessionID).
		Scan(&baseURL, &encrypted)
	if err != nil {
		observe("wa_sessions", "gateway_credentials", err)
		return "", "", wrap("load gateway credentials", err)
	}

	apiKey, err = r.crypto.Decrypt(encrypted)
	observe("wa_sessions", "gateway_credentials", err)
	if err != nil {
		return "", "", wrap("decrypt gateway api key", err)
	}
	return baseURL, apiKey, nil
}

// SetSessionAutoReply flips the session-wide auto-reply state (spec
// section 4.C pauseSession/resumeSession).
func (r *SessionRepository) SetSessionAutoReply(ctx context.Context, sessionID, state string) error {
	defer timer("wa_sessions", "set_auto_reply")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		UPDATE wa_sessions SET auto_reply_state = $1, updated_at = now() WHERE id = $2`,
		state, sessionID,
	)
	observe("wa_sessions", "set_auto_reply", err)
	return wrap("set session auto reply", err)
}

// GetSessionAutoReply reads the session-wide auto-reply state.
func (r *SessionRepository) GetSessionAutoReply(ctx context.Context, sessionID string) (string, error) {
	defer timer("wa_sessions", "get_auto_reply")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var state string
	err := r.db.QueryRowContext(ctx, `SELECT auto_reply_state FROM wa_sessions WHERE id = $1`, sessionID).Scan(&state)
	observe("wa_sessions", "get_auto_reply", err)
	if err != nil {
		return "", wrap("get session auto reply", err)
	}
	return state, nil
}

// SessionIDForChat resolves the owning WaSession id for a chatKey, for the
// intervention Controller's strict session-precedence check (spec section
// 4.C shouldAutoReply).
func (r *SessionRepository) SessionIDForChat(ctx context.Context, chatKey string) (string, error) {
	defer timer("wa_sessions", "session_id_for_chat")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var sessionID string
	err := r.db.QueryRowContext(ctx, `SELECT wa_session_id FROM conversations WHERE chat_key = $1`, chatKey).Scan(&sessionID)
	observe("wa_sessions", "session_id_for_chat", err)
	if err != nil {
		return "", wrap("resolve session id for chat", err)
	}
	return sessionID, nil
}

// SetStatus updates a session's connection status.
func (r *SessionRepository) SetStatus(ctx context.Context, sessionID, status string) error {
	defer timer("wa_sessions", "set_status")()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `UPDATE wa_sessions SET status = $1, updated_at = now() WHERE id = $2`, status, sessionID)
	observe("wa_sessions", "set_status", err)
	return wrap("set session status", err)
}
