// Package handlers provides HTTP handlers for the message service.
package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wa-agent/backend/internal/ports"
)

const (
	maxWebhookPayloadSize = 1024 * 1024 * 16 // 16MB
	signatureWindow       = 300 * time.Second
	replayTTL             = 300 * time.Second
	idempotencyTTL        = 24 * time.Hour
)

// webhookEvent mirrors the gateway's inbound payload shape (spec section
// 6.1): `{event, data: {message: {id, from, body, ...}}}`.
type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Message struct {
			ID   string `json:"id"`
			From string `json:"from"`
			Body string `json:"body"`
		} `json:"message"`
	} `json:"data"`
}

// SessionSecretResolver fetches the webhookSecret and waAccountId bound to
// a gateway session id, so the handler can verify the signature and derive
// chatKey without depending on a concrete repository type.
type SessionSecretResolver interface {
	WebhookSecretFor(ctx context.Context, sessionID string) (secret, waAccountID string, found bool, err error)
}

// InboundRouter is the slice of the Chat Session Coordinator the webhook
// handler needs (spec section 4.D).
type InboundRouter interface {
	OnInboundMessage(ctx context.Context, waSessionID, waAccountID, remoteChatID, text, messageID string) error
}

// WebhookHandler implements the webhook ingress contract of spec section
// 4.B: signature verification, replay/idempotency guards via KV, then
// routing into the Chat Session Coordinator.
type WebhookHandler struct {
	sessions    SessionSecretResolver
	coordinator InboundRouter
	kv          ports.KV
	payloadPool sync.Pool
	tracer      trace.Tracer
	log         *zap.Logger
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(sessions SessionSecretResolver, coordinator InboundRouter, kv ports.KV, log *zap.Logger) (*WebhookHandler, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session resolver is required")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if kv == nil {
		return nil, fmt.Errorf("kv store is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &WebhookHandler{
		sessions:    sessions,
		coordinator: coordinator,
		kv:          kv,
		payloadPool: sync.Pool{
			New: func() interface{} {
				return make([]byte, 0, 4096)
			},
		},
		tracer: otel.Tracer("webhook-handler"),
		log:    log,
	}, nil
}

// HandleWebhook implements POST /webhooks/gateway/:sessionId per spec
// section 4.B's numbered algorithm.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handle_webhook",
		trace.WithAttributes(attribute.String("handler", "webhook")))
	defer span.End()

	sessionID := c.Param("sessionId")

	// Step 1: resolve the session's webhookSecret.
	secret, waAccountID, found, err := h.sessions.WebhookSecretFor(ctx, sessionID)
	if err != nil {
		h.log.Error("resolve webhook secret", zap.String("sessionId", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"success": false})
		return
	}

	signature := c.GetHeader("X-Signature")
	timestampHeader := c.GetHeader("X-Signature-Timestamp")
	if signature == "" || timestampHeader == "" {
		span.SetAttributes(attribute.String("error", "missing_signature"))
		c.JSON(http.StatusUnauthorized, gin.H{"success": false})
		return
	}

	// Step 2: reject stale timestamps.
	timestamp, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false})
		return
	}
	now := time.Now().Unix()
	skew := now - timestamp
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > signatureWindow {
		span.SetAttributes(attribute.String("error", "stale_timestamp"))
		c.JSON(http.StatusUnauthorized, gin.H{"success": false})
		return
	}

	body := h.payloadPool.Get().([]byte)
	defer func() {
		h.payloadPool.Put(body[:0]) //nolint:staticcheck // pool reset intentional
	}()

	reader := http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookPayloadSize)
	body, err = io.ReadAll(reader)
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false})
		return
	}

	// Step 3: verify HMAC-SHA256(secret, timestamp + "\n" + body).
	if !verifySignature(secret, timestampHeader, body, signature) {
		span.SetAttributes(attribute.String("error", "invalid_signature"))
		c.JSON(http.StatusUnauthorized, gin.H{"success": false})
		return
	}

	// Step 4: replay guard.
	replayKey := "replay:" + signature
	replayed, _, err := h.kv.Get(ctx, replayKey)
	if err != nil {
		h.log.Warn("replay guard check failed, proceeding best-effort", zap.Error(err))
	} else if replayed != "" {
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false})
		return
	}

	if event.Event == "message" && event.Data.Message.ID != "" {
		// Step 5: idempotency guard.
		idemKey := fmt.Sprintf("idem:%s:%s", sessionID, event.Data.Message.ID)
		alreadySeen, _, err := h.kv.Get(ctx, idemKey)
		if err != nil {
			h.log.Warn("idempotency check failed, proceeding best-effort", zap.Error(err))
		} else if alreadySeen != "" {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		// Step 6: derive chatKey and route to the coordinator.
		if err := h.coordinator.OnInboundMessage(ctx, sessionID, waAccountID, event.Data.Message.From, event.Data.Message.Body, event.Data.Message.ID); err != nil {
			h.log.Error("route inbound message", zap.String("sessionId", sessionID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false})
			return
		}

		if _, err := h.kv.SetNX(ctx, idemKey, "1", idempotencyTTL); err != nil {
			h.log.Warn("failed to set idempotency key", zap.Error(err))
		}
	}

	if _, err := h.kv.SetNX(ctx, replayKey, "1", replayTTL); err != nil {
		h.log.Warn("failed to set replay key", zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func verifySignature(secret, timestamp string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("\n"))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
