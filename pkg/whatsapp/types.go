// Package whatsapp implements the ports.Gateway egress client against the
// external WhatsApp gateway's REST API (spec section 6.2). Inbound webhook
// parsing and signature verification live in internal/handlers, not here.
package whatsapp

import "time"

// createSessionRequest is the wire body for POST /sessions.
type createSessionRequest struct {
	SessionID string         `json:"sessionId"`
	Webhook   webhookPayload `json:"webhook"`
}

type webhookPayload struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

// sessionStatusResponse is the wire body for GET /sessions/{id}.
type sessionStatusResponse struct {
	Status string `json:"status"`
	QRCode string `json:"qrCode,omitempty"`
}

// sendMessageRequest is the wire body for POST /sessions/{id}/messages.
type sendMessageRequest struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

// sendTypingRequest is the wire body for POST /sessions/{id}/typing.
type sendTypingRequest struct {
	ChatID     string `json:"chatId"`
	DurationMs int64  `json:"durationMs"`
}

// apiError is the gateway's error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// apiErrorEnvelope wraps apiError as the gateway returns it on non-2xx.
type apiErrorEnvelope struct {
	Error apiError `json:"error"`
}

// RateLimitInfo mirrors the gateway's rate-limit response headers. The
// Client does not populate it; a 429 response is classified from its
// Retry-After header alone.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	Reset     time.Time
}
