// Package ports declares the narrow interfaces to external collaborators
// named in spec section 6.2-6.3: the WhatsApp gateway, the LLM and
// embeddings providers, the key-value cache, the vector index, and the
// secret-at-rest crypto envelope. Concrete implementations live under
// pkg/whatsapp, internal/llm, internal/vector and internal/crypto.
package ports

import (
	"context"
	"time"
)

// --- Gateway (egress) ---

// SessionStatus reports a WhatsApp gateway session's connection state.
type SessionStatus struct {
	Status string
	QRCode string
}

// WebhookConfig describes where and how the gateway should deliver
// inbound events for a session.
type WebhookConfig struct {
	URL    string
	Events []string
	Secret string
}

// Gateway is the egress port to the external WhatsApp gateway.
type Gateway interface {
	CreateSession(ctx context.Context, sessionID string, webhook WebhookConfig) error
	GetSessionStatus(ctx context.Context, sessionID string) (SessionStatus, error)
	SendMessage(ctx context.Context, sessionID, chatID, text string) error
	SendTyping(ctx context.Context, sessionID, chatID string, duration time.Duration) error
	RestartSession(ctx context.Context, sessionID string) error
}

// --- LLM ---

// ChatMessage is one turn in an LLM chat completion request.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatRequest is the LLM port's chat-completion request shape.
type ChatRequest struct {
	Model            string
	Messages         []ChatMessage
	Temperature      float64
	MaxTokens        int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
}

// Usage reports token accounting for an LLM call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is the LLM port's chat-completion response shape.
type ChatResponse struct {
	Content string
	Usage   Usage
}

// LLM is the port to the large-language-model provider.
type LLM interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// --- Embeddings ---

// EmbedRequest is the embeddings port's request shape; Input may hold one
// or more texts (batched up to 100 per spec section 4.F).
type EmbedRequest struct {
	Model string
	Input []string
}

// EmbedResponse returns one embedding vector per input text, in order.
type EmbedResponse struct {
	Embeddings [][]float32
	Usage      Usage
}

// Embeddings is the port to the embedding-model provider.
type Embeddings interface {
	Embed(ctx context.Context, req EmbedRequest) (EmbedResponse, error)
}

// --- Vector index ---

// VectorMatch is one hit from a vector index query.
type VectorMatch struct {
	VectorID string
	ChunkID  string
	KbID     string
	Score    float32
}

// VectorQuery parameterizes a top-K similarity search scoped to a set of
// knowledge bases.
type VectorQuery struct {
	Vector         []float32
	TopK           int
	ScoreThreshold float32
	KbIDs          []string
}

// Vector is the port to the vector index used for semantic retrieval.
type Vector interface {
	Query(ctx context.Context, q VectorQuery) ([]VectorMatch, error)
}

// --- Key-value cache ---

// KV is the port to the key-value cache used for replay guards,
// idempotency keys, and rate-limit windows.
type KV interface {
	// SetNX sets key to value with the given TTL if and only if it is
	// absent, returning true if this call won the race to set it.
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Incr atomically increments key (creating it at 1 if absent) and
	// applies ttl only on creation, matching a fixed-window counter.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// --- Crypto envelope ---

// Crypto is the port to the secret-at-rest encryption envelope
// (spec section 6.5): AES-256-GCM with a PBKDF2-derived key.
type Crypto interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(envelope string) (string, error)
}
