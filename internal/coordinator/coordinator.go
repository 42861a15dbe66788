// Package coordinator implements the per-chat session coordinator (spec
// section 4.D): one logical actor per chatKey, single-threaded with
// respect to its own chat, responsible for punctuation control,
// suppression, and merge-window coalescing of inbound messages into
// turns. Grounded on the teacher's internal/queue.MessageConsumer
// goroutine-per-partition shape, adapted from per-queue workers to
// per-chatKey actors.
package coordinator

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wa-agent/backend/internal/clock"
	"github.com/wa-agent/backend/internal/intervention"
	"github.com/wa-agent/backend/internal/models"
)

const mergeWindow = 2 * time.Second

// ConversationStore is the slice of the SQL port the coordinator needs
// to rebuild lastTurn after a crash/restart (spec section 4.D).
type ConversationStore interface {
	GetOrCreateConversation(ctx context.Context, waSessionID, waAccountID, remoteChatID string) (*models.Conversation, error)
	AdvanceTurn(ctx context.Context, chatKey string, turn int) error
}

// MessageStore persists the inbound message and its status transitions.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
	MarkMessageStatus(ctx context.Context, id, status string) error
}

// JobEnqueuer emits the first-stage retrieve job for a coalesced turn.
type JobEnqueuer interface {
	EnqueueRetrieve(ctx context.Context, chatKey string, turn int, mergedText string) error
}

// AuditLog records punctuation-control pause/resume events.
type AuditLog interface {
	RecordInterventionAudit(ctx context.Context, chatKey string, outcome intervention.Outcome) error
}

// Coordinator owns the registry of per-chat actors.
type Coordinator struct {
	mu            sync.Mutex
	actors        map[string]*chatActor
	lru           *lru.Cache[string, struct{}]
	idleTTL       time.Duration
	bgCtx         context.Context
	clock         clock.Clock
	conversations ConversationStore
	messages      MessageStore
	jobs          JobEnqueuer
	audit         AuditLog
	control       *intervention.Controller
	onFlushError  func(chatKey string, err error)
}

// New constructs a Coordinator. bgCtx scopes the merge-window timer
// goroutines; it should live as long as the process, not as long as any
// single inbound request. idleTTL bounds how long an actor with an
// empty buffer survives before being evicted from the in-memory registry
// (spec.md section 4.D's "rebuilt from SQL ... on the next inbound
// message" crash/restart contract doubles as the eviction recovery
// path). onFlushError may be nil; pass a logger callback in production.
func New(
	bgCtx context.Context,
	clk clock.Clock,
	conversations ConversationStore,
	messages MessageStore,
	jobs JobEnqueuer,
	audit AuditLog,
	control *intervention.Controller,
	idleTTL time.Duration,
	onFlushError func(chatKey string, err error),
) *Coordinator {
	c := &Coordinator{
		actors:        make(map[string]*chatActor),
		idleTTL:       idleTTL,
		bgCtx:         bgCtx,
		clock:         clk,
		conversations: conversations,
		messages:      messages,
		jobs:          jobs,
		audit:         audit,
		control:       control,
		onFlushError:  onFlushError,
	}
	// No onEvict callback: capacity eviction here would fire synchronously
	// inside Add, while c.mu may already be held by the caller. Idle
	// eviction is driven entirely by IdleSweep's time-based check; the
	// cache itself only tracks recency for that sweep.
	cache, _ := lru.New[string, struct{}](1 << 20)
	c.lru = cache
	return c
}

// evict drops an idle actor from the registry. Safe to call even if the
// actor has pending work: getOrCreateActor will recreate it and the SQL
// lastTurn is always the source of truth.
func (c *Coordinator) evict(chatKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.actors[chatKey]; ok && !a.busy() {
		delete(c.actors, chatKey)
	}
}

func (c *Coordinator) getOrCreateActor(ctx context.Context, waSessionID, waAccountID, remoteChatID string) (*chatActor, error) {
	chatKey := models.ChatKey(waAccountID, remoteChatID)

	c.mu.Lock()
	if a, ok := c.actors[chatKey]; ok {
		c.lru.Add(chatKey, struct{}{})
		c.mu.Unlock()
		return a, nil
	}
	c.mu.Unlock()

	conv, err := c.conversations.GetOrCreateConversation(ctx, waSessionID, waAccountID, remoteChatID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.actors[chatKey]; ok {
		c.lru.Add(chatKey, struct{}{})
		return a, nil
	}

	a := newChatActor(c.bgCtx, chatKey, waSessionID, conv.LastTurn, c.clock, c.conversations, c.messages, c.jobs, c.audit, c.control, c.onFlushError)
	c.actors[chatKey] = a
	c.lru.Add(chatKey, struct{}{})
	return a, nil
}

// OnInboundMessage implements spec.md section 4.D's onInboundMessage
// contract, routing to the chatKey's actor.
func (c *Coordinator) OnInboundMessage(ctx context.Context, waSessionID, waAccountID, remoteChatID, text, messageID string) error {
	a, err := c.getOrCreateActor(ctx, waSessionID, waAccountID, remoteChatID)
	if err != nil {
		return err
	}
	return a.onInboundMessage(ctx, text, messageID)
}

// WaitForChat blocks until the named chat's actor has no in-flight merge-
// window timers. It is a test seam: with a clock.Fake, a merge window
// resolves synchronously but still runs on the actor's goroutine, so
// assertions need a way to wait for it deterministically.
func (c *Coordinator) WaitForChat(waAccountID, remoteChatID string) {
	chatKey := models.ChatKey(waAccountID, remoteChatID)
	c.mu.Lock()
	a, ok := c.actors[chatKey]
	c.mu.Unlock()
	if ok {
		a.waitFlushes()
	}
}

// IdleSweep evicts actors with an empty buffer that have been idle past
// idleTTL. Intended to be called periodically by cmd/server.
func (c *Coordinator) IdleSweep() {
	now := c.clock.Now()
	c.mu.Lock()
	var stale []string
	for chatKey, a := range c.actors {
		if a.idleSince(now) >= c.idleTTL {
			stale = append(stale, chatKey)
		}
	}
	c.mu.Unlock()

	for _, chatKey := range stale {
		c.evict(chatKey)
	}
}
