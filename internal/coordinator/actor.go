package coordinator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wa-agent/backend/internal/clock"
	"github.com/wa-agent/backend/internal/intervention"
	"github.com/wa-agent/backend/internal/models"
)

// chatActor is the single-threaded-per-chat state machine described in
// spec.md section 4.D: buffer, mergeDeadline, lastTurn.
type chatActor struct {
	chatKey     string
	waSessionID string

	bgCtx         context.Context
	clock         clock.Clock
	conversations ConversationStore
	messages      MessageStore
	jobs          JobEnqueuer
	audit         AuditLog
	control       *intervention.Controller
	onFlushError  func(chatKey string, err error)

	mu            sync.Mutex
	lastTurn      int
	buffer        []string
	mergeDeadline time.Time
	lastActivity  time.Time
	flushWG       sync.WaitGroup
}

func newChatActor(
	bgCtx context.Context,
	chatKey, waSessionID string,
	lastTurn int,
	clk clock.Clock,
	conversations ConversationStore,
	messages MessageStore,
	jobs JobEnqueuer,
	audit AuditLog,
	control *intervention.Controller,
	onFlushError func(chatKey string, err error),
) *chatActor {
	return &chatActor{
		chatKey:       chatKey,
		waSessionID:   waSessionID,
		bgCtx:         bgCtx,
		lastTurn:      lastTurn,
		clock:         clk,
		conversations: conversations,
		messages:      messages,
		jobs:          jobs,
		audit:         audit,
		control:       control,
		onFlushError:  onFlushError,
		lastActivity:  clk.Now(),
	}
}

func (a *chatActor) busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer) > 0
}

func (a *chatActor) idleSince(now time.Time) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.buffer) > 0 {
		return 0
	}
	return now.Sub(a.lastActivity)
}

// onInboundMessage implements spec.md section 4.D's numbered contract.
//
// A message that will be merged into a later flush must not be persisted
// ahead of time under a provisional turn: every raw message buffered
// within the same merge window shares the turn that flush eventually
// commits, and uq_messages_chat_turn_role allows only one user-role row
// per (chatKey, turn). Intervention and suppression outcomes are decided
// before anything is written, and only a message that will never be
// folded into a flush claims its own turn immediately.
func (a *chatActor) onInboundMessage(ctx context.Context, text, messageID string) error {
	outcome, err := a.control.HandlePunctuationControl(ctx, a.chatKey, text)
	if err != nil {
		return err
	}
	if outcome != intervention.NoChange {
		if err := a.audit.RecordInterventionAudit(ctx, a.chatKey, outcome); err != nil {
			return err
		}
		return a.persistStandaloneMessage(ctx, messageID, text, models.MessageStatusCompleted)
	}

	shouldReply, err := a.control.ShouldAutoReply(ctx, a.chatKey)
	if err != nil {
		return err
	}
	if !shouldReply {
		return a.persistStandaloneMessage(ctx, messageID, text, models.MessageStatusSuppressed)
	}

	return a.appendAndMaybeFlush(ctx, text)
}

// persistStandaloneMessage records a message that will never be merged
// into a flush (punctuation-control marker or a suppressed turn). It
// claims and commits the next turn immediately, the same way flush does,
// so the turn is never reused by a later flush.
func (a *chatActor) persistStandaloneMessage(ctx context.Context, messageID, text, status string) error {
	a.mu.Lock()
	turn := a.lastTurn + 1
	a.lastTurn = turn
	a.lastActivity = a.clock.Now()
	a.mu.Unlock()

	msg := &models.Message{
		ID:      messageID,
		ChatKey: a.chatKey,
		Turn:    turn,
		Role:    models.RoleUser,
		Text:    text,
		Status:  status,
		Ts:      a.clock.Now(),
	}
	if err := a.messages.InsertMessage(ctx, msg); err != nil {
		return err
	}
	return a.conversations.AdvanceTurn(ctx, a.chatKey, turn)
}

// appendAndMaybeFlush appends text to the merge buffer and (re)starts
// the 2-second merge deadline. The deadline wait runs on a background
// goroutine scoped to the coordinator's lifetime, not the inbound
// request's context, so a webhook handler returns immediately instead
// of holding the connection open for the whole merge window.
func (a *chatActor) appendAndMaybeFlush(ctx context.Context, text string) error {
	a.mu.Lock()
	a.buffer = append(a.buffer, text)
	a.lastActivity = a.clock.Now()
	deadline := a.lastActivity.Add(mergeWindow)
	a.mergeDeadline = deadline
	a.mu.Unlock()

	a.flushWG.Add(1)
	go func() {
		defer a.flushWG.Done()
		select {
		case <-a.clock.After(mergeWindow):
		case <-a.bgCtx.Done():
			return
		}
		if err := a.flush(a.bgCtx, deadline); err != nil && a.onFlushError != nil {
			a.onFlushError(a.chatKey, err)
		}
	}()

	return nil
}

// waitFlushes blocks until every in-flight merge-window timer for this
// actor has fired. Used by tests; production callers never need it.
func (a *chatActor) waitFlushes() {
	a.flushWG.Wait()
}

// flush drains the buffer if the merge deadline that triggered this
// flush is still the most recent one (a later message may have pushed
// mergeDeadline forward, in which case this flush is a no-op and the
// later timer owns the drain).
func (a *chatActor) flush(ctx context.Context, expectedDeadline time.Time) error {
	a.mu.Lock()
	if !a.mergeDeadline.Equal(expectedDeadline) || len(a.buffer) == 0 {
		a.mu.Unlock()
		return nil
	}
	merged := strings.Join(a.buffer, " ")
	a.buffer = nil
	turn := a.lastTurn + 1
	a.lastTurn = turn
	a.lastActivity = a.clock.Now()
	a.mu.Unlock()

	msg, err := models.NewMessage(a.chatKey, turn, models.RoleUser, merged)
	if err != nil {
		return err
	}
	msg.Status = models.MessageStatusCompleted
	msg.Ts = a.clock.Now()
	if err := a.messages.InsertMessage(ctx, msg); err != nil {
		return err
	}

	if err := a.conversations.AdvanceTurn(ctx, a.chatKey, turn); err != nil {
		return err
	}
	return a.jobs.EnqueueRetrieve(ctx, a.chatKey, turn, merged)
}
