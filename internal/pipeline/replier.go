package pipeline

import (
	"context"
	"time"

	"github.com/wa-agent/backend/internal/clock"
	"github.com/wa-agent/backend/internal/intervention"
	"github.com/wa-agent/backend/internal/models"
	"github.com/wa-agent/backend/internal/ports"
	"github.com/wa-agent/backend/internal/segment"
)

// ChatResolver maps a chatKey back to the gateway session and remote
// chat id needed to address the outbound send (the inverse of
// models.ChatKey).
type ChatResolver interface {
	ResolveChat(ctx context.Context, chatKey string) (waSessionID, remoteChatID string, err error)
}

// AssistantMessageUpdater transitions the assistant message for a given
// turn once the reply has been sent (or suppressed).
type AssistantMessageUpdater interface {
	MarkAssistantMessageStatus(ctx context.Context, chatKey string, turn int, status string) error
}

// Replier implements spec.md section 4.H.
type Replier struct {
	gateway   ports.Gateway
	resolver  ChatResolver
	messages  AssistantMessageUpdater
	clock     clock.Clock
	segmenter segment.Segmenter
}

// NewReplier constructs a Replier.
func NewReplier(gateway ports.Gateway, resolver ChatResolver, messages AssistantMessageUpdater, clk clock.Clock, segmenter segment.Segmenter) *Replier {
	return &Replier{gateway: gateway, resolver: resolver, messages: messages, clock: clk, segmenter: segmenter}
}

// Handle implements the StageHandler contract for the reply stage. The
// generic suppression gate (spec section 4.E) runs in the worker before
// Handle is invoked, which also satisfies section 4.H step 1's re-check.
func (r *Replier) Handle(ctx context.Context, job *models.Job) (interface{}, error) {
	var payload models.ReplyPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	var prior models.ReplyResult
	if err := job.DecodeResult(&prior); err != nil {
		return nil, err
	}

	waSessionID, remoteChatID, err := r.resolver.ResolveChat(ctx, payload.ChatKey)
	if err != nil {
		return nil, err
	}

	trimmed := intervention.SafeTrim(payload.AIResponse)
	segments := r.segmenter.Segment(trimmed)

	sent := prior.SentSegmentCount
	for i := sent; i < len(segments); i++ {
		text := segments[i]

		typingDuration := r.segmenter.TypingDuration(text)
		if err := r.gateway.SendTyping(ctx, waSessionID, remoteChatID, typingDuration); err != nil {
			return models.ReplyResult{SentSegmentCount: i}, err
		}

		min, max := r.segmenter.PaceRange()
		paceMs := r.clock.IntnRange(min, max+1)
		r.clock.Sleep(time.Duration(paceMs) * time.Millisecond)

		if err := r.gateway.SendMessage(ctx, waSessionID, remoteChatID, text); err != nil {
			return models.ReplyResult{SentSegmentCount: i}, err
		}

		if i != len(segments)-1 {
			r.clock.Sleep(r.segmenter.InterSegmentDelay())
		}
	}

	if err := r.messages.MarkAssistantMessageStatus(ctx, payload.ChatKey, payload.Turn, models.MessageStatusCompleted); err != nil {
		return models.ReplyResult{SentSegmentCount: len(segments)}, err
	}
	return models.ReplyResult{SentSegmentCount: len(segments)}, nil
}

// OnFinalFailure marks the assistant message failed once the reply job
// exhausts its retries (spec section 4.H "Failure": "mark the message
// failed").
func (r *Replier) OnFinalFailure(ctx context.Context, job *models.Job) error {
	var payload models.ReplyPayload
	if err := job.DecodePayload(&payload); err != nil {
		return err
	}
	return r.messages.MarkAssistantMessageStatus(ctx, payload.ChatKey, payload.Turn, models.MessageStatusFailed)
}
