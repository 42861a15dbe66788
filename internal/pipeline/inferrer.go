package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/wa-agent/backend/internal/apperr"
	"github.com/wa-agent/backend/internal/models"
	"github.com/wa-agent/backend/internal/ports"
)

// defaultHistoryWindow bounds how many prior messages are loaded per turn
// (spec section 4.G step 1, design note §9.2: "N = 20, configurable").
const defaultHistoryWindow = 20

// defaultEncoding is used when the agent's model has no registered
// tiktoken encoding (spec section 4.G expansion, token-accounting
// fallback).
const defaultEncoding = "cl100k_base"

// HistoryStore loads prior turns of a chat for inference context.
type HistoryStore interface {
	LoadHistory(ctx context.Context, chatKey string, limit int) ([]models.Message, error)
}

// AssistantMessageWriter persists the assistant's reply message.
type AssistantMessageWriter interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
}

// UsageRecorder records LLM token accounting per turn (spec section
// 4.G step 4: "Record token usage").
type UsageRecorder interface {
	RecordUsage(ctx context.Context, chatKey string, turn int, usage ports.Usage) error
}

// Inferrer implements spec.md section 4.G.
type Inferrer struct {
	agents        AgentResolver
	history       HistoryStore
	llm           ports.LLM
	messages      AssistantMessageWriter
	usage         UsageRecorder
	historyWindow int
	queue         *Queue
}

// NewInferrer constructs an Inferrer. historyWindow <= 0 falls back to
// the spec default of 20.
func NewInferrer(agents AgentResolver, history HistoryStore, llm ports.LLM, messages AssistantMessageWriter, usage UsageRecorder, historyWindow int, queue *Queue) *Inferrer {
	if historyWindow <= 0 {
		historyWindow = defaultHistoryWindow
	}
	return &Inferrer{agents: agents, history: history, llm: llm, messages: messages, usage: usage, historyWindow: historyWindow, queue: queue}
}

// OnFinalFailure is a no-op for the infer stage (spec section 4.G: a
// failed inference simply never reaches the reply stage).
func (inf *Inferrer) OnFinalFailure(ctx context.Context, job *models.Job) error { return nil }

// Handle implements the StageHandler contract for the infer stage.
func (inf *Inferrer) Handle(ctx context.Context, job *models.Job) (interface{}, error) {
	var payload models.InferPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, apperr.New(apperr.ClassFatal, err)
	}

	agent, err := inf.agents.AgentForChat(ctx, payload.ChatKey)
	if err != nil {
		return nil, err
	}

	history, err := inf.history.LoadHistory(ctx, payload.ChatKey, inf.historyWindow)
	if err != nil {
		return nil, err
	}

	messages := composeMessages(agent, payload, history)

	resp, err := inf.llm.Chat(ctx, ports.ChatRequest{
		Model:       agent.Model,
		Messages:    messages,
		Temperature: agent.Temperature,
		MaxTokens:   agent.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	usage := resp.Usage
	if usage.TotalTokens == 0 {
		usage = estimateUsage(agent.Model, messages, resp.Content)
	}
	if err := inf.usage.RecordUsage(ctx, payload.ChatKey, payload.Turn, usage); err != nil {
		return nil, err
	}

	assistantMsg, err := models.NewMessage(payload.ChatKey, payload.Turn, models.RoleAssistant, resp.Content)
	if err != nil {
		return nil, apperr.New(apperr.ClassFatal, err)
	}
	if err := assistantMsg.TransitionTo(models.MessageStatusProcessing); err != nil {
		return nil, apperr.New(apperr.ClassFatal, err)
	}
	if err := inf.messages.InsertMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}

	replyPayload := models.ReplyPayload{
		ChatKey:    payload.ChatKey,
		Turn:       payload.Turn,
		AIResponse: resp.Content,
	}
	if err := inf.queue.enqueueReply(ctx, replyPayload); err != nil {
		return nil, err
	}
	return replyPayload, nil
}

// composeMessages builds the chat-completion message list per spec
// section 4.G step 2: system prompt + serialized retrieved context,
// then history, then the current user turn.
func composeMessages(agent *models.Agent, payload models.InferPayload, history []models.Message) []ports.ChatMessage {
	var systemContent strings.Builder
	systemContent.WriteString(agent.PromptSystem)
	if len(payload.Context) > 0 {
		if raw, err := json.Marshal(payload.Context); err == nil {
			systemContent.WriteString("\n\n")
			systemContent.Write(raw)
		}
	}

	out := make([]ports.ChatMessage, 0, len(history)+2)
	out = append(out, ports.ChatMessage{Role: "system", Content: systemContent.String()})
	for _, m := range history {
		role := m.Role
		if role == models.RoleHuman {
			role = models.RoleAssistant
		}
		out = append(out, ports.ChatMessage{Role: role, Content: m.Text})
	}
	out = append(out, ports.ChatMessage{Role: models.RoleUser, Content: payload.UserMessage})
	return out
}

// estimateUsage falls back to tiktoken-go counting when the provider
// omits usage accounting (SPEC_FULL.md §4.G expansion).
func estimateUsage(model string, messages []ports.ChatMessage, completion string) ports.Usage {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			return ports.Usage{}
		}
	}

	promptTokens := 0
	for _, m := range messages {
		promptTokens += len(enc.Encode(m.Content, nil, nil))
	}
	completionTokens := len(enc.Encode(completion, nil, nil))

	return ports.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}
