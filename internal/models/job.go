package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Job stages, executed in order per (chatKey, turn).
const (
	StageRetrieve = "retrieve"
	StageInfer    = "infer"
	StageReply    = "reply"
)

// Job statuses.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusSuppressed = "suppressed"
)

// Job is a unit of pipeline work. For a given (chatKey, turn, stage) at
// most one job is pending|processing|completed; a failed terminal may
// coexist with a replacement upon explicit retry; suppressed is terminal.
type Job struct {
	ID           string
	ChatKey      string
	Turn         int
	Stage        string
	Status       string
	Attempt      int
	Payload      json.RawMessage
	Result       json.RawMessage
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewJob constructs a pending Job for the given stage, serializing payload
// as its opaque JSON blob.
func NewJob(chatKey string, turn int, stage string, payload interface{}) (*Job, error) {
	if chatKey == "" {
		return nil, errors.New("chatKey is required")
	}
	if turn < 0 {
		return nil, errors.New("turn must be >= 0")
	}
	switch stage {
	case StageRetrieve, StageInfer, StageReply:
	default:
		return nil, errors.New("invalid job stage")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		ChatKey:   chatKey,
		Turn:      turn,
		Stage:     stage,
		Status:    JobStatusPending,
		Payload:   raw,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// RetrievePayload is the opaque payload of a retrieve-stage job.
type RetrievePayload struct {
	ChatKey    string `json:"chatKey"`
	Turn       int    `json:"turn"`
	MergedText string `json:"mergedText"`
}

// ChunkRef is a hydrated knowledge-base chunk attached to an infer job.
type ChunkRef struct {
	ChunkID string  `json:"chunkId"`
	KbID    string  `json:"kbId"`
	Text    string  `json:"text"`
	Score   float32 `json:"score"`
}

// InferPayload is the opaque payload of an infer-stage job.
type InferPayload struct {
	ChatKey     string     `json:"chatKey"`
	Turn        int        `json:"turn"`
	UserMessage string     `json:"userMessage"`
	Context     []ChunkRef `json:"context"`
}

// ReplyPayload is the opaque payload of a reply-stage job.
type ReplyPayload struct {
	ChatKey    string `json:"chatKey"`
	Turn       int    `json:"turn"`
	AIResponse string `json:"aiResponse"`
}

// ReplyResult is the opaque result of a reply-stage job, tracking how many
// segments were already sent so a retry resumes rather than resending.
type ReplyResult struct {
	SentSegmentCount int `json:"sentSegmentCount"`
}

// DecodePayload unmarshals the job's payload into dst.
func (j *Job) DecodePayload(dst interface{}) error {
	return json.Unmarshal(j.Payload, dst)
}

// DecodeResult unmarshals the job's result into dst. An empty result
// decodes to the zero value of dst.
func (j *Job) DecodeResult(dst interface{}) error {
	if len(j.Result) == 0 {
		return nil
	}
	return json.Unmarshal(j.Result, dst)
}

// SetResult serializes v as the job's result blob.
func (j *Job) SetResult(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	j.Result = raw
	return nil
}
