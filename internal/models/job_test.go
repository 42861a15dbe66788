package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewJob_Success(t *testing.T) {
	j, err := NewJob("acct:chat-1", 1, StageRetrieve, RetrievePayload{ChatKey: "acct:chat-1", Turn: 1, MergedText: "hi"})
	require.NoError(t, err)
	require.NotEmpty(t, j.ID)
	require.Equal(t, JobStatusPending, j.Status)
	require.Equal(t, StageRetrieve, j.Stage)

	var decoded RetrievePayload
	require.NoError(t, j.DecodePayload(&decoded))
	require.Equal(t, "hi", decoded.MergedText)
}

func TestNewJob_RejectsEmptyChatKey(t *testing.T) {
	_, err := NewJob("", 0, StageRetrieve, nil)
	require.Error(t, err)
}

func TestNewJob_RejectsNegativeTurn(t *testing.T) {
	_, err := NewJob("acct:chat-1", -1, StageRetrieve, nil)
	require.Error(t, err)
}

func TestNewJob_RejectsInvalidStage(t *testing.T) {
	_, err := NewJob("acct:chat-1", 0, "bogus", nil)
	require.Error(t, err)
}

func TestJob_SetResultAndDecodeResult(t *testing.T) {
	j, err := NewJob("acct:chat-1", 0, StageReply, ReplyPayload{ChatKey: "acct:chat-1", Turn: 0, AIResponse: "hi"})
	require.NoError(t, err)

	require.NoError(t, j.SetResult(ReplyResult{SentSegmentCount: 2}))

	var result ReplyResult
	require.NoError(t, j.DecodeResult(&result))
	require.Equal(t, 2, result.SentSegmentCount)
}

func TestJob_DecodeResult_EmptyResultLeavesZeroValue(t *testing.T) {
	j := &Job{}
	var result ReplyResult
	require.NoError(t, j.DecodeResult(&result))
	require.Equal(t, ReplyResult{}, result)
}
