package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	values map[string]string
	err    error
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: map[string]string{}}
}

func (f *fakeKV) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value
	return true, nil
}

func (f *fakeKV) Get(_ context.Context, key string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeKV) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	var count int64
	fmt.Sscanf(f.values[key], "%d", &count)
	count++
	f.values[key] = fmt.Sprintf("%d", count)
	return count, nil
}

func TestLimiter_AllowsUnderCap(t *testing.T) {
	kv := newFakeKV()
	l := New(kv, 3, false)
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 3; i++ {
		res, err := l.CheckLimit(context.Background(), "chat", "key-a", now)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		require.NoError(t, l.RecordRequest(context.Background(), "chat", "key-a", now))
	}

	res, err := l.CheckLimit(context.Background(), "chat", "key-a", now)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestLimiter_WindowRollsOver(t *testing.T) {
	kv := newFakeKV()
	l := New(kv, 1, false)
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, l.RecordRequest(context.Background(), "chat", "key-a", now))
	res, err := l.CheckLimit(context.Background(), "chat", "key-a", now)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	later := now.Add(90 * time.Second)
	res, err = l.CheckLimit(context.Background(), "chat", "key-a", later)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "a new window must reset the counter")
}

func TestLimiter_FailOpenOnKVError(t *testing.T) {
	kv := newFakeKV()
	kv.err = assert.AnError
	l := New(kv, 1, true)

	res, err := l.CheckLimit(context.Background(), "chat", "key-a", time.Unix(1_700_000_000, 0))
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	assert.NoError(t, l.RecordRequest(context.Background(), "chat", "key-a", time.Unix(1_700_000_000, 0)))
}

func TestLimiter_FailClosedWhenDisabled(t *testing.T) {
	kv := newFakeKV()
	kv.err = assert.AnError
	l := New(kv, 1, false)

	_, err := l.CheckLimit(context.Background(), "chat", "key-a", time.Unix(1_700_000_000, 0))
	assert.Error(t, err)
}

func TestLimiter_KeysArePerOperationAndCredential(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	assert.NotEqual(t, windowKey("chat", "key-a", currentWindowStart(now)), windowKey("embed", "key-a", currentWindowStart(now)))
	assert.NotEqual(t, windowKey("chat", "key-a", currentWindowStart(now)), windowKey("chat", "key-b", currentWindowStart(now)))
}
