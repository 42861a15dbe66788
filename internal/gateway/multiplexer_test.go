package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wa-agent/backend/internal/ports"
)

type fakeResolver struct {
	calls int
	urls  map[string]string
	keys  map[string]string
	err   error
}

func (f *fakeResolver) GatewayCredentials(_ context.Context, sessionID string) (string, string, error) {
	f.calls++
	if f.err != nil {
		return "", "", f.err
	}
	return f.urls[sessionID], f.keys[sessionID], nil
}

func TestMultiplexer_ClientFor_CachesPerSession(t *testing.T) {
	resolver := &fakeResolver{
		urls: map[string]string{"sess-1": "https://gw-1.example.com", "sess-2": "https://gw-2.example.com"},
		keys: map[string]string{"sess-1": "key-1", "sess-2": "key-2"},
	}
	m := New(resolver)

	c1, err := m.clientFor(context.Background(), "sess-1")
	require.NoError(t, err)
	c1Again, err := m.clientFor(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Same(t, c1, c1Again)
	require.Equal(t, 1, resolver.calls)

	c2, err := m.clientFor(context.Background(), "sess-2")
	require.NoError(t, err)
	require.NotSame(t, c1, c2)
	require.Equal(t, 2, resolver.calls)
}

func TestMultiplexer_ClientFor_PropagatesResolverError(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("session not found")}
	m := New(resolver)

	_, err := m.clientFor(context.Background(), "sess-missing")
	require.Error(t, err)
}

func TestMultiplexer_Forget_ForcesReResolve(t *testing.T) {
	resolver := &fakeResolver{
		urls: map[string]string{"sess-1": "https://gw-1.example.com"},
		keys: map[string]string{"sess-1": "key-1"},
	}
	m := New(resolver)

	_, err := m.clientFor(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, 1, resolver.calls)

	m.Forget("sess-1")

	_, err = m.clientFor(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, 2, resolver.calls)
}

var _ ports.Gateway = (*Multiplexer)(nil)
