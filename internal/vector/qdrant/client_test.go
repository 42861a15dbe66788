package qdrant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseURL_PlainHostPort(t *testing.T) {
	host, port, useTLS, err := parseURL("http://localhost:6334")
	require.NoError(t, err)
	require.Equal(t, "localhost", host)
	require.Equal(t, 6334, port)
	require.False(t, useTLS)
}

func TestParseURL_DefaultsPortWhenMissing(t *testing.T) {
	host, port, useTLS, err := parseURL("http://qdrant.internal")
	require.NoError(t, err)
	require.Equal(t, "qdrant.internal", host)
	require.Equal(t, 6334, port)
	require.False(t, useTLS)
}

func TestParseURL_HTTPSSchemeEnablesTLS(t *testing.T) {
	_, _, useTLS, err := parseURL("https://qdrant.example.com:6334")
	require.NoError(t, err)
	require.True(t, useTLS)
}

func TestParseURL_QdrantsSchemeEnablesTLS(t *testing.T) {
	_, _, useTLS, err := parseURL("qdrants://qdrant.example.com:6334")
	require.NoError(t, err)
	require.True(t, useTLS)
}

func TestCollectionName_PrefixesKbID(t *testing.T) {
	require.Equal(t, "kb_abc123", collectionName("abc123"))
}
