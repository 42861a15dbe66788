// Package qdrant adapts github.com/qdrant/go-client to ports.Vector, one
// Qdrant collection per knowledge base (kb_{kbId}), per SPEC_FULL.md
// section 4.F.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/qdrant/go-client/qdrant"

	"github.com/wa-agent/backend/internal/apperr"
	"github.com/wa-agent/backend/internal/ports"
)

// Client wraps a Qdrant gRPC client.
type Client struct {
	conn *qdrant.Client
}

var _ ports.Vector = (*Client)(nil)

// NewClient connects to a Qdrant instance at rawURL (a URL such as
// http://host:port; an https or qdrants scheme enables TLS, and the port
// defaults to 6334). apiKey, when non-empty, is sent with every call;
// query parameters in rawURL are ignored.
func NewClient(rawURL, apiKey string) (*Client, error) {
	host, port, useTLS, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	cfg := &qdrant.Config{Host: host, Port: port, UseTLS: useTLS}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}

	conn, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	return &Client{conn: conn}, nil
}

func parseURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, false, fmt.Errorf("parse qdrant url: %w", err)
	}
	host = u.Hostname()
	port = 6334
	if u.Port() != "" {
		if _, err := fmt.Sscanf(u.Port(), "%d", &port); err != nil {
			return "", 0, false, fmt.Errorf("parse qdrant port: %w", err)
		}
	}
	useTLS = u.Scheme == "https" || u.Scheme == "qdrants"
	return host, port, useTLS, nil
}

func collectionName(kbID string) string {
	return "kb_" + kbID
}

// Query implements ports.Vector: it fans out one Query call per knowledge
// base collection named in q.KbIDs, then merges and truncates to the
// requested top-K, since Qdrant collections here are scoped per
// knowledge base rather than shared with a payload filter.
func (c *Client) Query(ctx context.Context, q ports.VectorQuery) ([]ports.VectorMatch, error) {
	var all []ports.VectorMatch
	for _, kbID := range q.KbIDs {
		points, err := c.conn.Query(ctx, &qdrant.QueryPoints{
			CollectionName: collectionName(kbID),
			Query:          qdrant.NewQuery(q.Vector...),
			Limit:          qdrant.PtrOf(uint64(q.TopK)),
			ScoreThreshold: qdrant.PtrOf(q.ScoreThreshold),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, apperr.New(apperr.ClassTransient, fmt.Errorf("query collection %s: %w", collectionName(kbID), err))
		}

		for _, p := range points {
			chunkID := ""
			if v, ok := p.Payload["chunk_id"]; ok {
				chunkID = v.GetStringValue()
			}
			all = append(all, ports.VectorMatch{
				VectorID: pointIDString(p.Id),
				ChunkID:  chunkID,
				KbID:     kbID,
				Score:    p.Score,
			})
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if len(all) > q.TopK {
		all = all[:q.TopK]
	}
	return all, nil
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}
