package model

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// MockClient provides deterministic local replies when no API key is
// configured. It never proposes tool calls and embeds text by hashing, so
// identical inputs always land on identical vectors.
type MockClient struct {
	dim int
}

func NewMockClient(embeddingDim int) *MockClient {
	if embeddingDim <= 0 {
		embeddingDim = 1536
	}
	return &MockClient{dim: embeddingDim}
}

func (c *MockClient) Complete(ctx context.Context, req Request) (Response, error) {
	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	default:
	}

	var last string
	for _, m := range req.Messages {
		if m.Role == RoleUser {
			last = m.Content
		}
	}
	last = strings.TrimSpace(last)
	if last == "" {
		return Response{Content: "I am listening."}, nil
	}
	return Response{Content: fmt.Sprintf("I heard you: %s", last)}, nil
}

func (c *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	out := make([]float32, c.dim)
	sum := sha256.Sum256([]byte(text))
	seed := binary.BigEndian.Uint64(sum[:8])
	for i := range out {
		seed = seed*6364136223846793005 + 1442695040888963407
		out[i] = float32(int64(seed>>32))/float32(1<<31) - 1
	}
	return out, nil
}
