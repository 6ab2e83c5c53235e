package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/ent0n29/penny/internal/model"
	"github.com/ent0n29/penny/internal/store"
)

// vectorClient embeds by keyword lookup so ranking is deterministic.
type vectorClient struct {
	vectors  map[string][]float32
	embedErr error
}

func (c *vectorClient) Complete(_ context.Context, _ model.Request) (model.Response, error) {
	return model.Response{Content: "ok"}, nil
}

func (c *vectorClient) Embed(_ context.Context, text string) ([]float32, error) {
	if c.embedErr != nil {
		return nil, c.embedErr
	}
	if v, ok := c.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func seedDocs(t *testing.T, st store.Store, docs []store.Document) {
	t.Helper()
	for _, d := range docs {
		if err := st.UpsertDocument(context.Background(), d); err != nil {
			t.Fatalf("UpsertDocument: %v", err)
		}
	}
}

func TestSearchFallsBackToBruteForceRanking(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &vectorClient{vectors: map[string][]float32{
		"bond ladder": {1, 0, 0},
	}}
	seedDocs(t, st, []store.Document{
		{UserID: "u1", Source: "gmail", SourceID: "a", Content: "kitten pictures", Embedding: []float32{0, 1, 0}},
		{UserID: "u1", Source: "gmail", SourceID: "b", Content: "bond ladder strategy", Embedding: []float32{0.9, 0.1, 0}},
		{UserID: "u1", Source: "gmail", SourceID: "c", Content: "mixed portfolio", Embedding: []float32{0.5, 0.5, 0}},
	})

	r := NewRetriever(st, client, 3)
	hits := r.Search(context.Background(), "u1", "bond ladder", 2)
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	if hits[0].SourceID != "b" {
		t.Fatalf("top hit = %q, want closest doc b", hits[0].SourceID)
	}
	if hits[1].SourceID != "c" {
		t.Fatalf("second hit = %q, want c", hits[1].SourceID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Fatalf("scores not descending: %v then %v", hits[0].Score, hits[1].Score)
	}
}

func TestSearchIsolatesUsers(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &vectorClient{}
	seedDocs(t, st, []store.Document{
		{UserID: "other", Source: "gmail", SourceID: "x", Content: "private", Embedding: []float32{0, 0, 1}},
	})

	r := NewRetriever(st, client, 3)
	if hits := r.Search(context.Background(), "u1", "anything", 5); len(hits) != 0 {
		t.Fatalf("len(hits) = %d for user without documents, want 0", len(hits))
	}
}

func TestSearchSurvivesEmbeddingFailure(t *testing.T) {
	st := store.NewInMemoryStore()
	client := &vectorClient{embedErr: errors.New("rate limit exceeded")}
	seedDocs(t, st, []store.Document{
		{UserID: "u1", Source: "gmail", SourceID: "a", Content: "something", Embedding: []float32{1, 0, 0}},
	})

	r := NewRetriever(st, client, 3)
	hits := r.Search(context.Background(), "u1", "query", 5)
	// Zero query vector scores everything at zero but must not error out.
	if len(hits) != 1 {
		t.Fatalf("len(hits) = %d, want 1", len(hits))
	}
	if hits[0].Score != 0 {
		t.Fatalf("Score = %v with zero query vector, want 0", hits[0].Score)
	}
}
