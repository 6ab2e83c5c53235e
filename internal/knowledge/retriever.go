package knowledge

import (
	"context"
	"log"
	"sort"

	"github.com/viterin/vek/vek32"

	"github.com/ent0n29/penny/internal/model"
	"github.com/ent0n29/penny/internal/store"
)

// Snippet is one ranked knowledge-base hit.
type Snippet struct {
	Content  string  `json:"content"`
	Source   string  `json:"source"`
	SourceID string  `json:"source_id"`
	Score    float64 `json:"score,omitempty"`
}

// Retriever answers free-text queries against a user's ingested documents.
// It degrades instead of failing: a rate-limited embedding call is replaced
// with a zero vector, and a broken vector backend falls back to a brute-force
// cosine scan, so the turn pipeline always proceeds.
type Retriever struct {
	store        store.Store
	client       model.Client
	embeddingDim int
	scanLimit    int
}

func NewRetriever(st store.Store, client model.Client, embeddingDim int) *Retriever {
	if embeddingDim <= 0 {
		embeddingDim = 1536
	}
	return &Retriever{
		store:        st,
		client:       client,
		embeddingDim: embeddingDim,
		scanLimit:    1000,
	}
}

// Search returns up to k snippets ranked by relevance. It never returns an
// error; degraded lookups yield empty or low-relevance results.
func (r *Retriever) Search(ctx context.Context, userID, query string, k int) []Snippet {
	if k <= 0 {
		k = 5
	}

	qvec := r.embedQuery(ctx, query)

	docs, err := r.store.SearchDocuments(ctx, userID, qvec, k)
	if err == nil {
		out := make([]Snippet, 0, len(docs))
		for _, d := range docs {
			out = append(out, Snippet{Content: d.Content, Source: d.Source, SourceID: d.SourceID})
		}
		return out
	}

	return r.bruteForce(ctx, userID, qvec, k)
}

func (r *Retriever) embedQuery(ctx context.Context, query string) []float32 {
	qvec, err := r.client.Embed(ctx, query)
	if err == nil {
		return qvec
	}
	if model.IsRateLimited(err) {
		log.Printf("knowledge: embedding rate limited, using zero vector: %v", err)
	} else {
		log.Printf("knowledge: embedding failed, using zero vector: %v", err)
	}
	return make([]float32, r.embeddingDim)
}

type scoredDoc struct {
	doc   store.Document
	score float64
}

func (r *Retriever) bruteForce(ctx context.Context, userID string, qvec []float32, k int) []Snippet {
	docs, err := r.store.ListDocuments(ctx, userID, r.scanLimit)
	if err != nil {
		log.Printf("knowledge: fallback scan failed for user %s: %v", userID, err)
		return nil
	}

	scored := make([]scoredDoc, 0, len(docs))
	for _, d := range docs {
		scored = append(scored, scoredDoc{doc: d, score: cosine(qvec, d.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	if len(scored) > k {
		scored = scored[:k]
	}
	out := make([]Snippet, 0, len(scored))
	for _, sd := range scored {
		out = append(out, Snippet{
			Content:  sd.doc.Content,
			Source:   sd.doc.Source,
			SourceID: sd.doc.SourceID,
			Score:    sd.score,
		})
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	if vek32.Norm(a) == 0 || vek32.Norm(b) == 0 {
		return 0
	}
	return float64(vek32.CosineSimilarity(a, b))
}
