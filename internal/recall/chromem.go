package recall

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/redstack/redmem/internal/embedding"
)

// ChromemIndex is an embedded, in-process vector index used when no
// external backend URL is configured, and in tests. chromem-go is pure Go,
// so the semantic path works without any running dependency.
type ChromemIndex struct {
	mu       sync.Mutex
	col      *chromem.Collection
	embedder embedding.Embedder
}

// NewChromemIndex creates the embedded index with one collection.
func NewChromemIndex(collection string, embedder embedding.Embedder) (*ChromemIndex, error) {
	if collection == "" {
		collection = "red_memory_semantic"
	}
	db := chromem.NewDB()
	col, err := db.CreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &ChromemIndex{col: col, embedder: embedder}, nil
}

// Upsert indexes one document.
func (c *ChromemIndex) Upsert(ctx context.Context, doc Document) error {
	vec, err := c.embedder.Embed(ctx, doc.Text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	meta := map[string]string{"id": doc.ID}
	for k, v := range doc.Meta {
		meta[k] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	err = c.col.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   doc.Text,
		Embedding: vec,
		Metadata:  meta,
	})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Search returns the closest documents to the query text. chromem rejects
// a result count above the collection size, so the limit is clamped.
func (c *ChromemIndex) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if limit <= 0 {
		limit = 5
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if n := c.col.Count(); limit > n {
		limit = n
	}
	if limit == 0 {
		return nil, nil
	}

	hits, err := c.col.QueryEmbedding(ctx, vec, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		doc := Document{ID: hit.ID, Text: hit.Content, Meta: map[string]string{}}
		for k, v := range hit.Metadata {
			if k != "id" {
				doc.Meta[k] = v
			}
		}
		results = append(results, Result{Document: doc, Score: float64(hit.Similarity)})
	}
	return results, nil
}
