package recall

import "context"

// Document is one entry in the vector index.
type Document struct {
	ID   string
	Text string
	Meta map[string]string
}

// Result is a similarity hit.
type Result struct {
	Document
	Score float64
}

// Index is the vector backend contract. Implementations embed text
// themselves; the gateway never sees vectors.
type Index interface {
	Upsert(ctx context.Context, doc Document) error
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}
