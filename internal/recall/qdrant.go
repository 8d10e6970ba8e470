package recall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redstack/redmem/internal/embedding"
)

// QdrantConfig locates the external vector backend.
type QdrantConfig struct {
	URL        string
	Collection string
	Dim        int
	Timeout    time.Duration
}

// QdrantIndex talks to a Qdrant-compatible REST backend. Every call is
// bounded by the configured timeout.
type QdrantIndex struct {
	cfg      QdrantConfig
	embedder embedding.Embedder
	client   *http.Client

	ensureMu sync.Mutex
	ensured  bool
}

// NewQdrantIndex builds the client. Collection defaults to
// "red_memory_semantic", dim to the embedder's.
func NewQdrantIndex(cfg QdrantConfig, embedder embedding.Embedder) *QdrantIndex {
	if cfg.Collection == "" {
		cfg.Collection = "red_memory_semantic"
	}
	if cfg.Dim <= 0 {
		cfg.Dim = embedder.Dims()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &QdrantIndex{
		cfg:      cfg,
		embedder: embedder,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

func (q *QdrantIndex) url(path string) string {
	base := q.cfg.URL
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + path
}

// ensureCollection creates the collection if missing. Retried on the next
// call if it failed.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	q.ensureMu.Lock()
	defer q.ensureMu.Unlock()
	if q.ensured {
		return nil
	}
	if err := q.createCollection(ctx); err != nil {
		return err
	}
	q.ensured = true
	return nil
}

func (q *QdrantIndex) createCollection(ctx context.Context) error {
	status, _, err := q.do(ctx, http.MethodGet, "/collections/"+q.cfg.Collection, nil)
	if err != nil {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{"size": q.cfg.Dim, "distance": "Cosine"},
	}
	status, respBody, err := q.do(ctx, http.MethodPut, "/collections/"+q.cfg.Collection, body)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("create collection: %d: %s", status, respBody)
	}
	return nil
}

// pointID derives a deterministic UUID from the document id; the backend
// accepts only UUID or uint point ids.
func pointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(docID)).String()
}

// Upsert indexes one document.
func (q *QdrantIndex) Upsert(ctx context.Context, doc Document) error {
	if err := q.ensureCollection(ctx); err != nil {
		return err
	}
	vec, err := q.embedder.Embed(ctx, doc.Text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	payload := map[string]interface{}{"id": doc.ID, "text": doc.Text}
	for k, v := range doc.Meta {
		payload[k] = v
	}

	body := map[string]interface{}{
		"points": []map[string]interface{}{
			{"id": pointID(doc.ID), "vector": vec, "payload": payload},
		},
	}
	status, respBody, err := q.do(ctx, http.MethodPut,
		"/collections/"+q.cfg.Collection+"/points?wait=true", body)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("upsert: %d: %s", status, respBody)
	}
	return nil
}

type qdrantSearchResponse struct {
	Result []struct {
		Score   float64                `json:"score"`
		Payload map[string]interface{} `json:"payload"`
	} `json:"result"`
}

// Search returns the closest documents to the query text.
func (q *QdrantIndex) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if err := q.ensureCollection(ctx); err != nil {
		return nil, err
	}
	vec, err := q.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if limit <= 0 {
		limit = 5
	}

	body := map[string]interface{}{
		"vector":       vec,
		"limit":        limit,
		"with_payload": true,
	}
	status, respBody, err := q.do(ctx, http.MethodPost,
		"/collections/"+q.cfg.Collection+"/points/search", body)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("search: %d: %s", status, respBody)
	}

	var parsed qdrantSearchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Result))
	for _, hit := range parsed.Result {
		doc := Document{Meta: map[string]string{}}
		for k, v := range hit.Payload {
			s, ok := v.(string)
			if !ok {
				continue
			}
			switch k {
			case "id":
				doc.ID = s
			case "text":
				doc.Text = s
			default:
				doc.Meta[k] = s
			}
		}
		results = append(results, Result{Document: doc, Score: hit.Score})
	}
	return results, nil
}

func (q *QdrantIndex) do(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, q.url(path), reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("vector backend request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}
