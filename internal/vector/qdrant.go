package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"swvanews/internal/persistence"
)

// CollectionName is the Qdrant collection holding article vectors.
const CollectionName = "articles"

// QdrantClient talks to the Qdrant REST API.
type QdrantClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewQdrantClient builds a client for baseURL. apiKey may be empty.
func NewQdrantClient(baseURL, apiKey string) *QdrantClient {
	return &QdrantClient{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// EnsureCollection creates the articles collection with cosine distance when
// it does not exist. dim is inferred by the caller from the first vector.
func (c *QdrantClient) EnsureCollection(ctx context.Context, dim int) error {
	err := c.request(ctx, http.MethodGet, "/collections/"+CollectionName, nil, nil)
	if err == nil {
		return nil
	}
	var apiErr *qdrantError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to check qdrant collection: %w", err)
	}

	payload := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	if err := c.request(ctx, http.MethodPut, "/collections/"+CollectionName, payload, nil); err != nil {
		return fmt.Errorf("failed to create qdrant collection: %w", err)
	}
	return nil
}

// UpsertPoints writes one point per doc. vectors must be parallel to docs.
func (c *QdrantClient) UpsertPoints(ctx context.Context, docs []persistence.IndexDoc, vectors [][]float32) error {
	if len(docs) == 0 {
		return nil
	}
	points := make([]map[string]any, 0, len(docs))
	for i, doc := range docs {
		payload := map[string]any{
			"article_id": doc.ID,
			"title":      doc.Title,
			"section":    doc.Section,
			"summary":    doc.Summary,
		}
		if doc.DatePublished != nil {
			payload["date_published"] = doc.DatePublished.Format("2006-01-02")
		}
		points = append(points, map[string]any{
			"id":      DocID(doc.ID),
			"vector":  vectors[i],
			"payload": payload,
		})
	}

	body := map[string]any{"points": points}
	path := "/collections/" + CollectionName + "/points?wait=true"
	if err := c.request(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("failed to upsert %d points: %w", len(points), err)
	}
	return nil
}

type qdrantError struct {
	StatusCode int
	Body       string
}

func (e *qdrantError) Error() string {
	return fmt.Sprintf("qdrant returned %d: %s", e.StatusCode, e.Body)
}

func (c *QdrantClient) request(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		detail := string(raw)
		if len(detail) > 500 {
			detail = detail[:500]
		}
		return &qdrantError{StatusCode: resp.StatusCode, Body: detail}
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}
