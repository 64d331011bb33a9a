package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"swvanews/internal/persistence"
)

// ClassName is the Weaviate class holding article docs.
const ClassName = "Article"

// WeaviateClient talks to the Weaviate REST API.
type WeaviateClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewWeaviateClient builds a client for baseURL. apiKey may be empty for
// unauthenticated deployments.
func NewWeaviateClient(baseURL, apiKey string) *WeaviateClient {
	return &WeaviateClient{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

type weaviateSchema struct {
	Classes []struct {
		Class string `json:"class"`
	} `json:"classes"`
}

// EnsureClass creates the Article class when it does not exist. The class
// carries no vectorizer so BM25 works without vectors.
func (c *WeaviateClient) EnsureClass(ctx context.Context) error {
	var schema weaviateSchema
	if err := c.request(ctx, http.MethodGet, "/v1/schema", nil, &schema); err != nil {
		return fmt.Errorf("failed to read weaviate schema: %w", err)
	}
	for _, class := range schema.Classes {
		if class.Class == ClassName {
			return nil
		}
	}

	payload := map[string]any{
		"class":      ClassName,
		"vectorizer": "none",
		"properties": []map[string]any{
			{"name": "article_id", "dataType": []string{"int"}},
			{"name": "title", "dataType": []string{"text"}},
			{"name": "section", "dataType": []string{"text"}},
			{"name": "summary", "dataType": []string{"text"}},
			{"name": "content", "dataType": []string{"text"}},
			{"name": "date_published", "dataType": []string{"date"}},
		},
		"moduleConfig": map[string]any{"bm25": map[string]any{}},
	}
	if err := c.request(ctx, http.MethodPost, "/v1/schema", payload, nil); err != nil {
		return fmt.Errorf("failed to create weaviate class: %w", err)
	}
	return nil
}

// BatchUpsert writes docs through /v1/batch/objects. vectors may be nil for
// BM25-only indexing; otherwise it must be parallel to docs.
func (c *WeaviateClient) BatchUpsert(ctx context.Context, docs []persistence.IndexDoc, vectors [][]float32) error {
	if len(docs) == 0 {
		return nil
	}
	objects := make([]map[string]any, 0, len(docs))
	for i, doc := range docs {
		props := map[string]any{
			"article_id": doc.ID,
			"title":      doc.Title,
			"section":    doc.Section,
			"summary":    doc.Summary,
			"content":    doc.Content,
		}
		if doc.DatePublished != nil {
			props["date_published"] = doc.DatePublished.Format(time.RFC3339)
		}
		obj := map[string]any{
			"class":      ClassName,
			"id":         DocID(doc.ID),
			"properties": props,
		}
		if vectors != nil {
			obj["vector"] = vectors[i]
		}
		objects = append(objects, obj)
	}

	payload := map[string]any{"objects": objects}
	if err := c.request(ctx, http.MethodPost, "/v1/batch/objects", payload, nil); err != nil {
		return fmt.Errorf("failed to batch upsert %d objects: %w", len(objects), err)
	}
	return nil
}

func (c *WeaviateClient) request(ctx context.Context, method, path string, body, out any) error {
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
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("X-API-KEY", c.apiKey)
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
		return fmt.Errorf("weaviate returned %d: %s", resp.StatusCode, detail)
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}
