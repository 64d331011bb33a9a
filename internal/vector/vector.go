// Package vector syncs summarized articles into the search backends:
// Weaviate (BM25 plus optional vectors) and Qdrant (vectors only).
package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"swvanews/internal/persistence"
)

// Embedder produces one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// DocID derives the deterministic object id for an article. Re-syncing the
// same article always writes the same id, making upserts idempotent.
func DocID(articleID int64) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("article:%d", articleID))).String()
}

// IndexText is the embedded/searchable text for a doc: the title plus its
// summary, falling back to truncated content when no summary exists.
func IndexText(doc persistence.IndexDoc) string {
	body := doc.Summary
	if body == "" {
		body = doc.Content
		if len(body) > 2000 {
			body = body[:2000]
		}
	}
	return doc.Title + "\n\n" + body
}
