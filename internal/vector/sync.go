package vector

import (
	"context"
	"fmt"
	"time"

	"swvanews/internal/logger"
	"swvanews/internal/persistence"
)

const (
	// DefaultSinceHours bounds the incremental sync window.
	DefaultSinceHours = 12
	// DefaultLimit caps how many docs one sync pass touches.
	DefaultLimit = 1000
)

// SyncResult reports what one pass shipped where.
type SyncResult struct {
	Docs         int
	Embedded     bool
	WeaviateSent int
	QdrantSent   int
}

// Syncer pushes recently summarized articles into the search backends.
// Either backend may be nil; embedding failures degrade Weaviate to
// BM25-only and skip Qdrant entirely, since Qdrant has no keyword index
// to fall back on.
type Syncer struct {
	articles persistence.ArticleRepository
	embedder Embedder
	weaviate *WeaviateClient
	qdrant   *QdrantClient

	SinceHours int
	Limit      int
	now        func() time.Time
}

// NewSyncer wires a syncer with the default window. embedder, weaviate, and
// qdrant are each optional.
func NewSyncer(articles persistence.ArticleRepository, embedder Embedder, weaviate *WeaviateClient, qdrant *QdrantClient) *Syncer {
	return &Syncer{
		articles:   articles,
		embedder:   embedder,
		weaviate:   weaviate,
		qdrant:     qdrant,
		SinceHours: DefaultSinceHours,
		Limit:      DefaultLimit,
		now:        time.Now,
	}
}

// Sync runs one incremental pass.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	since := s.now().Add(-time.Duration(s.SinceHours) * time.Hour)
	docs, err := s.articles.ListForIndex(ctx, since, s.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles for indexing: %w", err)
	}

	result := &SyncResult{Docs: len(docs)}
	if len(docs) == 0 {
		logger.Info("Vector sync found nothing to index", "since_hours", s.SinceHours)
		return result, nil
	}

	vectors := s.embed(ctx, docs)
	result.Embedded = vectors != nil

	if s.weaviate != nil {
		if err := s.weaviate.EnsureClass(ctx); err != nil {
			return result, err
		}
		if err := s.weaviate.BatchUpsert(ctx, docs, vectors); err != nil {
			return result, err
		}
		result.WeaviateSent = len(docs)
		logger.Info("Synced articles to Weaviate",
			"count", len(docs), "with_vectors", vectors != nil)
	}

	if s.qdrant != nil {
		if vectors == nil {
			logger.Warn("Skipping Qdrant sync without embeddings")
		} else {
			if err := s.qdrant.EnsureCollection(ctx, len(vectors[0])); err != nil {
				return result, err
			}
			if err := s.qdrant.UpsertPoints(ctx, docs, vectors); err != nil {
				return result, err
			}
			result.QdrantSent = len(docs)
			logger.Info("Synced articles to Qdrant", "count", len(docs))
		}
	}

	return result, nil
}

// embed returns one vector per doc, or nil when embeddings are unavailable.
func (s *Syncer) embed(ctx context.Context, docs []persistence.IndexDoc) [][]float32 {
	if s.embedder == nil {
		return nil
	}
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = IndexText(doc)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		logger.Warn("Embedding failed, falling back to keyword-only indexing", "error", err)
		return nil
	}
	if len(vectors) != len(docs) {
		logger.Warn("Embedder returned wrong vector count",
			"want", len(docs), "got", len(vectors))
		return nil
	}
	return vectors
}
