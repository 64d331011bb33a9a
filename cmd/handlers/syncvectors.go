package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"swvanews/internal/config"
	"swvanews/internal/llm"
	"swvanews/internal/vector"
)

// NewSyncVectorsCmd creates the sync-vectors command.
func NewSyncVectorsCmd() *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync-vectors",
		Short: "Sync recent articles into the search indexes",
		Long: `Sync-vectors embeds recently touched articles and upserts them into
Weaviate (keyword plus vector) and Qdrant (vector only). When embedding
is unavailable Weaviate still gets keyword-only documents and Qdrant is
skipped.`,
		RunE: runSyncVectors,
	}
	syncCmd.Flags().Int("since", 0, "sync window in hours (default from config)")
	syncCmd.Flags().Int("limit", 0, "maximum documents per run")
	return syncCmd
}

func runSyncVectors(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if cfg.Weaviate.URL == "" && cfg.Qdrant.URL == "" {
		return fmt.Errorf("no vector backend configured; set WEAVIATE_URL or QDRANT_URL")
	}

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	var embedder vector.Embedder
	if cfg.OpenAI.APIKey != "" || cfg.Gemini.EnableEmbed {
		client := llm.NewClient(llm.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.APIBase,
		})
		geminiKey := ""
		if cfg.Gemini.EnableEmbed {
			geminiKey = cfg.Gemini.APIKey
		}
		embedder = llm.NewEmbedder(client, cfg.OpenAI.EmbedModel, geminiKey, cfg.Gemini.EmbedModel)
	}

	var weaviate *vector.WeaviateClient
	if cfg.Weaviate.URL != "" {
		weaviate = vector.NewWeaviateClient(cfg.Weaviate.URL, cfg.Weaviate.APIKey)
	}
	var qdrant *vector.QdrantClient
	if cfg.Qdrant.URL != "" {
		qdrant = vector.NewQdrantClient(cfg.Qdrant.URL, cfg.Qdrant.APIKey)
	}

	syncer := vector.NewSyncer(db.Articles(), embedder, weaviate, qdrant)
	if cfg.Weaviate.SyncHours > 0 {
		syncer.SinceHours = cfg.Weaviate.SyncHours
	}
	if hours, _ := cmd.Flags().GetInt("since"); hours > 0 {
		syncer.SinceHours = hours
	}
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
		syncer.Limit = limit
	}

	result, err := syncer.Sync(cmd.Context())
	if err != nil {
		return fmt.Errorf("vector sync failed: %w", err)
	}

	fmt.Printf("Synced %d documents (embedded=%t): weaviate=%d qdrant=%d\n",
		result.Docs, result.Embedded, result.WeaviateSent, result.QdrantSent)
	return nil
}
