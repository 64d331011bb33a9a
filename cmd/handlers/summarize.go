package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"swvanews/internal/config"
	"swvanews/internal/llm"
	"swvanews/internal/summarize"
)

// NewSummarizeCmd creates the summarize command.
func NewSummarizeCmd() *cobra.Command {
	summarizeCmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize extracted articles in batches",
		Long: `Summarize pulls extracted articles in batches and asks the configured
model for a brief summary, key points, taxonomy, and any community events
mentioned. When the primary model rejects a request the processor fails
over to the configured fallback models.`,
		RunE: runSummarize,
	}
	summarizeCmd.Flags().Int("batch-size", 0, "articles per batch (default from config)")
	summarizeCmd.Flags().Int("max-batches", 0, "maximum batches per run (default from config)")
	return summarizeCmd
}

func runSummarize(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for summarization")
	}

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	client := llm.NewClient(llm.Config{
		APIKey:    cfg.OpenAI.APIKey,
		BaseURL:   cfg.OpenAI.APIBase,
		Model:     cfg.OpenAI.Model,
		MaxTokens: cfg.OpenAI.MaxTokens,
	})
	failover := llm.NewModelFailover(cfg.OpenAI.Model, cfg.OpenAI.FallbackModels...)

	batchSize := cfg.Summarizer.BatchSize
	if n, _ := cmd.Flags().GetInt("batch-size"); n > 0 {
		batchSize = n
	}
	maxBatches := cfg.Summarizer.MaxBatches
	if n, _ := cmd.Flags().GetInt("max-batches"); n > 0 {
		maxBatches = n
	}

	processor := summarize.NewBatchProcessor(db, client, failover,
		summarize.WithBatchSize(batchSize),
		summarize.WithMaxBatches(maxBatches),
		summarize.WithMaxRetries(cfg.Summarizer.MaxRetries))

	stats, err := processor.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("summarization run failed: %w", err)
	}

	fmt.Printf("Summarized %d articles in %d batches (%d failed, %d tokens)\n",
		stats.Successful, stats.BatchesProcessed, stats.Failed, stats.TokensUsed)
	if stats.Failure() {
		return fmt.Errorf("summarization run had failures")
	}
	return nil
}
