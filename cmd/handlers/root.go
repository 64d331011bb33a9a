package handlers

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"swvanews/internal/cache"
	"swvanews/internal/config"
	"swvanews/internal/persistence"
	"swvanews/internal/session"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "swvanews",
		Short: "Local news pipeline: scrape, extract, summarize, and serve.",
		Long: `swvanews runs the local-news pipeline end to end: it scrapes the
paywalled e-edition into the page cache, extracts articles from the cached
PDF and HTML pages, summarizes them in batches, mines community events,
and serves the resulting feed.

Each stage is its own subcommand so stages can run on independent
schedules (scraping hourly, summarizing after extraction, the digest
once per morning).`,
	}

	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.swvanews.yaml)")

	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewLoginCmd())
	rootCmd.AddCommand(NewDiscoverCmd())
	rootCmd.AddCommand(NewDownloadCmd())
	rootCmd.AddCommand(NewBackfillCmd())
	rootCmd.AddCommand(NewExtractCmd())
	rootCmd.AddCommand(NewSummarizeCmd())
	rootCmd.AddCommand(NewAnalyzeCmd())
	rootCmd.AddCommand(NewSyncVectorsCmd())
	rootCmd.AddCommand(NewIngestCmd())
	rootCmd.AddCommand(NewNotifyCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewCacheCmd())
	rootCmd.AddCommand(NewStatsCmd())
	rootCmd.AddCommand(NewTUICmd())

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if config.Get().App.ConfigFile != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", config.Get().App.ConfigFile)
	}
}

// getDatabase opens the configured Postgres store.
func getDatabase() (*persistence.PostgresDB, error) {
	cfg := config.Get()
	db, err := persistence.NewPostgresDB(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// getCache opens the configured MinIO page cache.
func getCache(cmd *cobra.Command) (*cache.ObjectCache, error) {
	cfg := config.Get()
	store, err := cache.New(cmd.Context(), cfg.Minio.Endpoint,
		cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open page cache: %w", err)
	}
	return store, nil
}

// getSessionManager wires the authenticated e-edition session: a proxied
// fetcher when a proxy pool is configured, the direct fallback, and the
// shared login lockout guard mirrored through the cache.
func getSessionManager(store *cache.ObjectCache) (*session.Manager, error) {
	cfg := config.Get()

	proxyURL := cfg.Proxy.Random()
	statePath := session.StorageStatePath(cfg.EEdition.StorageStatePath, proxyURL)
	fetcher, err := session.NewHTTPFetcher(statePath, proxyURL, cfg.EEdition.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetcher: %w", err)
	}

	direct := fetcher
	if proxyURL != "" {
		directPath := session.StorageStatePath(cfg.EEdition.StorageStatePath, "")
		direct, err = session.NewHTTPFetcher(directPath, "", cfg.EEdition.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to build direct fetcher: %w", err)
		}
	}

	cooldown := time.Duration(cfg.EEdition.LockoutCooldownHrs) * time.Hour
	if cooldown <= 0 {
		cooldown = 6 * time.Hour
	}
	lockout := session.NewLockoutStore(
		statePath+".lockout.json", store, cooldown)

	creds := session.Credentials{Email: cfg.EEdition.User, Password: cfg.EEdition.Pass}
	manager := session.NewManager(fetcher, direct, lockout, creds, cfg.EEdition.BaseURL)
	if store != nil {
		manager.SetDebugCapturer(store)
	}
	return manager, nil
}

// parseDateFlag reads a --date value, defaulting to today.
func parseDateFlag(raw string) (time.Time, error) {
	if raw == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q; use YYYY-MM-DD", raw)
	}
	return day, nil
}
