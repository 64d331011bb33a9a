package handlers

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"swvanews/internal/cache"
	"swvanews/internal/config"
	"swvanews/internal/core"
	"swvanews/internal/discover"
	"swvanews/internal/download"
	"swvanews/internal/observability"
	"swvanews/internal/session"
)

// NewDownloadCmd creates the download command.
func NewDownloadCmd() *cobra.Command {
	downloadCmd := &cobra.Command{
		Use:   "download",
		Short: "Download all pages of one edition into the cache",
		RunE:  runDownload,
	}
	downloadCmd.Flags().String("date", "", "edition date (YYYY-MM-DD, default today)")
	downloadCmd.Flags().Bool("force", false, "re-download pages already in the cache")
	return downloadCmd
}

func runDownload(cmd *cobra.Command, args []string) error {
	dateStr, _ := cmd.Flags().GetString("date")
	day, err := parseDateFlag(dateStr)
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")

	store, err := getCache(cmd)
	if err != nil {
		return err
	}
	result, err := downloadEdition(cmd, store, day, force)
	if err != nil {
		return err
	}

	fmt.Printf("Edition %s: %d/%d pages downloaded (%d from cache, %d failed)\n",
		result.EditionDate, result.Successful, result.TotalPages, result.FromCache, result.Failed)
	if result.Failed > 0 {
		for _, page := range result.Pages {
			if page.Error != "" {
				fmt.Printf("  page %d: %s\n", page.PageNumber, page.Error)
			}
		}
	}
	return nil
}

// downloadEdition discovers the manifest under an authenticated session and
// then pulls every page through the proxy pool. Shared with backfill.
func downloadEdition(cmd *cobra.Command, store *cache.ObjectCache, day time.Time, force bool) (*download.Result, error) {
	cfg := config.Get()
	metrics := observability.New(cfg.Metrics)
	defer metrics.Push()

	manager, err := getSessionManager(store)
	if err != nil {
		return nil, err
	}

	pub := cfg.EEdition.Publication
	proxy := cfg.Proxy.Random()
	metrics.IncDiscoverRun(pub, proxy)

	var edition *core.Edition
	err = manager.WithSession(cmd.Context(), func(fetcher session.PageFetcher) error {
		d := discover.New(fetcher, cfg.EEdition.BaseURL)
		var derr error
		edition, derr = d.Discover(cmd.Context(), day, pub)
		return derr
	})
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	metrics.ObservePagesFound(len(edition.Pages), pub, proxy)

	factory := func(proxyURL string) (session.PageFetcher, error) {
		statePath := session.StorageStatePath(cfg.EEdition.StorageStatePath, proxyURL)
		return session.NewHTTPFetcher(statePath, proxyURL, cfg.EEdition.BaseURL)
	}

	slug := discover.ResolvePublication(pub).Slug
	stop := metrics.Timer("download", pub, proxy)
	result := download.New(store, factory, cfg.Proxy.URLs(), slug).
		DownloadEdition(cmd.Context(), edition, force)
	stop()
	return result, nil
}
