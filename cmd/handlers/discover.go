package handlers

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"swvanews/internal/config"
	"swvanews/internal/core"
	"swvanews/internal/discover"
	"swvanews/internal/observability"
	"swvanews/internal/session"
)

// NewDiscoverCmd creates the discover command.
func NewDiscoverCmd() *cobra.Command {
	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover the page manifest for one edition date",
		RunE:  runDiscover,
	}
	discoverCmd.Flags().String("date", "", "edition date (YYYY-MM-DD, default today)")
	discoverCmd.Flags().Bool("json", false, "print the manifest as JSON")
	return discoverCmd
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	metrics := observability.New(cfg.Metrics)
	defer metrics.Push()

	dateStr, _ := cmd.Flags().GetString("date")
	day, err := parseDateFlag(dateStr)
	if err != nil {
		return err
	}

	store, err := getCache(cmd)
	if err != nil {
		return err
	}
	manager, err := getSessionManager(store)
	if err != nil {
		return err
	}

	pub := cfg.EEdition.Publication
	proxy := cfg.Proxy.Random()
	metrics.IncDiscoverRun(pub, proxy)
	stop := metrics.Timer("discover", pub, proxy)

	var edition *core.Edition
	err = manager.WithSession(cmd.Context(), func(fetcher session.PageFetcher) error {
		d := discover.New(fetcher, cfg.EEdition.BaseURL)
		var derr error
		edition, derr = d.Discover(cmd.Context(), day, pub)
		return derr
	})
	stop()
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	metrics.ObservePagesFound(len(edition.Pages), pub, proxy)

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(edition)
	}

	fmt.Printf("Edition %s (%s): %d pages\n", edition.Date.Format("2006-01-02"), pub, len(edition.Pages))
	for _, page := range edition.Pages {
		section := page.Section
		if section == "" {
			section = "-"
		}
		fmt.Printf("  %3d  %-12s %s\n", page.PageNumber, section, page.URL)
	}
	return nil
}
