package handlers

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"swvanews/internal/config"
	"swvanews/internal/ingest"
)

// NewIngestCmd creates the ingest command with its per-source subcommands.
func NewIngestCmd() *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest articles from supplementary sources",
	}
	ingestCmd.AddCommand(newIngestRedditCmd())
	ingestCmd.AddCommand(newIngestNWSCmd())
	ingestCmd.AddCommand(newIngestFacebookCmd())
	return ingestCmd
}

func newIngestRedditCmd() *cobra.Command {
	redditCmd := &cobra.Command{
		Use:   "reddit",
		Short: "Ingest new posts from the regional subreddits",
		RunE:  runIngestReddit,
	}
	redditCmd.Flags().Int("since", 24, "only keep posts newer than this many hours")
	redditCmd.Flags().Int("limit", 25, "posts fetched per subreddit")
	redditCmd.Flags().Bool("include-comments", false, "append top comments to link posts")
	return redditCmd
}

func runIngestReddit(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if cfg.Reddit.ClientID == "" || cfg.Reddit.ClientSecret == "" {
		return fmt.Errorf("REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET are required")
	}

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	since, _ := cmd.Flags().GetInt("since")
	limit, _ := cmd.Flags().GetInt("limit")

	ingester := ingest.NewRedditIngester(cfg.Reddit, db.Articles(), db.History(), db.Tokens())
	ingester.IncludeComments, _ = cmd.Flags().GetBool("include-comments")

	result, err := ingester.Run(cmd.Context(), since, limit)
	if err != nil {
		return fmt.Errorf("reddit ingest failed: %w", err)
	}
	printIngestResult("reddit", result)
	return nil
}

func newIngestNWSCmd() *cobra.Command {
	nwsCmd := &cobra.Command{
		Use:   "nws",
		Short: "Ingest active National Weather Service alerts",
		RunE:  runIngestNWS,
	}
	nwsCmd.Flags().StringSlice("zone", nil, "forecast zone to poll (repeatable, default from config)")
	return nwsCmd
}

func runIngestNWS(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	zones, _ := cmd.Flags().GetStringSlice("zone")
	if len(zones) == 0 {
		zones = cfg.NWS.ZoneList()
	}

	ingester := ingest.NewNWSIngester(db.Articles(), db.History())
	result, err := ingester.Run(cmd.Context(), zones)
	if err != nil {
		return fmt.Errorf("nws ingest failed: %w", err)
	}
	printIngestResult("nws", result)
	return nil
}

func newIngestFacebookCmd() *cobra.Command {
	fbCmd := &cobra.Command{
		Use:   "facebook",
		Short: "Ingest recent posts from managed Facebook pages",
		RunE:  runIngestFacebook,
	}
	fbCmd.Flags().String("since", "", "only keep posts on or after this date (YYYY-MM-DD)")
	fbCmd.Flags().Int("limit", 25, "posts fetched per page")
	return fbCmd
}

func runIngestFacebook(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	var since *time.Time
	if sinceStr, _ := cmd.Flags().GetString("since"); sinceStr != "" {
		day, err := time.Parse("2006-01-02", sinceStr)
		if err != nil {
			return fmt.Errorf("invalid since date %q; use YYYY-MM-DD", sinceStr)
		}
		since = &day
	}
	limit, _ := cmd.Flags().GetInt("limit")

	ingester := ingest.NewFacebookIngester(cfg.Facebook, db.Articles(), db.History())
	result, err := ingester.Run(cmd.Context(), since, limit)
	if err != nil {
		return fmt.Errorf("facebook ingest failed: %w", err)
	}
	printIngestResult("facebook", result)
	return nil
}

func printIngestResult(source string, result ingest.Result) {
	fmt.Printf("%s: %d found, %d new, %d duplicates merged\n",
		source, result.Found, result.New, result.Duplicates)
}
