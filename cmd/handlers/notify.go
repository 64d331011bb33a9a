package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"swvanews/internal/config"
	"swvanews/internal/notify"
)

// NewNotifyCmd creates the notify command.
func NewNotifyCmd() *cobra.Command {
	notifyCmd := &cobra.Command{
		Use:   "notify",
		Short: "Send the daily news digest to the ntfy topic",
		RunE:  runNotify,
	}
	notifyCmd.Flags().String("date", "", "digest date (YYYY-MM-DD, default today)")
	return notifyCmd
}

func runNotify(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if cfg.Ntfy.URL == "" {
		return fmt.Errorf("NTFY_URL is required for notifications")
	}

	dateStr, _ := cmd.Flags().GetString("date")
	day, err := parseDateFlag(dateStr)
	if err != nil {
		return err
	}

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	service := notify.NewDigestService(db.Articles(), db.Summaries(), notify.NewNtfyNotifier(cfg.Ntfy))
	result, err := service.SendDaily(cmd.Context(), day)
	if err != nil {
		return fmt.Errorf("digest failed: %w", err)
	}

	if !result.Sent {
		fmt.Printf("No summarized articles for %s; nothing sent.\n", day.Format("2006-01-02"))
		return nil
	}
	fmt.Printf("Digest sent for %s with %d articles.\n", day.Format("2006-01-02"), result.Articles)
	return nil
}
