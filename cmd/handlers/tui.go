package handlers

import (
	"github.com/spf13/cobra"

	"swvanews/internal/tui"
)

// NewTUICmd creates the tui command.
func NewTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse recent articles and summaries in the terminal",
		RunE:  runTUI,
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	return tui.Start(db.Articles())
}
