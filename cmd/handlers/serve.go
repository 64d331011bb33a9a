package handlers

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"swvanews/internal/config"
	"swvanews/internal/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the read-only feed API",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", "", "listen address (default from config)")
	return serveCmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	srv := server.New(db, db.Articles(), db.Events(), db.History(), cfg.Server)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
