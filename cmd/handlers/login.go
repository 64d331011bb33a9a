package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"swvanews/internal/config"
	"swvanews/internal/observability"
)

// NewLoginCmd creates the login command.
func NewLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Establish an authenticated e-edition session",
		Long: `Login verifies the saved session cookies against the e-edition and,
when they have gone stale, performs a fresh login through the proxy pool.
Repeated failures activate the shared lockout marker so concurrent jobs
stop hammering the login form.`,
		RunE: runLogin,
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	metrics := observability.New(cfg.Metrics)
	defer metrics.Push()

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
	if manager.Verify(cmd.Context()) {
		metrics.IncVerifySuccess(pub, proxy)
		fmt.Println("Session is valid; no login needed.")
		return nil
	}
	metrics.IncVerifyFailure(pub, proxy)

	metrics.IncLoginAttempt(pub, proxy)
	stop := metrics.Timer("login", pub, proxy)
	err = manager.Login(cmd.Context())
	stop()
	if err != nil {
		metrics.IncLoginFailure(pub, proxy)
		return fmt.Errorf("login failed: %w", err)
	}
	metrics.IncLoginSuccess(pub, proxy)

	fmt.Println("Logged in; session state saved.")
	return nil
}
