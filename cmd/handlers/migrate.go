package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"swvanews/internal/persistence"
)

// NewMigrateCmd creates the migrate command with its subcommands.
func NewMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE:  runMigrateStatus,
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "rollback",
		Short: "Roll back the most recent migration",
		RunE:  runMigrateRollback,
	})

	return migrateCmd
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	manager := persistence.NewMigrationManager(db)
	if err := manager.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Println("Migrations applied.")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	manager := persistence.NewMigrationManager(db)
	statuses, err := manager.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	fmt.Println("Migration status:")
	for _, status := range statuses {
		state := "pending"
		if status.Applied {
			state = "applied"
		}
		fmt.Printf("  %03d %-40s %s\n", status.Version, status.Description, state)
	}
	return nil
}

func runMigrateRollback(cmd *cobra.Command, args []string) error {
	db, err := getDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	manager := persistence.NewMigrationManager(db)
	if err := manager.Rollback(cmd.Context()); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	fmt.Println("Rolled back the most recent migration.")
	return nil
}
