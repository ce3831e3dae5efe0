package cli

import (
	"fmt"

	"github.com/slotlinehq/slotline/internal/app"
	"github.com/slotlinehq/slotline/pkg/config"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		container, err := app.NewContainer(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer container.Close()

		if err := container.RunMigrations(ctx); err != nil {
			return err
		}
		logger.Info("migrations applied", "driver", container.DBDriver.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
