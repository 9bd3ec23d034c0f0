package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/summary-memory/internal/cmd/cmdutil"
	"github.com/chirino/summary-memory/internal/config"
	registrymigrate "github.com/chirino/summary-memory/internal/registry/migrate"
	"github.com/urfave/cli/v3"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var cacheTTL string
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the memory entry schema of the configured store",
		Flags: cmdutil.Flags(&cfg, &cacheTTL),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, err := cmdutil.Setup(ctx, &cfg, cacheTTL)
			if err != nil {
				return err
			}
			// An explicit migrate always runs, whatever --migrate-at-start says.
			cfg.DatastoreMigrateAtStart = true

			log.Info("Running migrations...", "kind", cfg.NormalizedDatastoreType(), "migrators", registrymigrate.Names())
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
