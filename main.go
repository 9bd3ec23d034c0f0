package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/chirino/summary-memory/internal/cmd/migrate"
	"github.com/chirino/summary-memory/internal/cmd/summaries"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "summary-memory",
		Usage: "Persist and recall conversation summaries as per-user memory entries",
		Commands: []*cli.Command{
			summaries.Command(),
			migrate.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
