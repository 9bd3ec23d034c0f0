package migrate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestMigrate_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	root := &cli.Command{Name: "summary-memory", Commands: []*cli.Command{Command()}}

	args := []string{"summary-memory", "migrate", "--db-kind", "sqlite", "--db-url", path, "--migrate-at-start=false", "--log-level", "error"}
	require.NoError(t, root.Run(context.Background(), args))
	require.FileExists(t, path)
}

func TestMigrate_RejectsBadLogLevel(t *testing.T) {
	root := &cli.Command{Name: "summary-memory", Commands: []*cli.Command{Command()}}
	err := root.Run(context.Background(), []string{"summary-memory", "migrate", "--log-level", "loud"})
	require.ErrorContains(t, err, "invalid --log-level")
}
