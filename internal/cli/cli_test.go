package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinxr/notion-graph-view-sub001/internal/application/extraction"
	"github.com/colinxr/notion-graph-view-sub001/internal/domain/page"
	"github.com/colinxr/notion-graph-view-sub001/internal/repository/sqlite"
)

func writeConfig(t *testing.T, driver, dbPath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graphsync.yaml")
	body := fmt.Sprintf(`environment: development
logging:
  level: error
  format: json
store:
  driver: %s
  sqlite_path: %s
`, driver, dbPath)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "graphsync dev\n", out)
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graph.db")
	out, err := execute(t, "migrate", "--config", writeConfig(t, "sqlite", dbPath))
	require.NoError(t, err)
	assert.Equal(t, dbPath+" at schema version 1\n", out)
}

func TestMigrateCommand_RequiresSQLite(t *testing.T) {
	_, err := execute(t, "migrate", "--config", writeConfig(t, "memory", "unused.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite driver")
}

func TestExtractCommand(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "graph.db")

	store, err := sqlite.Open(ctx, dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveDatabase(ctx, page.Database{ID: "db1", Title: "Notes", OwnerID: "u1"}))
	require.NoError(t, store.SavePage(ctx, page.Page{ID: "pa", Title: "Alpha", DatabaseID: "db1", Content: "links to [[Beta]]"}))
	require.NoError(t, store.SavePage(ctx, page.Page{ID: "pb", Title: "Beta", DatabaseID: "db1"}))
	require.NoError(t, store.Close())

	out, err := execute(t, "extract", "db1", "--config", writeConfig(t, "sqlite", dbPath))
	require.NoError(t, err)

	var sum extraction.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, "db1", sum.DatabaseID)
	assert.Equal(t, 2, sum.Pages)
	assert.Equal(t, 1, sum.Edges)
	assert.Zero(t, sum.Unresolved)
}

func TestExtractCommand_NeedsArgument(t *testing.T) {
	_, err := execute(t, "extract", "--config", writeConfig(t, "memory", "unused.db"))
	assert.Error(t, err)
}
