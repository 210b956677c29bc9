package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metamapa/models"
)

// memoryEnv konfiguriert eine Anwendung ohne Datenbank, S3 und Quellen.
func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_TYPE", "memory")
	t.Setenv("ENABLED_SOURCES", "")
	t.Setenv("TAXONOMY_PROFILE", "stub")
	t.Setenv("S3_URL", "")
	t.Setenv("S3_BUCKET", "")
	t.Setenv("DEFAULT_COLLECTION_ID", "1")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeBatch(t *testing.T, raws []models.RawFact) string {
	t.Helper()
	data, err := json.Marshal(raws)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestIngestFromFile(t *testing.T) {
	memoryEnv(t)
	path := writeBatch(t, []models.RawFact{
		{Title: "Incendio Centro", Sources: []string{"web"}},
		{Title: "incendio centro", Sources: []string{"app"}},
		{Title: "  "},
	})

	out, err := execute(t, "ingest", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "received 3, rejected 1, inserted 1, merged 1, universe 1")

	out, err = execute(t, "ingest", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "received 3, rejected 1")
}

func TestIngestFromFileErrors(t *testing.T) {
	memoryEnv(t)

	_, err := execute(t, "ingest", "--file", filepath.Join(t.TempDir(), "fehlt.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading batch file")

	broken := filepath.Join(t.TempDir(), "kaputt.json")
	require.NoError(t, os.WriteFile(broken, []byte("{not json"), 0o600))
	_, err = execute(t, "ingest", "--file", broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing batch file")
}

func TestRefreshCollection(t *testing.T) {
	memoryEnv(t)

	out, err := execute(t, "refresh", "--collection", "1")
	require.NoError(t, err)
	assert.Equal(t, "Collection 1: refreshed\n", out)

	out, err = execute(t, "refresh", "-c", "1")
	require.NoError(t, err)
	assert.Equal(t, "Collection 1: refreshed\n", out)

	out, err = execute(t, "refresh")
	require.NoError(t, err)
	assert.Equal(t, "All visible collections refreshed.\n", out)
}

func TestRefreshUnknownCollectionFails(t *testing.T) {
	memoryEnv(t)

	out, err := execute(t, "refresh", "--collection", "99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refreshing collection 99")
	assert.Empty(t, out)
}

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"ingest", "refresh", "export", "backup"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	ingest, _, err := root.Find([]string{"ingest"})
	require.NoError(t, err)
	assert.NotNil(t, ingest.Flags().ShorthandLookup("f"))

	refresh, _, err := root.Find([]string{"refresh"})
	require.NoError(t, err)
	assert.NotNil(t, refresh.Flags().ShorthandLookup("c"))
}
