package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootHasCommands(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "ingest", "migrate"})
}

func TestMigrateCommand(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "dothub.sqlite")
	body := "database:\n  driver: sqlite\n  dsn: " + dsn + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mode.yaml"), []byte(body), 0o644))

	root := newRootCmd()
	root.SetArgs([]string{"migrate", "--config", dir})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	require.NoError(t, root.ExecuteContext(context.Background()))

	_, err := os.Stat(dsn)
	assert.NoError(t, err)
}
