package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/paytrack/pkg/migrate"
)

func TestRunCreateThenValidate(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	require.NoError(t, run(context.Background(), []string{"-cmd", "create", "-dir", dir, "-name", "add outcomes"}, &out))
	assert.Contains(t, out.String(), "_add_outcomes.sql")

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"-cmd", "validate", "-dir", dir}, &out))
	assert.Equal(t, "migration validation passed\n", out.String())
}

func TestRunRejectsBadInvocations(t *testing.T) {
	cases := map[string][]string{
		"unknown command": {"-cmd", "redo"},
		"create no name":  {"-cmd", "create", "-dir", t.TempDir()},
		"version no arg":  {"-cmd", "version"},
	}
	for name, args := range cases {
		err := run(context.Background(), args, &bytes.Buffer{})
		require.Error(t, err, name)
		assert.True(t, strings.Contains(err.Error(), "-cmd") || strings.Contains(err.Error(), "missing"), "%s: %v", name, err)
	}
}

func TestOnDiskMapsEmbedded(t *testing.T) {
	assert.Equal(t, migrate.DefaultDir, onDisk(migrate.EmbeddedDir))
	assert.Equal(t, migrate.DefaultDir, onDisk(""))
	assert.Equal(t, "db/migrations", onDisk("db/migrations"))
}
