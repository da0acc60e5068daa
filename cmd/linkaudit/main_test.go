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

func TestEventsQueryArguments(t *testing.T) {
	_, err := eventsQuery(false, "", "2026-13", "", "")
	assert.Error(t, err)

	_, err = eventsQuery(false, "", "", "2026-01-01T00:00:00", "tomorrow")
	assert.Error(t, err)

	_, err = eventsQuery(false, "", "", "", "")
	assert.Error(t, err)

	for _, args := range [][]string{
		{"", "2026-01-02", "", "", ""},
		{"", "", "2026-01", "", ""},
		{"", "", "", "2026-01-01T00:00:00", "2026-01-31T23:59:59"},
	} {
		q, err := eventsQuery(false, args[1], args[2], args[3], args[4])
		require.NoError(t, err, args)
		assert.NotNil(t, q)
	}
	q, err := eventsQuery(true, "", "", "", "")
	require.NoError(t, err)
	assert.NotNil(t, q)
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "linkaudit.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("db_path: from-file.db\nworkers: 3\n"), 0o644))
	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("SCREENSHOT_DIR="+dir+"/shots\n"), 0o644))

	t.Setenv("WORKERS", "5")
	t.Setenv("SCREENSHOT_DIR", "")
	os.Unsetenv("SCREENSHOT_DIR")

	configPath, envFile = cfgFile, dotenv
	t.Cleanup(func() { configPath, envFile = "", ".env" })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-file.db", cfg.DBPath)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, dir+"/shots", cfg.ScreenshotDir)
}

func TestMissingEnvFileIsIgnored(t *testing.T) {
	configPath, envFile = "", filepath.Join(t.TempDir(), "absent.env")
	t.Cleanup(func() { configPath, envFile = "", ".env" })
	_, err := loadConfig()
	assert.NoError(t, err)
}

func TestSnapshotRequiresFlags(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"snapshot", "--url", "https://example.com"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value")
}

func TestServeRejectsUnknownMCPMode(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"serve", "--mcp", "quic"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quic")
}

func TestStatsAndMissingRecord(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_PATH", filepath.Join(dir, "audit.db"))
	t.Setenv("SCREENSHOT_DIR", filepath.Join(dir, "shots"))
	configPath, envFile = "", ""
	t.Cleanup(func() { configPath, envFile = "", ".env" })

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"stats", "--days", "7"})
	root.SetOut(&out)
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.JSONEq(t, "[]", out.String())

	out.Reset()
	root = newRootCmd()
	root.SetArgs([]string{"get", "1"})
	root.SetOut(&out)
	assert.Error(t, root.ExecuteContext(context.Background()))
}
