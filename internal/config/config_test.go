package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "playwright", cfg.Browser.Backend)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 8, cfg.Engine.MaxSteps)
	assert.Equal(t, 45*time.Second, cfg.Engine.ChallengeGrace)
	assert.Equal(t, 3, cfg.Oracle.PlanRetries)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
addr: ":9090"
browser:
  backend: chromedp
  headless: false
engine:
  max_steps: 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "chromedp", cfg.Browser.Backend)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 4, cfg.Engine.MaxSteps)
	// Untouched fields keep defaults.
	assert.Equal(t, 30*time.Second, cfg.Engine.NavigationTimeout)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeTempConfig(t, `addr: ":9090"`)

	t.Setenv("UNSUBKIT_ADDR", ":7070")
	t.Setenv("UNSUBKIT_BROWSER_BACKEND", "chromedp")
	t.Setenv("UNSUBKIT_HEADLESS", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, "chromedp", cfg.Browser.Backend)
	assert.False(t, cfg.Browser.Headless)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
