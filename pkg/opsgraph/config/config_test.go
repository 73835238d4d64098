package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsgraph/opsgraph/pkg/opsgraph/config"
)

func TestConfig_Accessors(t *testing.T) {
	cfg := config.New(map[string]any{
		"name":     "opsgraph",
		"timeout":  "30s",
		"seconds":  45,
		"enabled":  true,
		"limit":    float64(10),
		"ratio":    0.6,
		"tags":     []any{"a", "b"},
		"fraction": 1.5,
	})

	assert.Equal(t, "opsgraph", cfg.String("name", "x"))
	assert.Equal(t, "x", cfg.String("missing", "x"))
	assert.Equal(t, "x", cfg.String("enabled", "x"))

	assert.Equal(t, 30*time.Second, cfg.Duration("timeout", time.Minute))
	assert.Equal(t, 45*time.Second, cfg.Duration("seconds", time.Minute))
	assert.Equal(t, time.Minute, cfg.Duration("missing", time.Minute))

	assert.True(t, cfg.Bool("enabled", false))
	assert.False(t, cfg.Bool("missing", false))

	assert.Equal(t, 10, cfg.Int("limit", 1))
	assert.Equal(t, 1, cfg.Int("fraction", 1))

	assert.Equal(t, 0.6, cfg.Float("ratio", 0))
	assert.Equal(t, []string{"a", "b"}, cfg.StringSlice("tags", nil))

	assert.True(t, cfg.Has("name"))
	assert.False(t, cfg.Has("missing"))
}

func TestConfig_Sub(t *testing.T) {
	cfg := config.New(map[string]any{
		"store": map[string]any{
			"backend": "redis",
			"ttl":     "24h",
		},
	})

	store := cfg.Sub("store")
	assert.Equal(t, "redis", store.String("backend", "sqlite"))
	assert.Equal(t, 24*time.Hour, store.Duration("ttl", 0))

	empty := cfg.Sub("missing")
	assert.Equal(t, "fallback", empty.String("anything", "fallback"))
}

func TestFromYAML(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
store:
  backend: sqlite
  path: ./test.db
engine:
  deadline: 2m
  collection_concurrency: 3
`))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Sub("store").String("backend", ""))
	assert.Equal(t, 2*time.Minute, cfg.Sub("engine").Duration("deadline", 0))
	assert.Equal(t, 3, cfg.Sub("engine").Int("collection_concurrency", 1))
}

func TestFromJSON(t *testing.T) {
	cfg, err := config.FromJSON([]byte(`{"llm":{"model":"sonnet","timeout":"45s"}}`))
	require.NoError(t, err)

	llm := cfg.Sub("llm")
	assert.Equal(t, "sonnet", llm.String("model", ""))
	assert.Equal(t, 45*time.Second, llm.Duration("timeout", 0))
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("name: from-yaml\n"), 0o644))

	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.String("name", ""))

	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"name":"from-json"}`), 0o644))

	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "from-json", cfg.String("name", ""))

	_, err = config.FromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	tomlPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`name = "nope"`), 0o644))

	_, err = config.FromFile(tomlPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported extension")
}
