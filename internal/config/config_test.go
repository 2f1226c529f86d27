package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/tobsdb/memdb/internal/config"
	"gotest.tools/assert"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load("")
		assert.NilError(t, err)
		assert.Equal(t, cfg.Port, 7085)
		assert.Assert(t, cfg.Log.Enabled)
		assert.Assert(t, !cfg.Log.Debug)
		assert.ErrorContains(t, cfg.Validate(), "username and password")
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("MEMDB_PORT", "9000")
		t.Setenv("MEMDB_LOG_DEBUG", "true")
		t.Setenv("MEMDB_USERNAME", "admin")
		t.Setenv("MEMDB_PASSWORD", "secret")
		t.Setenv("MEMDB_MAX_CONCURRENCY", "4")

		cfg, err := Load("")
		assert.NilError(t, err)
		assert.Equal(t, cfg.Port, 9000)
		assert.Assert(t, cfg.Log.Debug)
		assert.Equal(t, cfg.Username, "admin")
		assert.Equal(t, cfg.MaxConcurrency, int64(4))
		assert.NilError(t, cfg.Validate())
	})

	t.Run("config file with env override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "memdb.yaml")
		assert.NilError(t, os.WriteFile(path, []byte("port: 8000\nusername: file\nlog:\n  enabled: false\n"), 0644))
		t.Setenv("MEMDB_USERNAME", "env")

		cfg, err := Load(path)
		assert.NilError(t, err)
		assert.Equal(t, cfg.Port, 8000)
		assert.Equal(t, cfg.Username, "env")
		assert.Assert(t, !cfg.Log.Enabled)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read config")
	})

	t.Run("invalid port", func(t *testing.T) {
		cfg := &Config{Port: 70000, Username: "a", Password: "b"}
		assert.ErrorContains(t, cfg.Validate(), "invalid port")
	})
}
