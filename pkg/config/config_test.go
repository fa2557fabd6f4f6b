package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("loads an explicit config file", func(t *testing.T) {
		root := t.TempDir()

		path := filepath.Join(root, "config.json")

		data, err := json.Marshal(map[string]interface{}{
			"data-dir":     filepath.Join(root, "data"),
			"instance-dir": filepath.Join(root, "inst"),
			"manifest":     "custom.yaml",
		})
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(path, data, 0644))

		os.Setenv("FORGE_CONFIG", path)
		defer os.Unsetenv("FORGE_CONFIG")

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(root, "data"), cfg.DataDir)
		assert.Equal(t, filepath.Join(root, "inst"), cfg.InstanceDir)
		assert.Equal(t, "custom.yaml", cfg.Manifest)
		assert.Equal(t, root, cfg.ConfigDir())
	})

	t.Run("creates the directory layout", func(t *testing.T) {
		root := t.TempDir()

		path := filepath.Join(root, "config.json")

		data, err := json.Marshal(map[string]interface{}{
			"data-dir": filepath.Join(root, "data"),
		})
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(path, data, 0644))

		os.Setenv("FORGE_CONFIG", path)
		defer os.Unsetenv("FORGE_CONFIG")

		cfg, err := LoadConfig()
		require.NoError(t, err)

		for _, dir := range []string{
			cfg.BuildPath(),
			cfg.StatePath(),
			cfg.CachePath(),
			cfg.SourcePath(),
		} {
			fi, err := os.Stat(dir)
			require.NoError(t, err)
			assert.True(t, fi.IsDir())
		}
	})

	t.Run("env vars override the file", func(t *testing.T) {
		root := t.TempDir()

		path := filepath.Join(root, "config.json")

		data, err := json.Marshal(map[string]interface{}{
			"data-dir":     filepath.Join(root, "data"),
			"instance-dir": filepath.Join(root, "inst"),
		})
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(path, data, 0644))

		os.Setenv("FORGE_CONFIG", path)
		os.Setenv("FORGE_DATA_DIR", filepath.Join(root, "other-data"))
		os.Setenv("FORGE_INSTANCE", filepath.Join(root, "other-inst"))
		os.Setenv("FORGE_MANIFEST", "env.yaml")

		defer func() {
			os.Unsetenv("FORGE_CONFIG")
			os.Unsetenv("FORGE_DATA_DIR")
			os.Unsetenv("FORGE_INSTANCE")
			os.Unsetenv("FORGE_MANIFEST")
		}()

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(root, "other-data"), cfg.DataDir)
		assert.Equal(t, filepath.Join(root, "other-inst"), cfg.InstanceDir)
		assert.Equal(t, "env.yaml", cfg.Manifest)
	})

	t.Run("paths hang off the data dir", func(t *testing.T) {
		cfg := &Config{DataDir: "/x"}

		assert.Equal(t, "/x/build", cfg.BuildPath())
		assert.Equal(t, "/x/state", cfg.StatePath())
		assert.Equal(t, filepath.Join("/x", "cache", "vcs"), cfg.CachePath())
		assert.Equal(t, "/x/repo", cfg.SourcePath())
		assert.Equal(t, filepath.Join("/x", "state", "forge.lock"), cfg.LockPath())
	})
}

func TestSystemConstraints(t *testing.T) {
	constraints := SystemConstraints()

	assert.NotEmpty(t, constraints["machine/arch"])
	assert.NotEmpty(t, constraints["os/name"])
}
