package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/blockvault/internal/bytesize"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, DefaultBlockSize, cfg.Backup.BlockSize)
	assert.Empty(t, cfg.Backup.Exclude)
	assert.Empty(t, cfg.Metrics.Textfile)
}

func TestDefaultBlockSizeIs128MiB(t *testing.T) {
	assert.Equal(t, bytesize.ByteSize(1<<27), DefaultBlockSize)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultBlockSize, cfg.Backup.BlockSize)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logging:
  level: debug
  format: json
backup:
  block_size: 64Mi
  exclude:
    - node_modules
    - "*.tmp"
metrics:
  textfile: /var/lib/node_exporter/blockvault.prom
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level) // normalized
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output) // defaulted
	assert.Equal(t, 64*bytesize.MiB, cfg.Backup.BlockSize)
	assert.Equal(t, []string{"node_modules", "*.tmp"}, cfg.Backup.Exclude)
	assert.Equal(t, "/var/lib/node_exporter/blockvault.prom", cfg.Metrics.Textfile)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logging:
  level: verbose
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsZeroBlockSize(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Backup.BlockSize = 0
	assert.Error(t, Validate(cfg))
}

func TestInitConfigRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, InitConfigToPath(path, false))

	// Refuses to overwrite without force.
	assert.Error(t, InitConfigToPath(path, false))
	require.NoError(t, InitConfigToPath(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultBlockSize, cfg.Backup.BlockSize)
}
