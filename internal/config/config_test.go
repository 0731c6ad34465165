package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}

func TestLoadOverridesOnlySpecifiedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coreplay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logLevel: debug
heap:
  pictures: 4
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Heap.Pictures)
	// unspecified fields keep their defaults
	assert.Equal(t, Defaults().Heap.Subpictures, cfg.Heap.Subpictures)
	assert.Equal(t, Defaults().FIFO.MaxBytes, cfg.FIFO.MaxBytes)
	assert.Equal(t, Defaults().Video.DisplayDelay, cfg.Video.DisplayDelay)
}

func TestLoadParsesDurationAsNanoseconds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coreplay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
video:
  displayDelayNs: 150000000
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 150*time.Millisecond, cfg.Video.DisplayDelay)
}
