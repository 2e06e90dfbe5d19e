package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default("/work")
	assert.Equal(t, filepath.Join("/work", "aupat", "catalog.sqlite3"), c.CatalogPath)
	assert.Equal(t, filepath.Join("/work", "staging"), c.StagingRoot)
	assert.Equal(t, filepath.Join("/work", "archive"), c.ArchiveRoot)
	assert.Equal(t, "exiftool", c.Probe.Exiftool)
	assert.Equal(t, "ffprobe", c.Probe.Ffprobe)
	assert.Equal(t, 30*time.Second, c.ProbeTimeout())
	assert.NotEmpty(t, c.Hardware)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	c, err := Load("", "/work")
	require.NoError(t, err)
	assert.Equal(t, Default("/work"), c)
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aupat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
catalog_path: /data/cat.sqlite3
archive_root: /mnt/archive
probe:
  exiftool: /opt/bin/exiftool
  timeout_sec: 5
hardware_rules:
  - match: fairchild
    category: film
`), 0644))

	c, err := Load(path, "/work")
	require.NoError(t, err)
	assert.Equal(t, "/data/cat.sqlite3", c.CatalogPath)
	assert.Equal(t, "/mnt/archive", c.ArchiveRoot)
	// unset keys keep their defaults
	assert.Equal(t, filepath.Join("/work", "staging"), c.StagingRoot)
	assert.Equal(t, "/opt/bin/exiftool", c.Probe.Exiftool)
	assert.Equal(t, 5*time.Second, c.ProbeTimeout())
	require.Len(t, c.Hardware, 1)
	assert.Equal(t, Rule{Match: "fairchild", Category: "film"}, c.Hardware[0])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "/work")
	assert.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{nope"), 0644))
	_, err := Load(path, "/work")
	assert.Error(t, err)
}
