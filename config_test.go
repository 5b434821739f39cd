package mirror

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "longhornd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfigFillsDefaults(t *testing.T) {
	path := writeConfigFile(t, `base_dir: /data/longhorn`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/longhorn", cfg.BaseDir)
	assert.Equal(t, DefaultRebuildPortMin, cfg.RebuildPortMin)
	assert.Equal(t, DefaultRebuildPortMax, cfg.RebuildPortMax)
	assert.Contains(t, cfg.ListenAddress, "9501")
}

func TestLoadConfigParsesVolumeTopology(t *testing.T) {
	path := writeConfigFile(t, `
base_dir: /data/longhorn
volumes:
  - name: vol1
    size: 1073741824
    block_size: 512
    replicas:
      - lvs: lvs1
      - lvs: lvs2
        address: 10.0.0.2
        nvmf_port: 4420
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Volumes, 1)
	assert.Equal(t, "vol1", cfg.Volumes[0].Name)
	require.Len(t, cfg.Volumes[0].Replicas, 2)
	assert.Equal(t, "10.0.0.2", cfg.Volumes[0].Replicas[1].Address)
}

func TestLoadConfigRejectsVolumeWithNoReplicas(t *testing.T) {
	path := writeConfigFile(t, `
base_dir: /data/longhorn
volumes:
  - name: vol1
    size: 1073741824
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigRejectsInvertedRebuildPortRange(t *testing.T) {
	path := writeConfigFile(t, `
base_dir: /data/longhorn
rebuild_port_min: 20000
rebuild_port_max: 10000
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
