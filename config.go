package mirror

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReplicaConfig describes one replica slot in a VolumeConfig, mirroring
// rpcsrv.ReplicaSpec's shape so the YAML file and the control surface agree
// on vocabulary.
type ReplicaConfig struct {
	LVS         string `yaml:"lvs"`
	Address     string `yaml:"address,omitempty"`
	NVMfPort    uint16 `yaml:"nvmf_port,omitempty"`
	ControlPort uint16 `yaml:"control_port,omitempty"`
}

// VolumeConfig describes one volume longhornd should bring up at startup,
// the ADDED "optional list of volumes to recreate automatically" feature
// (original_source keeps its configured-volume list across restarts via
// g_longhorn_bdev_config_head; this is the YAML-file equivalent).
type VolumeConfig struct {
	Name      string          `yaml:"name"`
	Size      int64           `yaml:"size"`
	BlockSize int             `yaml:"block_size,omitempty"`
	Replicas  []ReplicaConfig `yaml:"replicas"`
}

// Config is longhornd's daemon configuration file.
type Config struct {
	// ListenAddress is the control surface's (internal/rpcsrv) bind
	// address, e.g. "0.0.0.0:9501".
	ListenAddress string `yaml:"listen_address"`

	// RebuildPortMin is the port longhornd's rebuild donor listener
	// binds; RebuildPortMax is only validated against it, no listener
	// uses the ports above RebuildPortMin.
	RebuildPortMin int `yaml:"rebuild_port_min,omitempty"`
	RebuildPortMax int `yaml:"rebuild_port_max,omitempty"`

	// BaseDir anchors every local replica's backing file.
	BaseDir string `yaml:"base_dir"`

	// LogLevel and LogFormat configure internal/logging's default logger.
	LogLevel  string `yaml:"log_level,omitempty"`
	LogFormat string `yaml:"log_format,omitempty"`

	// Volumes lists the topology to recreate automatically at startup.
	Volumes []VolumeConfig `yaml:"volumes,omitempty"`
}

// DefaultConfig returns a Config with every optional field at its default.
func DefaultConfig() Config {
	return Config{
		ListenAddress:  fmt.Sprintf("0.0.0.0:%d", DefaultControlPort),
		RebuildPortMin: DefaultRebuildPortMin,
		RebuildPortMax: DefaultRebuildPortMax,
		BaseDir:        "/var/lib/longhorn",
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// LoadConfig reads and validates a daemon config file, filling in defaults
// for anything the file leaves unset.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("mirror: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("mirror: parse config %s: %w", path, err)
	}

	if cfg.RebuildPortMin <= 0 || cfg.RebuildPortMax <= 0 {
		return Config{}, NewError("load_config", CodeInvalidArgument, "rebuild_port_min/max must be positive")
	}
	if cfg.RebuildPortMin >= cfg.RebuildPortMax {
		return Config{}, NewError("load_config", CodeInvalidArgument, "rebuild_port_min must be less than rebuild_port_max")
	}
	for _, v := range cfg.Volumes {
		if len(v.Replicas) == 0 {
			return Config{}, NewError("load_config", CodeInvalidArgument, fmt.Sprintf("volume %q declares no replicas", v.Name))
		}
	}
	return cfg, nil
}
