package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

// Defaults applied by Normalize when fields are unset.
const (
	defaultAddr            = ":8080"
	defaultHost            = "127.0.0.1"
	defaultModelsDir       = "~/models/llm"
	defaultRegistryPath    = "~/.synapsed/registry.json"
	defaultLlamaServer     = "llama-server"
	defaultPortStart       = 9001
	defaultPortEnd         = 9099
	defaultPowerfulMinB    = 13.0
	defaultFastMaxB        = 7.0
	defaultMaxStartupSec   = 120
	defaultShutdownSec     = 10
	defaultForceKillSec    = 5
	defaultHealthIntervSec = 30
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by defaults in Normalize.
type Config struct {
	Addr            string  `json:"addr" yaml:"addr" toml:"addr" envconfig:"ADDR"`
	Host            string  `json:"host" yaml:"host" toml:"host" envconfig:"HOST"`
	ModelsDir       string  `json:"models_dir" yaml:"models_dir" toml:"models_dir" envconfig:"MODELS_DIR"`
	RegistryPath    string  `json:"registry_path" yaml:"registry_path" toml:"registry_path" envconfig:"REGISTRY_PATH"`
	LlamaServerPath string  `json:"llama_server_path" yaml:"llama_server_path" toml:"llama_server_path" envconfig:"LLAMA_SERVER_PATH"`
	PortStart       int     `json:"port_start" yaml:"port_start" toml:"port_start" envconfig:"PORT_START"`
	PortEnd         int     `json:"port_end" yaml:"port_end" toml:"port_end" envconfig:"PORT_END"`
	PowerfulMinB    float64 `json:"powerful_min_b" yaml:"powerful_min_b" toml:"powerful_min_b" envconfig:"POWERFUL_MIN_B"`
	FastMaxB        float64 `json:"fast_max_b" yaml:"fast_max_b" toml:"fast_max_b" envconfig:"FAST_MAX_B"`

	MaxStartupSec      int `json:"max_startup_sec" yaml:"max_startup_sec" toml:"max_startup_sec" envconfig:"MAX_STARTUP_SEC"`
	ShutdownTimeoutSec int `json:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec" toml:"shutdown_timeout_sec" envconfig:"SHUTDOWN_TIMEOUT_SEC"`
	ForceKillGraceSec  int `json:"force_kill_grace_sec" yaml:"force_kill_grace_sec" toml:"force_kill_grace_sec" envconfig:"FORCE_KILL_GRACE_SEC"`
	HealthIntervalSec  int `json:"health_interval_sec" yaml:"health_interval_sec" toml:"health_interval_sec" envconfig:"HEALTH_INTERVAL_SEC"`

	// Global runtime defaults; a per-model override wins when set.
	NGPULayers int `json:"n_gpu_layers" yaml:"n_gpu_layers" toml:"n_gpu_layers" envconfig:"N_GPU_LAYERS"`
	CtxSize    int `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size" envconfig:"CTX_SIZE"`
	NThreads   int `json:"n_threads" yaml:"n_threads" toml:"n_threads" envconfig:"N_THREADS"`
	BatchSize  int `json:"batch_size" yaml:"batch_size" toml:"batch_size" envconfig:"BATCH_SIZE"`

	LogLevel       string              `json:"log_level" yaml:"log_level" toml:"log_level" envconfig:"LOG_LEVEL"`
	DefaultProfile string              `json:"default_profile" yaml:"default_profile" toml:"default_profile" envconfig:"DEFAULT_PROFILE"`
	Profiles       map[string][]string `json:"profiles" yaml:"profiles" toml:"profiles" ignored:"true"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// FromEnv overlays SYNAPSED_* environment variables onto cfg. Set variables
// win over file values.
func FromEnv(cfg Config) (Config, error) {
	if err := envconfig.Process("synapsed", &cfg); err != nil {
		return cfg, fmt.Errorf("env overlay: %w", err)
	}
	return cfg, nil
}

// Normalize fills defaults and validates the port range and thresholds.
func Normalize(cfg Config) (Config, error) {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = defaultModelsDir
	}
	if cfg.RegistryPath == "" {
		cfg.RegistryPath = defaultRegistryPath
	}
	if cfg.LlamaServerPath == "" {
		cfg.LlamaServerPath = defaultLlamaServer
	}
	if cfg.PortStart == 0 {
		cfg.PortStart = defaultPortStart
	}
	if cfg.PortEnd == 0 {
		cfg.PortEnd = defaultPortEnd
	}
	if cfg.PowerfulMinB == 0 {
		cfg.PowerfulMinB = defaultPowerfulMinB
	}
	if cfg.FastMaxB == 0 {
		cfg.FastMaxB = defaultFastMaxB
	}
	if cfg.MaxStartupSec == 0 {
		cfg.MaxStartupSec = defaultMaxStartupSec
	}
	if cfg.ShutdownTimeoutSec == 0 {
		cfg.ShutdownTimeoutSec = defaultShutdownSec
	}
	if cfg.ForceKillGraceSec == 0 {
		cfg.ForceKillGraceSec = defaultForceKillSec
	}
	if cfg.HealthIntervalSec == 0 {
		cfg.HealthIntervalSec = defaultHealthIntervSec
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.PortStart < 1 || cfg.PortEnd > 65535 || cfg.PortEnd < cfg.PortStart {
		return cfg, fmt.Errorf("invalid port range %d-%d", cfg.PortStart, cfg.PortEnd)
	}
	if cfg.FastMaxB > cfg.PowerfulMinB {
		return cfg, fmt.Errorf("fast_max_b %.1f exceeds powerful_min_b %.1f", cfg.FastMaxB, cfg.PowerfulMinB)
	}
	return cfg, nil
}

// PortRange returns the configured allocation range.
func (c Config) PortRange() types.PortRange {
	return types.PortRange{Start: c.PortStart, End: c.PortEnd}
}

// TierThresholds returns the configured classification cut-offs.
func (c Config) TierThresholds() types.TierThresholds {
	return types.TierThresholds{PowerfulMin: c.PowerfulMinB, FastMax: c.FastMaxB}
}

func (c Config) MaxStartupTime() time.Duration {
	return time.Duration(c.MaxStartupSec) * time.Second
}

func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

func (c Config) ForceKillGrace() time.Duration {
	return time.Duration(c.ForceKillGraceSec) * time.Second
}

func (c Config) HealthInterval() time.Duration {
	return time.Duration(c.HealthIntervalSec) * time.Second
}
