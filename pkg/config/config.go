// Package config provides a reusable viper-based loader for the agent mesh
// core's unified configuration, mirroring this codebase's existing
// pkg/config loader (same library, same merge-environment-over-file shape),
// generalized from chain/consensus/VM settings to storage/graph/transport/
// memory settings.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// StorageBackendKind selects one of the storage engine's pluggable backends.
type StorageBackendKind string

const (
	BackendMemory StorageBackendKind = "memory"
	BackendBTree  StorageBackendKind = "btree"
	BackendLSM    StorageBackendKind = "lsm"
)

// Config is the unified configuration for an agent mesh node.
type Config struct {
	Storage struct {
		Backend           StorageBackendKind `mapstructure:"backend" json:"backend"`
		Path              string             `mapstructure:"path" json:"path"`
		MaxSizeBytes      int64              `mapstructure:"max_size_bytes" json:"max_size_bytes"`
		AggressivePruning bool               `mapstructure:"aggressive_pruning" json:"aggressive_pruning"`
	} `mapstructure:"storage" json:"storage"`

	Transport struct {
		ListenAddr              string        `mapstructure:"listen_addr" json:"listen_addr"`
		ALPN                    string        `mapstructure:"alpn" json:"alpn"`
		MaxIdleTimeout          time.Duration `mapstructure:"max_idle_timeout" json:"max_idle_timeout"`
		KeepAliveInterval       time.Duration `mapstructure:"keep_alive_interval" json:"keep_alive_interval"`
		MaxConcurrentUniStreams int64         `mapstructure:"max_concurrent_uni_streams" json:"max_concurrent_uni_streams"`
		MaxConnections          int           `mapstructure:"max_connections" json:"max_connections"`
		InsecureSkipVerify      bool          `mapstructure:"insecure_skip_verify" json:"insecure_skip_verify"`
	} `mapstructure:"transport" json:"transport"`

	Memory struct {
		STMMaxEntries           int           `mapstructure:"stm_max_entries" json:"stm_max_entries"`
		STMMaxMemoryBytes       int           `mapstructure:"stm_max_memory_bytes" json:"stm_max_memory_bytes"`
		STMDecayInterval        time.Duration `mapstructure:"stm_decay_interval" json:"stm_decay_interval"`
		STMDecayFactor          float32       `mapstructure:"stm_decay_factor" json:"stm_decay_factor"`
		STMMinAttentionThresh   float32       `mapstructure:"stm_min_attention_threshold" json:"stm_min_attention_threshold"`
		LTMMaxEntities          int           `mapstructure:"ltm_max_entities" json:"ltm_max_entities"`
		LTMMaxLinks             int           `mapstructure:"ltm_max_links" json:"ltm_max_links"`
		AutoConsolidate         bool          `mapstructure:"auto_consolidate" json:"auto_consolidate"`
		MaxSTMBeforeConsolidate int           `mapstructure:"max_stm_before_consolidate" json:"max_stm_before_consolidate"`
	} `mapstructure:"memory" json:"memory"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// Default returns a Config populated with the defaults named throughout the
// spec (§4.1, §4.3, §4.4).
func Default() Config {
	var c Config
	c.Storage.Backend = BackendMemory
	c.Storage.Path = "./data"
	c.Storage.MaxSizeBytes = 0 // unbounded
	c.Transport.ListenAddr = "0.0.0.0:0"
	c.Transport.ALPN = "agentmesh/1"
	c.Transport.MaxIdleTimeout = 30 * time.Second
	c.Transport.MaxConcurrentUniStreams = 1024
	c.Transport.MaxConnections = 256
	c.Memory.STMMaxEntries = 10_000
	c.Memory.STMMaxMemoryBytes = 64 << 20
	c.Memory.STMDecayInterval = time.Minute
	c.Memory.STMDecayFactor = 0.9
	c.Memory.STMMinAttentionThresh = 0.05
	c.Memory.LTMMaxEntities = 1_000_000
	c.Memory.LTMMaxLinks = 4_000_000
	c.Memory.AutoConsolidate = true
	c.Memory.MaxSTMBeforeConsolidate = 8_000
	c.Logging.Level = "info"
	return c
}

// Load reads a YAML configuration file at path (if non-empty), overlays any
// AGENTMESH_-prefixed environment variables, and returns the merged result.
// Disk/env acquisition is the only collaborator-owned part of this function;
// the resulting Config struct is consumed directly by this repo's subsystem
// constructors.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("AGENTMESH")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
