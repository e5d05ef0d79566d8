// Package config loads the SDS engine's recognized configuration options
// from a YAML file plus environment overrides, mirroring the viper-based
// loader this codebase has always used.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"sds-engine/core"
	"sds-engine/pkg/utils"
)

// Config is the unmarshal target for an SDS node's configuration file.
// Field names match the recognized options in the external interfaces
// table: node_id, mqtt_broker/port/username/password, eviction_grace_ms,
// enable_delta_sync, delta_float_tolerance.
type Config struct {
	NodeID string `mapstructure:"node_id" json:"node_id"`

	MQTTBroker   string `mapstructure:"mqtt_broker" json:"mqtt_broker"`
	MQTTPort     int    `mapstructure:"mqtt_port" json:"mqtt_port"`
	MQTTUsername string `mapstructure:"mqtt_username" json:"mqtt_username"`
	MQTTPassword string `mapstructure:"mqtt_password" json:"mqtt_password"`

	EvictionGraceMS     int64   `mapstructure:"eviction_grace_ms" json:"eviction_grace_ms"`
	EnableDeltaSync     bool    `mapstructure:"enable_delta_sync" json:"enable_delta_sync"`
	DeltaFloatTolerance float32 `mapstructure:"delta_float_tolerance" json:"delta_float_tolerance"`

	SchemaVersion      string `mapstructure:"schema_version" json:"schema_version"`
	StrictVersionCheck bool   `mapstructure:"strict_version_check" json:"strict_version_check"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads default.yaml plus an optional env-named overlay from the
// config/ search path, then applies environment variable overrides via
// viper.AutomaticEnv. The resulting configuration is stored in AppConfig
// and returned.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("SDS")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the SDS_ENV environment variable
// to select the overlay file.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("SDS_ENV", ""))
}

// ToEngineConfig translates the loaded file shape into core.EngineConfig.
// node_id and mqtt_broker are validated by core.Engine.Init, not here;
// this is a pure field mapping.
func (c *Config) ToEngineConfig() core.EngineConfig {
	return core.EngineConfig{
		NodeID:              c.NodeID,
		MQTTBroker:          c.MQTTBroker,
		MQTTPort:            c.MQTTPort,
		MQTTUsername:        c.MQTTUsername,
		MQTTPassword:        c.MQTTPassword,
		EvictionGraceMS:     c.EvictionGraceMS,
		EnableDeltaSync:     c.EnableDeltaSync,
		DeltaFloatTolerance: c.DeltaFloatTolerance,
		SchemaVersion:       c.SchemaVersion,
		StrictVersionCheck:  c.StrictVersionCheck,
	}
}
