package config

import (
	"path/filepath"

	"github.com/spf13/viper"

	"modelkeeper/internal/env"
)

/**
 * Server configuration parameters
 * @property {string} host - API server bind host
 * @property {int} port - API server bind port
 * @property {int} backlog - Listen backlog size
 * @property {string} mode - Application mode (debug/release/test)
 */
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Backlog int    `mapstructure:"backlog"`
	Mode    string `mapstructure:"mode"`
}

/**
 * Logging configuration
 * @property {string} level - Log level (debug/info/warn/error)
 * @property {string} path - Log file path, "console" for stdout
 */
type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

/**
 * Metrics configuration
 * @property {string} multiproc_dir - Directory shared by worker processes for
 *                                    multiprocess prometheus metrics
 */
type MetricsConfig struct {
	MultiprocDir string `mapstructure:"multiproc_dir"`
}

// TLSOptions carries the seven optional TLS parameters forwarded to worker
// processes. The zero value of every field means "unset"; unset options are
// omitted from worker argument vectors entirely so the serving layer falls
// back to its own defaults.
type TLSOptions struct {
	Keyfile         string `mapstructure:"keyfile"`
	Certfile        string `mapstructure:"certfile"`
	KeyfilePassword string `mapstructure:"keyfile_password"`
	Version         int    `mapstructure:"version"`
	CertReqs        int    `mapstructure:"cert_reqs"`
	CACerts         string `mapstructure:"ca_certs"`
	Ciphers         string `mapstructure:"ciphers"`
}

// IsZero reports whether no TLS option is set.
func (t TLSOptions) IsZero() bool {
	return t == TLSOptions{}
}

type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	TLS     TLSOptions    `mapstructure:"tls"`
}

/**
 * Load application configuration from YAML file
 */
func LoadConfig() (*AppConfig, error) {
	viper.SetConfigName("modelkeeper")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath(env.ModelkeeperDir)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var Config AppConfig

func collectConfig(cfg *AppConfig) *AppConfig {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.Backlog == 0 {
		cfg.Server.Backlog = 2048
	}
	if cfg.Metrics.MultiprocDir == "" {
		cfg.Metrics.MultiprocDir = filepath.Join(env.ModelkeeperDir, "prometheus_multiproc")
	}
	return cfg
}

func init() {
	cfg, err := LoadConfig()
	if err == nil {
		Config = *cfg
	}
	collectConfig(&Config)
}
