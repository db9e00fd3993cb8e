package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"tiny_kv/pkg/logger"
)

type Config struct {
	Log     logger.Config `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
}

type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace"`
	// Addr serves /metrics from the driver when not empty.
	Addr string `toml:"addr"`
}

func getLogLevel() (logLevel string) {
	logLevel = "info"
	if l := os.Getenv("LOG_LEVEL"); len(l) != 0 {
		logLevel = l
	}
	return
}

func NewDefaultConfig() *Config {
	return &Config{
		Log: logger.Config{
			Level:      getLogLevel(),
			Format:     "console",
			OutputFile: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "tiny_kv",
		},
	}
}

// Load reads a TOML file on top of the defaults.
func Load(path string) (*Config, error) {
	conf := NewDefaultConfig()
	if path == "" {
		return conf, nil
	}
	if _, err := toml.DecodeFile(path, conf); err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "console":
	default:
		return errors.Errorf("log format must be json or console, got %q", c.Log.Format)
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return errors.New("metrics namespace must not be empty")
	}
	return nil
}
