// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. UARTLINK_LINK_PORT.
const EnvPrefix = "UARTLINK"

// LinkConfig selects and parameterises the physical link
type LinkConfig struct {
	Port          string `mapstructure:"port"`
	Baud          int    `mapstructure:"baud"`
	URL           string `mapstructure:"url"`
	Username      string `mapstructure:"username"`
	SkipSSLVerify bool   `mapstructure:"noSSLVerify"`
}

// SenderConfig controls frame transmission
type SenderConfig struct {
	TransmitTimeout time.Duration `mapstructure:"transmitTimeout"`
	Rate            float64       `mapstructure:"rate"`
}

// ReceiverConfig controls frame reception
type ReceiverConfig struct {
	PollTimeout   time.Duration `mapstructure:"pollTimeout"`
	BodyTimeout   time.Duration `mapstructure:"bodyTimeout"`
	StatsInterval time.Duration `mapstructure:"statsInterval"`
}

// LumberjackConfig configures the rotating log file
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig sets log level and outputs
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig exposes link statistics to Prometheus
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// MQTTConfig enables record publishing when Broker is set
type MQTTConfig struct {
	Broker         string        `mapstructure:"broker"`
	QoS            int           `mapstructure:"qos"`
	Retain         bool          `mapstructure:"retain"`
	PublishTimeout time.Duration `mapstructure:"publishTimeout"`
}

// CaptureConfig names optional capture outputs
type CaptureConfig struct {
	File    string `mapstructure:"file"`
	RawFile string `mapstructure:"rawFile"`
}

// Config is the top-level configuration
type Config struct {
	Link     LinkConfig     `mapstructure:"link"`
	Sender   SenderConfig   `mapstructure:"sender"`
	Receiver ReceiverConfig `mapstructure:"receiver"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Capture  CaptureConfig  `mapstructure:"capture"`
}

// flagKeys maps command-line flags onto configuration keys. Flags override
// the file and environment only when set explicitly.
var flagKeys = map[string]string{
	"port":           "link.port",
	"baud":           "link.baud",
	"url":            "link.url",
	"username":       "link.username",
	"no-ssl-verify":  "link.noSSLVerify",
	"log-level":      "logging.level",
	"log-format":     "logging.format",
	"log-file":       "logging.file.filename",
	"rate":           "sender.rate",
	"stats-interval": "receiver.statsInterval",
	"metrics-addr":   "metrics.addr",
	"mqtt-broker":    "mqtt.broker",
	"capture":        "capture.file",
	"raw-log":        "capture.rawFile",
}

// Load reads configuration from path (YAML, TOML or JSON), UARTLINK_*
// environment variables and flags, in increasing priority. An empty path
// falls back to UARTLINK_CONFIG, then to uartlink.yaml in the working
// directory; a missing default file is not an error.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("uartlink")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	if c.Link.Baud <= 0 {
		return fmt.Errorf("invalid config: link.baud must be positive, got %d", c.Link.Baud)
	}
	if c.Sender.TransmitTimeout < 0 || c.Receiver.BodyTimeout < 0 {
		return errors.New("invalid config: timeouts must not be negative")
	}
	if c.Receiver.PollTimeout <= 0 {
		return fmt.Errorf("invalid config: receiver.pollTimeout must be positive, got %s", c.Receiver.PollTimeout)
	}
	if c.Sender.Rate < 0 {
		return fmt.Errorf("invalid config: sender.rate must not be negative, got %g", c.Sender.Rate)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid config: mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("link.port", "")
	v.SetDefault("link.baud", 115200)
	v.SetDefault("link.url", "")
	v.SetDefault("link.username", "")
	v.SetDefault("link.noSSLVerify", false)

	v.SetDefault("sender.transmitTimeout", "100ms")
	v.SetDefault("sender.rate", 20.0)

	v.SetDefault("receiver.pollTimeout", "100ms")
	v.SetDefault("receiver.bodyTimeout", "50ms")
	v.SetDefault("receiver.statsInterval", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.publishTimeout", "250ms")

	v.SetDefault("capture.file", "")
	v.SetDefault("capture.rawFile", "")
}
