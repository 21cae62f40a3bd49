// Package config loads the optional YAML configuration file for the
// dlprobe command. Flags override anything set here.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHostname     = "localhost"
	defaultServerListen = ":8765"
)

// Duration accepts either a bare number of seconds or a Go duration string.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	switch value.Tag {
	case "!!int", "!!float":
		var secs float64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	default:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		if raw == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
}

// Client holds measurement-client settings.
type Client struct {
	Hostname      string   `yaml:"hostname"`
	Port          string   `yaml:"port"`
	Adaptive      bool     `yaml:"adaptive"`
	SkipTLSVerify bool     `yaml:"skip_tls_verify"`
	DisableTLS    bool     `yaml:"disable_tls"`
	Scramble      bool     `yaml:"scramble"`
	Proxy         string   `yaml:"proxy"`
	Duration      Duration `yaml:"duration"`
}

// Server holds local-server settings.
type Server struct {
	Listen      string   `yaml:"listen"`
	RateMbps    float64  `yaml:"rate_mbps"`
	MessageSize int      `yaml:"message_size"`
	Duration    Duration `yaml:"duration"`
}

// Config is the root of the configuration file.
type Config struct {
	Client Client `yaml:"client"`
	Server Server `yaml:"server"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Client: Client{Hostname: defaultHostname},
		Server: Server{Listen: defaultServerListen},
	}
}

// Load reads path into the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
