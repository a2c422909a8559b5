package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Config holds the tunables shared by the sender and receiver mains.
// HandshakeTimeoutMs and DataTimeoutMs are interoperability-critical:
// both peers must run with the same values.
type Config struct {
	WindowSize         int  `yaml:"windowSize"`         // advertised window in segments, capped to 32
	HandshakeTimeoutMs int  `yaml:"handshakeTimeoutMs"` // SYN / SYN+ACK / FIN retry interval
	DataTimeoutMs      int  `yaml:"dataTimeoutMs"`      // receiver idle slice and SACK gap retransmit spacing
	MinRtoMs           int  `yaml:"minRtoMs"`           // lower clamp of the computed RTO
	PayloadPoolSize    int  `yaml:"payloadPoolSize"`    // number of payload chunks in the ring pool
	Debug              bool `yaml:"debug"`
	PoolDebug          bool `yaml:"poolDebug"`
	ChatPort           int  `yaml:"chatPort"` // TCP chat default port
}

// AppConfig is the process-wide configuration, set by the mains after ReadConfig.
var AppConfig *Config

func DefaultConfig() *Config {
	return &Config{
		WindowSize:         32,
		HandshakeTimeoutMs: 800,
		DataTimeoutMs:      500,
		MinRtoMs:           20,
		PayloadPoolSize:    2048,
		Debug:              false,
		PoolDebug:          false,
		ChatPort:           5000,
	}
}

// ReadConfig loads filename on top of the defaults. A missing file is not an
// error: the defaults are returned so the binaries run without a config.yaml.
func ReadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "reading config file %s", filename)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config file %s", filename)
	}
	return cfg, nil
}
