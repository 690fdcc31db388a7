// Package config loads the application's configuration from a JSON file
// with environment variable overrides, the same pattern the teacher's
// database package used for its own connection settings, generalized
// across every subsystem this binary wires together.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/keato/btc-observer/internal/handshake"
	"github.com/keato/btc-observer/internal/protocol"
)

// Config aggregates every subsystem's settings.
type Config struct {
	Handshake HandshakeConfig `json:"handshake"`
	Discovery DiscoveryConfig `json:"discovery"`
	Peerstore PeerstoreConfig `json:"peerstore"`
	Metrics   MetricsConfig   `json:"metrics"`
}

// HandshakeConfig sources the handshake.Config fields a caller assembles
// per peer. Network is either "mainnet" or "testnet3".
type HandshakeConfig struct {
	Network        string        `json:"network"`
	UserAgent      string        `json:"user_agent"`
	StartHeight    int32         `json:"start_height"`
	StrictVerify   bool          `json:"strict_verify"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	IOTimeout      time.Duration `json:"io_timeout"`
}

// DiscoveryConfig configures the bitnodes.io candidate source.
type DiscoveryConfig struct {
	SnapshotURL string        `json:"snapshot_url"`
	FetchTimeout time.Duration `json:"fetch_timeout"`
}

// PeerstoreConfig holds the Postgres connection settings, same shape as
// the teacher's database.Config.
type PeerstoreConfig struct {
	DBHost     string `json:"db_host"`
	DBPort     int    `json:"db_port"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
	DBName     string `json:"db_name"`
}

// MetricsConfig configures the Prometheus HTTP endpoint.
type MetricsConfig struct {
	ListenAddr string `json:"listen_addr"`
}

// ToHandshakeConfig builds a handshake.Config for dialing remoteAddress,
// applying this HandshakeConfig's policy and network selection.
func (h HandshakeConfig) ToHandshakeConfig(remoteAddress string) handshake.Config {
	magic := protocol.MagicMainnet
	if h.Network == "testnet3" {
		magic = protocol.MagicTestnet
	}
	return handshake.Config{
		RemoteAddress:  remoteAddress,
		UserAgent:      h.UserAgent,
		StartHeight:    h.StartHeight,
		StrictVerify:   h.StrictVerify,
		Magic:          magic,
		ConnectTimeout: h.ConnectTimeout,
		IOTimeout:      h.IOTimeout,
	}
}

// Default returns a Config with reasonable defaults for local
// development, overridden by Load when a config file and/or environment
// variables are present.
func Default() Config {
	return Config{
		Handshake: HandshakeConfig{
			Network:        "mainnet",
			UserAgent:      "/btc-observer:1.0/",
			StartHeight:    0,
			StrictVerify:   true,
			ConnectTimeout: 10 * time.Second,
			IOTimeout:      30 * time.Second,
		},
		Discovery: DiscoveryConfig{
			SnapshotURL:  "https://bitnodes.io/api/v1/snapshots/latest/",
			FetchTimeout: 15 * time.Second,
		},
		Peerstore: PeerstoreConfig{
			DBHost: "localhost",
			DBPort: 5432,
			DBName: "btc_observer",
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9090",
		},
	}
}

// Load reads path as JSON over the defaults, then applies environment
// variable overrides, mirroring database.LoadConfig in the teacher.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("BTC_OBSERVER_NETWORK"); v != "" {
		cfg.Handshake.Network = v
	}
	if v := os.Getenv("BTC_OBSERVER_USER_AGENT"); v != "" {
		cfg.Handshake.UserAgent = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Peerstore.DBHost = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Peerstore.DBUser = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Peerstore.DBPassword = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Peerstore.DBName = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		var port int
		if n, err := fmt.Sscanf(v, "%d", &port); n != 1 || err != nil {
			return fmt.Errorf("invalid DB_PORT: %s", v)
		}
		cfg.Peerstore.DBPort = port
	}
	if v := os.Getenv("METRICS_LISTEN_ADDR"); v != "" {
		cfg.Metrics.ListenAddr = v
	}
	return nil
}
