// Package node wires the store, transport, relay, RPC service and metrics into a
// running transaction relay node.
package node

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/wire"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// 저장소 백엔드 종류
const (
	StoreMemory  = "memory"
	StoreLevelDB = "leveldb"
)

// Config holds configuration for a relay node.
type Config struct {
	// 노드 식별
	NodeID string `mapstructure:"node_id"`

	// 네트워크
	ListenAddr string   `mapstructure:"listen_addr"` // P2P listen address
	Peers      []string `mapstructure:"peers"`       // "id@host:port"
	Network    string   `mapstructure:"network"`     // mainnet, testnet3, regtest, simnet

	// 로컬 RPC
	RPCAddr string `mapstructure:"rpc_addr"`

	// Prometheus metrics
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsAddr    string `mapstructure:"metrics_addr"`

	// Logging
	LogLevel string `mapstructure:"log_level"`

	// 저장소
	DataDir      string `mapstructure:"data_dir"`
	StoreBackend string `mapstructure:"store_backend"`

	// 릴레이 수신 큐 크기
	BackPressure int `mapstructure:"back_pressure"`

	// 0이면 시각 기반 시드
	RNGSeed int64 `mapstructure:"rng_seed"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:         "",
		ListenAddr:     "0.0.0.0:18333",
		Peers:          []string{},
		Network:        "testnet3",
		RPCAddr:        "127.0.0.1:18340",
		MetricsEnabled: true,
		MetricsAddr:    "0.0.0.0:18360",
		LogLevel:       "info",
		DataDir:        "./data",
		StoreBackend:   StoreLevelDB,
		BackPressure:   100,
		RNGSeed:        0,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return ErrEmptyNodeID
	}
	if c.ListenAddr == "" {
		return ErrEmptyListenAddr
	}
	if _, err := c.BitcoinNet(); err != nil {
		return err
	}
	switch c.StoreBackend {
	case StoreMemory:
	case StoreLevelDB:
		if c.DataDir == "" {
			return ErrEmptyDataDir
		}
	default:
		return ErrUnknownStoreBackend
	}
	if c.BackPressure <= 0 {
		return ErrInvalidBackPressure
	}
	if c.MetricsEnabled && c.MetricsAddr == "" {
		return ErrEmptyMetricsAddr
	}
	if _, err := ParsePeers(c.Peers); err != nil {
		return err
	}
	return nil
}

// BitcoinNet maps the network name to its wire magic.
func (c *Config) BitcoinNet() (wire.BitcoinNet, error) {
	switch c.Network {
	case "mainnet":
		return wire.MainNet, nil
	case "testnet3":
		return wire.TestNet3, nil
	case "regtest":
		return wire.TestNet, nil
	case "simnet":
		return wire.SimNet, nil
	default:
		return 0, ErrUnknownNetwork
	}
}

// PeerAddr is a configured peer.
type PeerAddr struct {
	ID      string
	Address string
}

// ParsePeers parses "id@host:port" entries. Blank entries are skipped.
func ParsePeers(peers []string) ([]PeerAddr, error) {
	var out []PeerAddr
	for _, peer := range peers {
		peer = strings.TrimSpace(peer)
		if peer == "" {
			continue
		}

		parts := strings.SplitN(peer, "@", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("%w: %q (expected id@host:port)", ErrInvalidPeer, peer)
		}
		out = append(out, PeerAddr{ID: parts[0], Address: parts[1]})
	}
	return out, nil
}

// LoadConfig reads the configuration from, in rising priority: defaults, the config
// file at path (if not empty), TXRELAY_* environment variables and changed flags.
// Flag names use dashes for the underscores of the config keys.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("node_id", def.NodeID)
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("peers", def.Peers)
	v.SetDefault("network", def.Network)
	v.SetDefault("rpc_addr", def.RPCAddr)
	v.SetDefault("metrics_enabled", def.MetricsEnabled)
	v.SetDefault("metrics_addr", def.MetricsAddr)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("store_backend", def.StoreBackend)
	v.SetDefault("back_pressure", def.BackPressure)
	v.SetDefault("rng_seed", def.RNGSeed)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("TXRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !isConfigKey(key) {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

var configKeys = map[string]struct{}{
	"node_id": {}, "listen_addr": {}, "peers": {}, "network": {}, "rpc_addr": {},
	"metrics_enabled": {}, "metrics_addr": {}, "log_level": {}, "data_dir": {},
	"store_backend": {}, "back_pressure": {}, "rng_seed": {},
}

func isConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

// Custom errors
type configError string

func (e configError) Error() string {
	return string(e)
}

const (
	ErrEmptyNodeID         = configError("node ID is required")
	ErrEmptyListenAddr     = configError("listen address is required")
	ErrUnknownNetwork      = configError("network must be mainnet, testnet3, regtest or simnet")
	ErrUnknownStoreBackend = configError("store backend must be memory or leveldb")
	ErrEmptyDataDir        = configError("data directory is required for the leveldb store")
	ErrInvalidBackPressure = configError("back pressure must be positive")
	ErrEmptyMetricsAddr    = configError("metrics address is required when metrics are enabled")
	ErrInvalidPeer         = configError("invalid peer")
)
