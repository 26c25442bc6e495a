// Package config provides a viper-backed loader for tilecanvas's
// configuration files and environment variables, adapted from the
// teacher's pkg/config.
package config

import (
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tilecanvas/pkg/errs"
)

// Config is the unified configuration for a tilecanvas node: the Tile
// Store, Discovery Graph, and the optional gossip transport binding.
// It mirrors the recognized configuration keys in spec §6.
type Config struct {
	TileStore struct {
		RootDir    string `mapstructure:"root_dir" json:"root_dir"`
		FlushBytes int    `mapstructure:"flush_bytes" json:"flush_bytes"`
		FlushMs    int    `mapstructure:"flush_ms" json:"flush_ms"`
	} `mapstructure:"tile_store" json:"tile_store"`

	Discovery struct {
		PersistPath     string `mapstructure:"persist_path" json:"persist_path"`
		PeerTtlMs       int64  `mapstructure:"peer_ttl_ms" json:"peer_ttl_ms"`
		TileTtlMs       int64  `mapstructure:"tile_ttl_ms" json:"tile_ttl_ms"`
		MaxPeers        int    `mapstructure:"max_peers" json:"max_peers"`
		MaxTiles        int    `mapstructure:"max_tiles" json:"max_tiles"`
		MaxPeersPerTile int    `mapstructure:"max_peers_per_tile" json:"max_peers_per_tile"`
	} `mapstructure:"discovery" json:"discovery"`

	Gossip struct {
		Enabled        bool     `mapstructure:"enabled" json:"enabled"`
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"gossip" json:"gossip"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load.
var AppConfig Config

func setDefaults() {
	viper.SetDefault("tile_store.flush_bytes", 262144)
	viper.SetDefault("tile_store.flush_ms", 5000)
	viper.SetDefault("discovery.peer_ttl_ms", 120000)
	viper.SetDefault("discovery.tile_ttl_ms", 300000)
	viper.SetDefault("discovery.max_peers", 512)
	viper.SetDefault("discovery.max_tiles", 4096)
	viper.SetDefault("discovery.max_peers_per_tile", 32)
	viper.SetDefault("gossip.discovery_tag", "tilecanvas")
	viper.SetDefault("logging.level", "info")
}

// Load reads tilecanvas.yaml (optionally merging an env-specific
// overlay named env) plus environment variables, and returns the
// unified Config. A missing base config file is not an error — the
// defaults above still apply.
func Load(env string) (*Config, error) {
	_ = godotenv.Load()

	viper.SetConfigName("tilecanvas")
	viper.AddConfigPath(".")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errs.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, errs.Wrap(err, "merge "+env+" config")
		}
	}

	viper.SetEnvPrefix("TILECANVAS")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, errs.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}
