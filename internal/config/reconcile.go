package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// ReconcileConfig holds settings for the reconcile command.
type ReconcileConfig struct {
	Store    StoreConfig
	RPCURL   string
	Pools    []string
	Block    uint64
	LogLevel string
}

// LoadReconcile merges config file, environment variables, and flags into ReconcileConfig.
func LoadReconcile(cfgFile string, flags *pflag.FlagSet) (ReconcileConfig, error) {
	v, err := newViper(cfgFile, flags, withDefaults(storeDefaults, map[string]interface{}{
		"log-level": "info",
	}))
	if err != nil {
		return ReconcileConfig{}, err
	}

	st, err := loadStore(v)
	if err != nil {
		return ReconcileConfig{}, err
	}

	cfg := ReconcileConfig{
		Store:    st,
		RPCURL:   v.GetString("rpc"),
		Pools:    getStringSlice(v, "pool"),
		Block:    v.GetUint64("block"),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.RPCURL == "" {
		return ReconcileConfig{}, fmt.Errorf("rpc url is required")
	}
	return cfg, nil
}
