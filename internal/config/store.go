package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Store backends accepted by --backend.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendLevelDB  = "leveldb"
	BackendPostgres = "postgres"
)

// StoreConfig selects and locates the aggregation store backend.
type StoreConfig struct {
	Backend string
	// Path is the snapshot file for "file" and the database directory for "leveldb".
	Path     string
	PGDSN    string
	CacheTTL time.Duration
}

var storeDefaults = map[string]interface{}{
	"backend":    BackendFile,
	"store-path": "./data/state.json",
	"cache-ttl":  time.Duration(0),
}

func loadStore(v *viper.Viper) (StoreConfig, error) {
	cfg := StoreConfig{
		Backend:  v.GetString("backend"),
		Path:     v.GetString("store-path"),
		PGDSN:    v.GetString("pg-dsn"),
		CacheTTL: v.GetDuration("cache-ttl"),
	}
	return cfg, cfg.Validate()
}

// Validate checks that the backend is known and has what it needs.
func (c StoreConfig) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendFile, BackendLevelDB:
		if c.Path == "" {
			return fmt.Errorf("backend %s requires --store-path", c.Backend)
		}
	case BackendPostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("backend %s requires --pg-dsn", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}
	return nil
}

func withDefaults(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
