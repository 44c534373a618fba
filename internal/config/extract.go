package config

import "github.com/spf13/pflag"

// ExtractConfig holds settings for the extract command.
type ExtractConfig struct {
	Store     StoreConfig
	In        string
	Out       string
	BatchSize int
	LogLevel  string
}

// LoadExtract merges config file, environment variables, and flags into ExtractConfig.
func LoadExtract(cfgFile string, flags *pflag.FlagSet) (ExtractConfig, error) {
	v, err := newViper(cfgFile, flags, withDefaults(storeDefaults, map[string]interface{}{
		"in":         "./data/bundles.jsonl",
		"out":        "./data/changes.jsonl",
		"batch-size": 100,
		"log-level":  "info",
	}))
	if err != nil {
		return ExtractConfig{}, err
	}

	st, err := loadStore(v)
	if err != nil {
		return ExtractConfig{}, err
	}

	return ExtractConfig{
		Store:     st,
		In:        v.GetString("in"),
		Out:       v.GetString("out"),
		BatchSize: v.GetInt("batch-size"),
		LogLevel:  v.GetString("log-level"),
	}, nil
}
