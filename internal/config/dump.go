package config

import "github.com/spf13/pflag"

// DumpConfig holds settings for the dump command.
type DumpConfig struct {
	Store    StoreConfig
	Prefix   string
	LogLevel string
}

// LoadDump merges config file, environment variables, and flags into DumpConfig.
func LoadDump(cfgFile string, flags *pflag.FlagSet) (DumpConfig, error) {
	v, err := newViper(cfgFile, flags, withDefaults(storeDefaults, map[string]interface{}{
		"log-level": "warn",
	}))
	if err != nil {
		return DumpConfig{}, err
	}

	st, err := loadStore(v)
	if err != nil {
		return DumpConfig{}, err
	}

	return DumpConfig{
		Store:    st,
		Prefix:   v.GetString("prefix"),
		LogLevel: v.GetString("log-level"),
	}, nil
}
