package main

import (
	"os"

	"github.com/spf13/cobra"

	"poolstate/internal/config"
	"poolstate/internal/store"
)

func runDump(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDump(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signalContext()
	defer stop()

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.Entries(ctx, cfg.Prefix)
	if err != nil {
		return err
	}
	return store.WriteDump(os.Stdout, entries)
}
