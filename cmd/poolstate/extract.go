package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolstate/internal/aggregate"
	"poolstate/internal/config"
	"poolstate/internal/extract"
	"poolstate/internal/storage"
)

func runExtract(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadExtract(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if err := extract.ValidateLayouts(); err != nil {
		return fmt.Errorf("storage layouts: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var sink storage.ChangeSink
	if cfg.Out != "" {
		sink = storage.NewJsonlStorage(cfg.Out)
	}

	logger.Info("extract start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("backend", cfg.Store.Backend),
		zap.Int("batch_size", cfg.BatchSize),
	)

	agg := aggregate.NewAggregator(aggregate.Config{BatchSize: cfg.BatchSize}, st, sink, logger)
	_, err = agg.RunFile(ctx, cfg.In)
	return err
}
