package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolstate/internal/chain"
	"poolstate/internal/config"
	"poolstate/internal/dex"
	"poolstate/internal/indexer"
	"poolstate/internal/model"
	"poolstate/internal/storage"
)

// ingestSink writes bundles and decode errors to separate JSONL files.
type ingestSink struct {
	bundles *storage.JsonlStorage
	errors  *storage.JsonlStorage
}

func (s ingestSink) PutBundles(bundles []model.BlockBundle) error {
	return s.bundles.PutBundles(bundles)
}

func (s ingestSink) PutDecodeErrors(errs []model.DecodeError) error {
	return s.errors.PutDecodeErrors(errs)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	addresses, err := indexer.ParseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return fmt.Errorf("address list is required")
	}

	topic0, err := indexer.ParseTopic0(cfg.Topic0)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	sink := ingestSink{
		bundles: storage.NewJsonlStorage(cfg.Out),
		errors:  storage.NewJsonlStorage(cfg.Errors),
	}

	runner, err := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Addresses:         addresses,
		Topic0:            topic0,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		TraceStorage:      cfg.TraceStorage,
		Decoder:           dex.DecoderConfig{Topic0Map: cfg.Topic0Map},
	}, chainClient, sink, logger)
	if err != nil {
		return err
	}

	logger.Info("ingest start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("addresses", len(addresses)),
		zap.Int("topic0", len(topic0)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.Bool("trace_storage", cfg.TraceStorage),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return runner.Run(ctx)
}
