package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poolstate/internal/config"
	"poolstate/internal/storage/postgres"
	"poolstate/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:          "poolstate",
		Short:        "Pool state extractor for concentrated-liquidity and TWAMM pools",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch logs and storage diffs into block bundles",
		RunE:  runIngest,
	}

	ingestCmd.Flags().String("rpc", "", "RPC URL (debug namespace needed for --trace-storage)")
	ingestCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	ingestCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	ingestCmd.Flags().StringSlice("address", nil, "pool and factory addresses (comma-separated)")
	ingestCmd.Flags().StringSlice("topic0", nil, "topic0 filter (comma-separated)")
	ingestCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	ingestCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	ingestCmd.Flags().String("out", "./data/bundles.jsonl", "output bundles JSONL path")
	ingestCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL path")
	ingestCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	ingestCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	ingestCmd.Flags().Bool("trace-storage", true, "trace storage diffs with debug_traceBlockByNumber")
	ingestCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	ingestCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	ingestCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(ingestCmd)

	extractCmd := &cobra.Command{
		Use:   "extract",
		Short: "Replay block bundles into the aggregation store",
		RunE:  runExtract,
	}

	storeFlags(extractCmd)
	extractCmd.Flags().String("in", "./data/bundles.jsonl", "input bundles JSONL")
	extractCmd.Flags().String("out", "./data/changes.jsonl", "output block changes JSONL")
	extractCmd.Flags().Int("batch-size", 100, "change sets buffered per write")
	extractCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(extractCmd)

	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Print store entries under a key prefix",
		RunE:  runDump,
	}

	storeFlags(dumpCmd)
	dumpCmd.Flags().String("prefix", "", "key prefix, empty for all entries")
	dumpCmd.Flags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(dumpCmd)

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare stored balances, liquidity and tick with on-chain values",
		RunE:  runReconcile,
	}

	storeFlags(reconcileCmd)
	reconcileCmd.Flags().String("rpc", "", "RPC URL")
	reconcileCmd.Flags().StringSlice("pool", nil, "pools to check (comma-separated), empty for all registered")
	reconcileCmd.Flags().Uint64("block", 0, "block to read on-chain values at, 0 means latest")
	reconcileCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(reconcileCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func storeFlags(cmd *cobra.Command) {
	cmd.Flags().String("backend", config.BackendFile, "store backend (memory, file, leveldb, postgres)")
	cmd.Flags().String("store-path", "./data/state.json", "snapshot file or leveldb directory")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().Duration("cache-ttl", 0, "read cache TTL in front of the backend, 0 disables")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openStore builds the configured backend, optionally behind a read cache.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*store.Store, error) {
	var (
		backend store.Backend
		err     error
	)
	switch cfg.Backend {
	case config.BackendMemory:
		backend = store.NewMemoryBackend()
	case config.BackendFile:
		backend, err = store.OpenFileBackend(cfg.Path)
	case config.BackendLevelDB:
		backend, err = store.OpenLevelDB(cfg.Path)
	case config.BackendPostgres:
		backend, err = postgres.NewStore(ctx, cfg.PGDSN)
	default:
		err = fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	if cfg.CacheTTL > 0 {
		backend = store.NewCachedBackend(backend, cfg.CacheTTL)
	}

	logger.Debug("store opened",
		zap.String("backend", cfg.Backend),
		zap.String("path", cfg.Path),
		zap.Duration("cache_ttl", cfg.CacheTTL),
	)
	return store.New(backend, store.WithLogger(logger)), nil
}
