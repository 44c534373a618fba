package indexer

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"poolstate/internal/chain"
	"poolstate/internal/dex"
	"poolstate/internal/model"
	"poolstate/internal/storage"
)

// Source is the chain access ingestion needs. *chain.Client implements it.
type Source interface {
	chain.Caller
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	BlockHeader(ctx context.Context, number uint64) (common.Hash, uint64, error)
	TraceStorageDiff(ctx context.Context, number uint64) ([]chain.TxStorageDiff, error)
}

// Sink receives bundles and undecodable logs.
type Sink interface {
	storage.BundleSink
	storage.ErrorSink
}

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Addresses         []common.Address
	Topic0            []common.Hash
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	// TraceStorage fetches per-transaction storage diffs for every block
	// with a decoded event. Needs the debug RPC namespace.
	TraceStorage bool
	Decoder      dex.DecoderConfig
}

// Runner streams logs and storage diffs from the chain and writes block
// bundles to storage.
type Runner struct {
	cfg        RunConfig
	chain      Source
	sink       Sink
	logger     *zap.Logger
	checkpoint *CheckpointStore
	decoders   []dex.Decoder
	meta       dex.DecodeContext
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, source Source, sink Sink, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	decoders, err := dex.Decoders(cfg.Decoder)
	if err != nil {
		return nil, fmt.Errorf("build decoders: %w", err)
	}
	return &Runner{
		cfg:        cfg,
		chain:      source,
		sink:       sink,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		decoders:   decoders,
		meta: dex.DecodeContext{
			Chain:         source,
			Registrations: dex.NewCache[model.PoolCreatedEventData](),
			Logger:        logger,
		},
	}, nil
}

// Run executes the indexing loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.sink == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load()
		if err != nil {
			return err
		}
		if ok && cp.LastProcessedBlock >= from {
			from = cp.LastProcessedBlock + 1
			r.logger.Info("resume from checkpoint",
				zap.Uint64("last_processed", cp.LastProcessedBlock),
				zap.String("last_bundle_hash", cp.LastBundleHash),
				zap.Uint64("from", from))
		}
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.logger.Info("fetch logs", zap.Stringer("range", blockRange), zap.Uint64("blocks", blockRange.Len()))

		logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		bundles, decodeErrs, err := r.buildBundles(ctx, chainIDValue, logs)
		if err != nil {
			return err
		}

		if err := r.sink.PutBundles(bundles); err != nil {
			return fmt.Errorf("store bundles: %w", err)
		}
		if err := r.sink.PutDecodeErrors(decodeErrs); err != nil {
			return fmt.Errorf("store decode errors: %w", err)
		}

		if r.checkpoint != nil {
			cp := Checkpoint{LastProcessedBlock: blockRange.To}
			if n := len(bundles); n > 0 {
				cp.LastBundleBlock = bundles[n-1].Number
				cp.LastBundleHash = bundles[n-1].Hash
			}
			if err := r.checkpoint.Save(cp); err != nil {
				return err
			}
		}

		r.logger.Info("batch complete",
			zap.Int("logs", len(logs)),
			zap.Int("bundles", len(bundles)),
			zap.Int("decode_errors", len(decodeErrs)),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To))
	}

	return nil
}

// buildBundles groups logs by block and assembles one bundle per block that
// carries at least one decoded event. Duplicate logs are dropped within the
// batch; batches never overlap.
func (r *Runner) buildBundles(ctx context.Context, chainID uint64, logs []types.Log) ([]model.BlockBundle, []model.DecodeError, error) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		if logs[i].TxIndex != logs[j].TxIndex {
			return logs[i].TxIndex < logs[j].TxIndex
		}
		return logs[i].Index < logs[j].Index
	})

	var (
		bundles    []model.BlockBundle
		decodeErrs []model.DecodeError
		seen       = make(logSet)
	)
	for start := 0; start < len(logs); {
		number := logs[start].BlockNumber
		end := start
		for end < len(logs) && logs[end].BlockNumber == number {
			end++
		}

		bundle, errs, err := r.buildBundle(ctx, chainID, number, logs[start:end], seen)
		if err != nil {
			return nil, nil, fmt.Errorf("block %d: %w", number, err)
		}
		decodeErrs = append(decodeErrs, errs...)
		if len(bundle.Events) > 0 {
			bundles = append(bundles, bundle)
		}
		start = end
	}
	return bundles, decodeErrs, nil
}

func (r *Runner) buildBundle(ctx context.Context, chainID, number uint64, logs []types.Log, seen logSet) (model.BlockBundle, []model.DecodeError, error) {
	hash, ts, err := r.blockHeaderWithRetry(ctx, number)
	if err != nil {
		return model.BlockBundle{}, nil, fmt.Errorf("block header: %w", err)
	}

	records := make([]model.LogRecord, 0, len(logs))
	for _, log := range logs {
		if log.Removed || seen.duplicate(log) {
			continue
		}
		records = append(records, buildLogRecord(chainID, log, ts))
	}

	var diffs []chain.TxStorageDiff
	if r.cfg.TraceStorage && len(records) > 0 {
		diffs, err = r.traceWithRetry(ctx, number)
		if err != nil {
			return model.BlockBundle{}, nil, fmt.Errorf("trace storage: %w", err)
		}
	}

	bundle := model.BlockBundle{
		ChainID:   chainID,
		Number:    number,
		Hash:      hash.Hex(),
		Timestamp: ts,
	}
	meta := r.meta
	meta.Context = ctx
	return assemble(bundle, records, diffs, r.decoders, meta, r.logger)
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, r.cfg.Addresses, r.cfg.Topic0)
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockHeaderWithRetry(ctx context.Context, blockNumber uint64) (common.Hash, uint64, error) {
	var (
		hash common.Hash
		ts   uint64
	)
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		hash, ts, err = r.chain.BlockHeader(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block header fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return hash, ts, err
}

func (r *Runner) traceWithRetry(ctx context.Context, blockNumber uint64) ([]chain.TxStorageDiff, error) {
	var diffs []chain.TxStorageDiff
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		diffs, err = r.chain.TraceStorageDiff(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("storage trace failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return diffs, err
}

// logSet tracks the logs already taken from one FilterLogs batch.
type logSet map[string]struct{}

func (s logSet) duplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := s[id]; ok {
		return true
	}
	s[id] = struct{}{}
	return false
}
