package aggregate

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"poolstate/internal/model"
	"poolstate/internal/storage"
	"poolstate/internal/store"
)

// Config controls replay behavior.
type Config struct {
	// BatchSize is the number of change sets buffered before writing to the sink.
	BatchSize int
}

// Stats summarizes a replay.
type Stats struct {
	Blocks    int
	Committed int
	Skipped   int
	Events    int
	Writes    int
}

// Aggregator replays a stream of block bundles into a store. Blocks at or
// below the store's last committed height are skipped; the first failing
// block stops the run.
type Aggregator struct {
	cfg       Config
	store     *store.Store
	processor *Processor
	sink      storage.ChangeSink
	logger    *zap.Logger
}

func NewAggregator(cfg Config, st *store.Store, sink storage.ChangeSink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Aggregator{
		cfg:       cfg,
		store:     st,
		processor: NewProcessor(logger),
		sink:      sink,
		logger:    logger,
	}
}

// RunFile replays the bundles JSONL file at path.
func (a *Aggregator) RunFile(ctx context.Context, path string) (Stats, error) {
	file, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()
	return a.Run(ctx, file)
}

// Run replays bundles read from r.
func (a *Aggregator) Run(ctx context.Context, r io.Reader) (Stats, error) {
	if a.store == nil {
		return Stats{}, fmt.Errorf("store is nil")
	}

	last, hasLast, err := a.store.LastBlock(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("load last block: %w", err)
	}

	var stats Stats
	batch := make([]model.BlockChanges, 0, a.cfg.BatchSize)

	runErr := storage.ReadBundles(r, func(line int, bundle model.BlockBundle) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Blocks++
		if hasLast && bundle.Number <= last {
			stats.Skipped++
			return nil
		}

		changes, err := a.processor.ProcessBlock(ctx, a.store, bundle)
		if err != nil {
			a.logger.Error("block failed",
				zap.Uint64("block", bundle.Number),
				zap.Int("line", line),
				zap.Error(err),
			)
			return err
		}
		last, hasLast = bundle.Number, true
		stats.Committed++
		stats.Events += len(bundle.Events)
		stats.Writes += changes.StoreWrites

		batch = append(batch, changes)
		if len(batch) >= a.cfg.BatchSize {
			if err := a.flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
		return nil
	})

	// committed blocks are reported even when a later block fails
	if err := a.flush(batch); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return stats, runErr
	}

	a.logger.Info("extract complete",
		zap.Int("blocks", stats.Blocks),
		zap.Int("committed", stats.Committed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("events", stats.Events),
		zap.Int("writes", stats.Writes),
	)
	return stats, nil
}

func (a *Aggregator) flush(batch []model.BlockChanges) error {
	if a.sink == nil || len(batch) == 0 {
		return nil
	}
	if err := a.sink.PutChanges(batch); err != nil {
		return fmt.Errorf("write changes: %w", err)
	}
	return nil
}
