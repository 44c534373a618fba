package storage

import "poolstate/internal/model"

// BundleSink receives block bundles produced by ingestion.
type BundleSink interface {
	PutBundles(bundles []model.BlockBundle) error
}

// ChangeSink receives per-block change sets produced by extraction.
type ChangeSink interface {
	PutChanges(changes []model.BlockChanges) error
}

// ErrorSink receives logs that could not be decoded.
type ErrorSink interface {
	PutDecodeErrors(errs []model.DecodeError) error
}
