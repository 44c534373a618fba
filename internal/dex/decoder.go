package dex

import (
	"context"

	"go.uber.org/zap"

	"poolstate/internal/chain"
	"poolstate/internal/model"
)

// Decoded is a log turned into an event kind and its payload struct.
type Decoded struct {
	Kind    string
	Payload interface{}
}

// Record positions the decoded payload in a block's ordinal sequence.
func (d Decoded) Record(ordinal uint64, log model.LogRecord) (model.EventRecord, error) {
	rec, err := model.NewEventRecord(ordinal, d.Kind, log.Address, d.Payload)
	if err != nil {
		return model.EventRecord{}, err
	}
	rec.TxHash = log.TxHash
	rec.TxIndex = log.TxIndex
	rec.LogIndex = log.LogIndex
	return rec, nil
}

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (Decoded, error)
}

// DecodeContext provides shared dependencies for decoders.
type DecodeContext struct {
	Context       context.Context
	Chain         chain.Caller
	Registrations *Cache[model.PoolCreatedEventData] // pools registered this run
	Logger        *zap.Logger
}

// Decoders returns every decoder ingestion knows about.
func Decoders(cfg DecoderConfig) ([]Decoder, error) {
	pool, err := NewV3PoolDecoder(cfg)
	if err != nil {
		return nil, err
	}
	factory, err := NewV3FactoryDecoder()
	if err != nil {
		return nil, err
	}
	return []Decoder{pool, factory}, nil
}

// Find returns the first decoder accepting topic0.
func Find(decoders []Decoder, topic0 string) (Decoder, bool) {
	for _, d := range decoders {
		if d.CanDecode(topic0) {
			return d, true
		}
	}
	return nil, false
}
