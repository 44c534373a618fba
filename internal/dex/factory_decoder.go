package dex

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"poolstate/internal/model"
)

// V3FactoryDecoder turns factory PoolCreated logs into pool registrations.
type V3FactoryDecoder struct {
	event abi.Event
	topic string
}

// NewV3FactoryDecoder builds a factory decoder.
func NewV3FactoryDecoder() (*V3FactoryDecoder, error) {
	factoryABI, err := V3FactoryABI()
	if err != nil {
		return nil, err
	}
	event := factoryABI.Events[model.KindPoolCreated]
	return &V3FactoryDecoder{event: event, topic: strings.ToLower(event.ID.Hex())}, nil
}

// CanDecode checks if the topic0 is the factory PoolCreated signature.
func (d *V3FactoryDecoder) CanDecode(topic0 string) bool {
	return topic0 != "" && strings.ToLower(topic0) == d.topic
}

// Decode converts a factory log into a PoolCreated payload. The created pool
// is the payload's Pool, not the log address.
func (d *V3FactoryDecoder) Decode(log model.LogRecord, _ DecodeContext) (Decoded, error) {
	if !d.CanDecode(log.Topic0()) {
		return Decoded{}, fmt.Errorf("unsupported topic0: %s", log.Topic0())
	}
	if !common.IsHexAddress(log.Address) {
		return Decoded{}, fmt.Errorf("invalid factory address: %s", log.Address)
	}

	values, err := unpackLog(d.event, log)
	if err != nil {
		return Decoded{}, err
	}
	r := &fieldReader{values: values}
	payload := registration(r)
	if r.err != nil {
		return Decoded{}, fmt.Errorf("decode %s: %w", model.KindPoolCreated, r.err)
	}
	return Decoded{Kind: model.KindPoolCreated, Payload: payload}, nil
}

// registration reads a V3 PoolCreated payload from event arguments or pool
// getter results, which share field names.
func registration(r *fieldReader) model.PoolCreatedEventData {
	return model.PoolCreatedEventData{
		Protocol:    model.ProtocolUniswapV3,
		Pool:        r.address("pool"),
		Token0:      r.address("token0"),
		Token1:      r.address("token1"),
		Fee:         r.uint24("fee"),
		TickSpacing: r.int24("tickSpacing"),
	}
}
