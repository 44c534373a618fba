package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"poolstate/internal/model"
)

// DecoderConfig configures decoder behavior.
type DecoderConfig struct {
	// Topic0Map routes extra signature hashes to a known event name, for
	// forks that rename event arguments.
	Topic0Map map[string]string
}

var v3PoolEvents = []string{
	model.KindInitialize,
	model.KindSwap,
	model.KindMint,
	model.KindBurn,
	model.KindCollect,
	model.KindSetFeeProtocol,
	model.KindCollectProtocol,
}

// V3PoolDecoder decodes Uniswap V3 style pool events.
type V3PoolDecoder struct {
	poolABI     abi.ABI
	topicToName map[string]string
}

// NewV3PoolDecoder builds a V3 pool decoder.
func NewV3PoolDecoder(cfg DecoderConfig) (*V3PoolDecoder, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(v3PoolEvents)+len(cfg.Topic0Map))
	for _, name := range v3PoolEvents {
		topicToName[strings.ToLower(poolABI.Events[name].ID.Hex())] = name
	}

	for topic0, name := range cfg.Topic0Map {
		original := name
		name = normalizeEventName(name)
		if name == "" {
			return nil, fmt.Errorf("unsupported event name in topic0 map: %s", original)
		}
		if topic0 == "" {
			continue
		}
		topicToName[strings.ToLower(topic0)] = name
	}

	return &V3PoolDecoder{
		poolABI:     poolABI,
		topicToName: topicToName,
	}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *V3PoolDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a pool log into its event payload.
func (d *V3PoolDecoder) Decode(log model.LogRecord, _ DecodeContext) (Decoded, error) {
	if len(log.Topics) == 0 {
		return Decoded{}, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return Decoded{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return Decoded{}, fmt.Errorf("invalid pool address: %s", log.Address)
	}

	values, err := unpackLog(d.poolABI.Events[name], log)
	if err != nil {
		return Decoded{}, err
	}
	r := &fieldReader{values: values}

	var payload interface{}
	switch name {
	case model.KindInitialize:
		payload = model.InitializeEventData{
			SqrtPriceX96: r.integer("sqrtPriceX96"),
			Tick:         r.int24("tick"),
		}
	case model.KindSwap:
		payload = model.SwapEventData{
			Sender:       r.address("sender"),
			Recipient:    r.address("recipient"),
			Amount0:      r.integer("amount0"),
			Amount1:      r.integer("amount1"),
			SqrtPriceX96: r.integer("sqrtPriceX96"),
			Liquidity:    r.integer("liquidity"),
			Tick:         r.int24("tick"),
		}
	case model.KindMint:
		payload = model.MintEventData{
			Sender:    r.address("sender"),
			Owner:     r.address("owner"),
			TickLower: r.int24("tickLower"),
			TickUpper: r.int24("tickUpper"),
			Amount:    r.integer("amount"),
			Amount0:   r.integer("amount0"),
			Amount1:   r.integer("amount1"),
		}
	case model.KindBurn:
		payload = model.BurnEventData{
			Owner:     r.address("owner"),
			TickLower: r.int24("tickLower"),
			TickUpper: r.int24("tickUpper"),
			Amount:    r.integer("amount"),
			Amount0:   r.integer("amount0"),
			Amount1:   r.integer("amount1"),
		}
	case model.KindCollect:
		payload = model.CollectEventData{
			Owner:     r.address("owner"),
			Recipient: r.address("recipient"),
			TickLower: r.int24("tickLower"),
			TickUpper: r.int24("tickUpper"),
			Amount0:   r.integer("amount0"),
			Amount1:   r.integer("amount1"),
		}
	case model.KindSetFeeProtocol:
		payload = model.SetFeeProtocolEventData{
			FeeProtocol0Old: r.uint8("feeProtocol0Old"),
			FeeProtocol1Old: r.uint8("feeProtocol1Old"),
			FeeProtocol0New: r.uint8("feeProtocol0New"),
			FeeProtocol1New: r.uint8("feeProtocol1New"),
		}
	case model.KindCollectProtocol:
		payload = model.CollectProtocolEventData{
			Sender:    r.address("sender"),
			Recipient: r.address("recipient"),
			Amount0:   r.integer("amount0"),
			Amount1:   r.integer("amount1"),
		}
	default:
		return Decoded{}, fmt.Errorf("unsupported event name: %s", name)
	}
	if r.err != nil {
		return Decoded{}, fmt.Errorf("decode %s: %w", name, r.err)
	}
	return Decoded{Kind: name, Payload: payload}, nil
}

func normalizeEventName(name string) string {
	trimmed := strings.TrimSpace(name)
	for _, known := range v3PoolEvents {
		if strings.EqualFold(trimmed, known) {
			return known
		}
	}
	return ""
}

// fieldReader pulls typed values out of an unpacked event and keeps the
// first conversion error.
type fieldReader struct {
	values map[string]interface{}
	err    error
}

func (r *fieldReader) fail(name string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%s: %w", name, err)
	}
}

func (r *fieldReader) lookup(name string) (interface{}, bool) {
	v, ok := r.values[name]
	if !ok {
		r.fail(name, fmt.Errorf("missing field"))
	}
	return v, ok
}

func (r *fieldReader) address(name string) string {
	v, ok := r.lookup(name)
	if !ok {
		return ""
	}
	addr, err := asAddress(v)
	if err != nil {
		r.fail(name, err)
		return ""
	}
	return addr.Hex()
}

func (r *fieldReader) bigInt(name string) *big.Int {
	v, ok := r.lookup(name)
	if !ok {
		return nil
	}
	n, err := asBigInt(v)
	if err != nil {
		r.fail(name, err)
		return nil
	}
	return n
}

func (r *fieldReader) integer(name string) string {
	n := r.bigInt(name)
	if n == nil {
		return ""
	}
	return n.String()
}

func (r *fieldReader) int24(name string) int32 {
	n := r.bigInt(name)
	if n == nil {
		return 0
	}
	v, err := int24FromBig(n)
	if err != nil {
		r.fail(name, err)
	}
	return v
}

func (r *fieldReader) uint24(name string) uint32 {
	n := r.bigInt(name)
	if n == nil {
		return 0
	}
	if !n.IsUint64() || n.Uint64() > 1<<24-1 {
		r.fail(name, fmt.Errorf("uint24 overflow: %s", n))
		return 0
	}
	return uint32(n.Uint64())
}

func (r *fieldReader) uint8(name string) uint8 {
	v, ok := r.lookup(name)
	if !ok {
		return 0
	}
	n, err := asUint8(v)
	if err != nil {
		r.fail(name, err)
	}
	return n
}

// unpackLog merges indexed topics and non-indexed data into one map keyed by
// argument name.
func unpackLog(event abi.Event, log model.LogRecord) (map[string]interface{}, error) {
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return nil, err
	}
	values := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(values, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}

	data, err := hexutil.Decode(log.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(values, data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
