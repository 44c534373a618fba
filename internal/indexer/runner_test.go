package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"poolstate/internal/chain"
	"poolstate/internal/dex"
	"poolstate/internal/model"
)

var (
	poolA   = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	poolB   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	factory = common.HexToAddress("0x1f98431c8ad98523631ae4a59f267346ea31f984")
	other   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	token0  = common.HexToAddress("0x1000000000000000000000000000000000000000")
	token1  = common.HexToAddress("0x2000000000000000000000000000000000000000")
)

func TestRunnerBuildsBundles(t *testing.T) {
	source := newFakeSource(t)
	sink := &memorySink{}
	checkpoint := filepath.Join(t.TempDir(), "checkpoint.json")

	runner, err := NewRunner(RunConfig{
		FromBlock:         1,
		ToBlock:           10,
		Addresses:         []common.Address{poolA, poolB, factory},
		BatchSize:         100,
		CheckpointPath:    checkpoint,
		CheckpointEnabled: true,
		TraceStorage:      true,
	}, source, sink, zap.NewNop())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sink.bundles) != 2 {
		t.Fatalf("expected 2 bundles, got %d", len(sink.bundles))
	}

	first := sink.bundles[0]
	if first.Number != 5 || first.Timestamp != 1005 || first.Hash != common.BigToHash(big.NewInt(5)).Hex() {
		t.Fatalf("block header mismatch: %+v", first)
	}
	if len(first.StorageChanges) != 1 {
		t.Fatalf("expected only the pool's storage write, got %+v", first.StorageChanges)
	}
	write := first.StorageChanges[0]
	if write.Address != poolA || write.Ordinal != 1 || write.NewValue[31] != 5 {
		t.Fatalf("storage write mismatch: %+v", write)
	}
	if len(first.Events) != 2 {
		t.Fatalf("expected synthetic registration plus swap, got %+v", first.Events)
	}
	if first.Events[0].Kind != model.KindPoolCreated || first.Events[0].Ordinal != 2 {
		t.Fatalf("synthetic registration mismatch: %+v", first.Events[0])
	}
	var created model.PoolCreatedEventData
	if err := json.Unmarshal(first.Events[0].Decoded, &created); err != nil {
		t.Fatalf("unmarshal registration: %v", err)
	}
	if created.Pool != poolA.Hex() || created.Token0 != token0.Hex() || created.Fee != 500 || created.TickSpacing != 10 {
		t.Fatalf("registration payload mismatch: %+v", created)
	}
	if first.Events[1].Kind != model.KindSwap || first.Events[1].Ordinal != 3 || first.Events[1].TxIndex != 0 {
		t.Fatalf("swap mismatch: %+v", first.Events[1])
	}

	if len(sink.errors) != 1 || sink.errors[0].BlockNumber != 5 || sink.errors[0].LogIndex != 1 {
		t.Fatalf("expected one decode error for the truncated mint, got %+v", sink.errors)
	}

	second := sink.bundles[1]
	if second.Number != 7 || len(second.Events) != 2 {
		t.Fatalf("second bundle mismatch: %+v", second)
	}
	if second.Events[0].Kind != model.KindPoolCreated || second.Events[0].Address != factory.Hex() {
		t.Fatalf("factory registration mismatch: %+v", second.Events[0])
	}
	if second.Events[1].Kind != model.KindInitialize || second.Events[1].Ordinal != 2 {
		t.Fatalf("initialize mismatch: %+v", second.Events[1])
	}
	if source.poolCalls[poolB] != 0 {
		t.Fatalf("factory-created pool should not be fetched, got %d calls", source.poolCalls[poolB])
	}

	cp, ok, err := NewCheckpointStore(checkpoint, true).Load()
	if err != nil || !ok {
		t.Fatalf("load checkpoint: ok=%v err=%v", ok, err)
	}
	if cp.LastProcessedBlock != 10 || cp.LastBundleBlock != 7 || cp.LastBundleHash != second.Hash {
		t.Fatalf("checkpoint mismatch: %+v", cp)
	}

	// A second run resumes past the checkpoint and writes nothing.
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if len(sink.bundles) != 2 {
		t.Fatalf("rerun should not add bundles, got %d", len(sink.bundles))
	}
}

func TestRunnerRetriesHeader(t *testing.T) {
	source := newFakeSource(t)
	source.headerFailures = 2
	sink := &memorySink{}

	runner, err := NewRunner(RunConfig{
		FromBlock:  5,
		ToBlock:    5,
		Addresses:  []common.Address{poolA},
		BatchSize:  1,
		MaxRetries: 3,
	}, source, sink, zap.NewNop())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sink.bundles) != 1 || len(sink.bundles[0].StorageChanges) != 0 {
		t.Fatalf("expected one bundle without storage, got %+v", sink.bundles)
	}
}

func TestRunnerDropsDuplicateLogs(t *testing.T) {
	source := newFakeSource(t)
	source.logs = append(source.logs, source.logs[0])
	sink := &memorySink{}

	runner, err := NewRunner(RunConfig{
		FromBlock: 5,
		ToBlock:   5,
		Addresses: []common.Address{poolA},
		BatchSize: 10,
	}, source, sink, zap.NewNop())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sink.bundles) != 1 || len(sink.bundles[0].Events) != 2 {
		t.Fatalf("expected registration plus one swap, got %+v", sink.bundles)
	}

	seen := make(logSet)
	if seen.duplicate(source.logs[0]) || !seen.duplicate(source.logs[0]) {
		t.Fatalf("second sighting should be a duplicate")
	}
	if make(logSet).duplicate(source.logs[0]) {
		t.Fatalf("a new batch starts empty")
	}
}

func TestRunnerRequiresAddresses(t *testing.T) {
	runner, err := NewRunner(RunConfig{BatchSize: 1}, newFakeSource(t), &memorySink{}, nil)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	if err := runner.Run(context.Background()); err == nil {
		t.Fatalf("expected missing address error")
	}
}

type memorySink struct {
	bundles []model.BlockBundle
	errors  []model.DecodeError
}

func (s *memorySink) PutBundles(bundles []model.BlockBundle) error {
	s.bundles = append(s.bundles, bundles...)
	return nil
}

func (s *memorySink) PutDecodeErrors(errs []model.DecodeError) error {
	s.errors = append(s.errors, errs...)
	return nil
}

type fakeSource struct {
	logs           []types.Log
	diffs          map[uint64][]chain.TxStorageDiff
	poolCalls      map[common.Address]int
	headerFailures int
}

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	poolABI, err := dex.V3PoolABI()
	if err != nil {
		t.Fatalf("pool abi: %v", err)
	}
	factoryABI, err := dex.V3FactoryABI()
	if err != nil {
		t.Fatalf("factory abi: %v", err)
	}

	pack := func(event string, args ...interface{}) []byte {
		data, err := poolABI.Events[event].Inputs.NonIndexed().Pack(args...)
		if err != nil {
			t.Fatalf("pack %s: %v", event, err)
		}
		return data
	}
	created, err := factoryABI.Events["PoolCreated"].Inputs.NonIndexed().Pack(big.NewInt(60), poolB)
	if err != nil {
		t.Fatalf("pack pool created: %v", err)
	}
	mint := pack("Mint", poolA, big.NewInt(1), big.NewInt(2), big.NewInt(3))

	tx := func(n int) common.Hash { return common.BigToHash(big.NewInt(int64(1000 + n))) }
	addrTopic := func(a common.Address) common.Hash { return common.BytesToHash(a.Bytes()) }

	return &fakeSource{
		logs: []types.Log{
			{
				Address:     poolA,
				Topics:      []common.Hash{poolABI.Events["Swap"].ID, addrTopic(other), addrTopic(other)},
				Data:        pack("Swap", big.NewInt(-5), big.NewInt(7), big.NewInt(1), big.NewInt(2), big.NewInt(3)),
				BlockNumber: 5,
				TxHash:      tx(0),
				TxIndex:     0,
				Index:       0,
			},
			{
				// Mint with its indexed ticks missing.
				Address:     poolA,
				Topics:      []common.Hash{poolABI.Events["Mint"].ID, addrTopic(other)},
				Data:        mint,
				BlockNumber: 5,
				TxHash:      tx(1),
				TxIndex:     1,
				Index:       1,
			},
			{
				Address:     poolA,
				Topics:      []common.Hash{common.HexToHash("0xdeadbeef")},
				BlockNumber: 5,
				TxHash:      tx(1),
				TxIndex:     1,
				Index:       2,
			},
			{
				Address:     factory,
				Topics:      []common.Hash{factoryABI.Events["PoolCreated"].ID, addrTopic(token0), addrTopic(token1), common.BigToHash(big.NewInt(3000))},
				Data:        created,
				BlockNumber: 7,
				TxHash:      tx(2),
				TxIndex:     0,
				Index:       0,
			},
			{
				Address:     poolB,
				Topics:      []common.Hash{poolABI.Events["Initialize"].ID},
				Data:        pack("Initialize", new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(0)),
				BlockNumber: 7,
				TxHash:      tx(2),
				TxIndex:     0,
				Index:       1,
			},
		},
		diffs: map[uint64][]chain.TxStorageDiff{
			5: {{
				TxHash:  tx(0).Hex(),
				TxIndex: 0,
				Writes: []chain.SlotWrite{
					{Address: other, Slot: common.BigToHash(big.NewInt(1)), New: common.BigToHash(big.NewInt(9))},
					{Address: poolA, Slot: common.BigToHash(big.NewInt(4)), Old: common.BigToHash(big.NewInt(1)), New: common.BigToHash(big.NewInt(5))},
				},
			}},
		},
		poolCalls: make(map[common.Address]int),
	}
}

func (f *fakeSource) GetChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (f *fakeSource) LatestBlockNumber(context.Context) (uint64, error) { return 10, nil }

func (f *fakeSource) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

func (f *fakeSource) BlockHeader(_ context.Context, number uint64) (common.Hash, uint64, error) {
	if f.headerFailures > 0 {
		f.headerFailures--
		return common.Hash{}, 0, fmt.Errorf("header not found")
	}
	return common.BigToHash(new(big.Int).SetUint64(number)), 1000 + number, nil
}

func (f *fakeSource) TraceStorageDiff(_ context.Context, number uint64) ([]chain.TxStorageDiff, error) {
	return f.diffs[number], nil
}

func (f *fakeSource) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	poolABI, err := dex.V3PoolABI()
	if err != nil {
		return nil, err
	}
	method, err := poolABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, fmt.Errorf("execution reverted")
	}
	f.poolCalls[*msg.To]++
	answers := map[string][]interface{}{
		"token0":      {token0},
		"token1":      {token1},
		"fee":         {big.NewInt(500)},
		"tickSpacing": {big.NewInt(10)},
	}
	out, ok := answers[method.Name]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return method.Outputs.Pack(out...)
}
