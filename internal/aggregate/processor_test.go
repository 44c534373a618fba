package aggregate

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"poolstate/internal/fault"
	"poolstate/internal/model"
	"poolstate/internal/store"
)

var (
	testPool   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testToken0 = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testToken1 = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func event(t *testing.T, ordinal uint64, kind string, payload interface{}) model.EventRecord {
	t.Helper()
	rec, err := model.NewEventRecord(ordinal, kind, testPool.Hex(), payload)
	require.NoError(t, err)
	return rec
}

func created(fee uint32) model.PoolCreatedEventData {
	return model.PoolCreatedEventData{
		Protocol:    model.ProtocolUniswapV3,
		Pool:        testPool.Hex(),
		Token0:      testToken0.Hex(),
		Token1:      testToken1.Hex(),
		Fee:         fee,
		TickSpacing: 60,
	}
}

func TestProcessBlockKeepsFirstRegistration(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemoryBackend())
	p := NewProcessor(nil)

	_, err := p.ProcessBlock(ctx, st, model.BlockBundle{Number: 1, Events: []model.EventRecord{event(t, 1, model.KindPoolCreated, created(500))}})
	require.NoError(t, err)
	first, ok, err := st.Get(ctx, string(store.PoolKey(testPool)))
	require.NoError(t, err)
	require.True(t, ok)

	// a restarted ingester emits the registration again
	changes, err := p.ProcessBlock(ctx, st, model.BlockBundle{Number: 2, Events: []model.EventRecord{event(t, 1, model.KindPoolCreated, created(3000))}})
	require.NoError(t, err)
	require.Zero(t, changes.StoreWrites)

	again, _, err := st.Get(ctx, string(store.PoolKey(testPool)))
	require.NoError(t, err)
	require.True(t, first.Equal(again))
	require.Contains(t, again.Value(), `"fee":500`)
}

func TestProcessBlockRejectsMalformedPayload(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemoryBackend())

	bad := event(t, 2, model.KindSwap, model.SwapEventData{Amount0: "1.5", Amount1: "0", SqrtPriceX96: "1", Liquidity: "1"})
	_, err := NewProcessor(nil).ProcessBlock(ctx, st, model.BlockBundle{
		Number: 3,
		Events: []model.EventRecord{event(t, 1, model.KindPoolCreated, created(500)), bad},
	})
	require.Error(t, err)
	require.True(t, fault.IsStructure(err))
	require.Contains(t, err.Error(), "block 3 event 2 (Swap)")

	_, ok, err := st.LastBlock(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	entries, err := st.Entries(ctx, "")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestProcessBlockRejectsBadAddress(t *testing.T) {
	rec := event(t, 1, model.KindInitialize, model.InitializeEventData{SqrtPriceX96: "1"})
	rec.Address = "pool"
	_, err := NewProcessor(nil).ProcessBlock(context.Background(), store.New(store.NewMemoryBackend()), model.BlockBundle{Number: 1, Events: []model.EventRecord{rec}})
	require.ErrorIs(t, err, fault.ErrMalformedPayload)
}

func TestOrderedEventsSortsAndSharesStorageOrdinals(t *testing.T) {
	bundle := model.BlockBundle{
		StorageChanges: []model.StorageChange{{Address: testPool, Ordinal: 2}, {Address: testPool, Ordinal: 3}},
		Events: []model.EventRecord{
			{Ordinal: 3, Kind: model.KindSwap},
			{Ordinal: 1, Kind: model.KindPoolCreated},
			{Ordinal: 2, Kind: model.KindInitialize},
		},
	}
	events, err := orderedEvents(bundle)
	require.NoError(t, err)
	require.Equal(t, []string{model.KindPoolCreated, model.KindInitialize, model.KindSwap},
		[]string{events[0].Kind, events[1].Kind, events[2].Kind})
	// input is left untouched
	require.Equal(t, model.KindSwap, bundle.Events[0].Kind)
}
