package aggregate

import (
	"context"
	"encoding/json"
	"math/big"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"poolstate/internal/fault"
	"poolstate/internal/model"
	"poolstate/internal/slot"
	"poolstate/internal/store"
)

type scenarioFile struct {
	Scenarios []scenario `yaml:"scenarios"`
}

type scenario struct {
	Name   string          `yaml:"name"`
	Blocks []scenarioBlock `yaml:"blocks"`
	Expect scenarioExpect  `yaml:"expect"`
}

type scenarioBlock struct {
	Number    uint64          `yaml:"number"`
	Timestamp uint64          `yaml:"timestamp"`
	Storage   []scenarioWrite `yaml:"storage"`
	Events    []scenarioEvent `yaml:"events"`
}

type scenarioWrite struct {
	Address string `yaml:"address"`
	Slot    uint64 `yaml:"slot"`
	Ordinal uint64 `yaml:"ordinal"`
	Old     string `yaml:"old"`
	New     string `yaml:"new"`
	// Raw keeps the values at their written length instead of padding to a word.
	Raw bool `yaml:"raw"`
}

type scenarioEvent struct {
	Ordinal uint64                 `yaml:"ordinal"`
	Kind    string                 `yaml:"kind"`
	Address string                 `yaml:"address"`
	Payload map[string]interface{} `yaml:"payload"`
}

type scenarioExpect struct {
	Error       string              `yaml:"error"`
	FailedBlock uint64              `yaml:"failed_block"`
	LastBlock   *uint64             `yaml:"last_block"`
	Entries     map[string]string   `yaml:"entries"`
	Absent      []string            `yaml:"absent"`
	Attributes  []expectedAttribute `yaml:"attributes"`
}

type expectedAttribute struct {
	Block   uint64 `yaml:"block"`
	Pool    string `yaml:"pool"`
	Key     string `yaml:"key"`
	Value   string `yaml:"value"`
	Ordinal uint64 `yaml:"ordinal"`
}

func loadScenarios(t *testing.T) []scenario {
	t.Helper()
	data, err := os.ReadFile("testdata/scenarios.yaml")
	require.NoError(t, err)
	var file scenarioFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	require.NotEmpty(t, file.Scenarios)
	return file.Scenarios
}

func (b scenarioBlock) bundle(t *testing.T) model.BlockBundle {
	t.Helper()
	bundle := model.BlockBundle{
		ChainID:   1,
		Number:    b.Number,
		Timestamp: b.Timestamp,
		Hash:      common.BigToHash(new(big.Int).SetUint64(b.Number)).Hex(),
	}
	for _, w := range b.Storage {
		old := hexutil.MustDecode(w.Old)
		next := hexutil.MustDecode(w.New)
		if !w.Raw {
			old = common.LeftPadBytes(old, model.WordSize)
			next = common.LeftPadBytes(next, model.WordSize)
		}
		bundle.StorageChanges = append(bundle.StorageChanges, model.StorageChange{
			Address:  common.HexToAddress(w.Address),
			Slot:     slot.Index(w.Slot),
			OldValue: old,
			NewValue: next,
			Ordinal:  w.Ordinal,
		})
	}
	for _, e := range b.Events {
		payload, err := json.Marshal(e.Payload)
		require.NoError(t, err)
		bundle.Events = append(bundle.Events, model.EventRecord{
			Ordinal: e.Ordinal,
			Address: e.Address,
			Kind:    e.Kind,
			Decoded: payload,
		})
	}
	return bundle
}

func faultClass(err error) string {
	switch {
	case fault.IsLayout(err):
		return "layout"
	case fault.IsStructure(err):
		return "structure"
	case fault.IsPolicy(err):
		return "policy"
	case fault.IsOrder(err):
		return "order"
	default:
		return "unclassified"
	}
}

func TestScenarios(t *testing.T) {
	for _, sc := range loadScenarios(t) {
		sc := sc
		t.Run(sc.Name, func(t *testing.T) {
			ctx := context.Background()
			st := store.New(store.NewMemoryBackend())
			processor := NewProcessor(nil)

			var (
				runErr      error
				failedBlock uint64
			)
			attributes := make(map[uint64][]model.ComponentChanges)
			for _, b := range sc.Blocks {
				changes, err := processor.ProcessBlock(ctx, st, b.bundle(t))
				if err != nil {
					runErr, failedBlock = err, b.Number
					break
				}
				attributes[b.Number] = changes.Components
			}

			if sc.Expect.Error == "" {
				require.NoError(t, runErr)
			} else {
				require.Error(t, runErr)
				require.Equal(t, sc.Expect.Error, faultClass(runErr), runErr.Error())
				require.Equal(t, sc.Expect.FailedBlock, failedBlock)
			}

			last, ok, err := st.LastBlock(ctx)
			require.NoError(t, err)
			if sc.Expect.LastBlock == nil {
				require.False(t, ok, "no block should be committed, last is %d", last)
			} else {
				require.True(t, ok)
				require.Equal(t, *sc.Expect.LastBlock, last)
			}

			for key, want := range sc.Expect.Entries {
				e, ok, err := st.Get(ctx, key)
				require.NoError(t, err)
				require.True(t, ok, "missing %s", key)
				require.Equal(t, want, e.Value(), key)
			}
			for _, key := range sc.Expect.Absent {
				_, ok, err := st.Get(ctx, key)
				require.NoError(t, err)
				require.False(t, ok, "unexpected %s", key)
			}

			var got []expectedAttribute
			for _, b := range sc.Blocks {
				for _, component := range attributes[b.Number] {
					for _, attr := range component.Attributes {
						got = append(got, expectedAttribute{
							Block:   b.Number,
							Pool:    component.Pool.Hex(),
							Key:     attr.Key,
							Value:   hexutil.Encode(attr.Value),
							Ordinal: attr.Ordinal,
						})
					}
				}
			}
			if len(sc.Expect.Attributes) == 0 {
				require.Empty(t, got)
			} else {
				require.Equal(t, sc.Expect.Attributes, got)
			}
		})
	}
}
