package model

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestBalanceDeltaEncodesDecimalString(t *testing.T) {
	huge, _ := new(big.Int).SetString("-115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	delta := BalanceDelta{
		SubjectKey: "pool:1111111111111111111111111111111111111111:token:2222222222222222222222222222222222222222",
		Pool:       common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Token:      common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Ordinal:    42,
		Delta:      huge,
	}

	data, err := json.Marshal(delta)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got, ok := raw["delta"].(string); !ok || got != huge.String() {
		t.Fatalf("delta should be decimal string, got %v", raw["delta"])
	}

	var decoded BalanceDelta
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Delta.Cmp(huge) != 0 || decoded.Ordinal != 42 || decoded.Token != delta.Token {
		t.Fatalf("decoded mismatch: %+v", decoded)
	}
}

func TestBalanceDeltaRejectsBadDecimal(t *testing.T) {
	var d BalanceDelta
	if err := json.Unmarshal([]byte(`{"delta":"0x10"}`), &d); err == nil {
		t.Fatalf("expected error for hex delta")
	}
}

func TestBalanceDeltaNilMarshalsZero(t *testing.T) {
	data, err := json.Marshal(BalanceDelta{SubjectKey: "k"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if raw["delta"] != "0" {
		t.Fatalf("nil delta should encode as 0, got %v", raw["delta"])
	}
}

func TestChangeKindString(t *testing.T) {
	if ChangeAbsolute.String() != "absolute" || ChangeDelta.String() != "delta" {
		t.Fatalf("unexpected names %s %s", ChangeAbsolute, ChangeDelta)
	}
	if ChangeKind(0).String() != "change_kind(0)" {
		t.Fatalf("zero value should not look valid: %s", ChangeKind(0))
	}
}
