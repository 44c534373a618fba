package model

import "encoding/json"

// BlockBundle is everything the extractor needs from one block.
type BlockBundle struct {
	ChainID        uint64          `json:"chain_id"`
	Number         uint64          `json:"block_number"`
	Hash           string          `json:"block_hash"`
	Timestamp      uint64          `json:"timestamp"`
	StorageChanges []StorageChange `json:"storage_changes"`
	Events         []EventRecord   `json:"events"`
}

// EventRecord is a decoded log positioned in the block's ordinal sequence.
// Decoded holds the kind-specific payload.
type EventRecord struct {
	Ordinal  uint64          `json:"ordinal"`
	TxHash   string          `json:"tx_hash"`
	TxIndex  uint64          `json:"tx_index"`
	LogIndex uint64          `json:"log_index"`
	Address  string          `json:"address"`
	Kind     string          `json:"kind"`
	Decoded  json.RawMessage `json:"decoded"`
}

// NewEventRecord marshals payload into an EventRecord.
func NewEventRecord(ordinal uint64, kind, address string, payload interface{}) (EventRecord, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return EventRecord{}, err
	}
	return EventRecord{
		Ordinal: ordinal,
		Address: address,
		Kind:    kind,
		Decoded: data,
	}, nil
}
