package state

import (
	"context"
	"encoding/json"
	"strings"
)

const EngineSnapshotKey = "engine:last_snapshot"

// PositionSnapshot captures the durable fields of an open position.
type PositionSnapshot struct {
	Size           float64 `json:"size"`
	EntrySpotPrice float64 `json:"entry_spot_price"`
	EntryPerpPrice float64 `json:"entry_perp_price"`
	EntrySpread    float64 `json:"entry_spread"`
	EntryTimeMS    int64   `json:"entry_time_ms"`
	EntryFees      float64 `json:"entry_fees"`
}

// EngineSnapshot is the state machine's last durable checkpoint. Position
// is nil for states that carry no position.
type EngineSnapshot struct {
	State       string            `json:"state"`
	Position    *PositionSnapshot `json:"position,omitempty"`
	UpdatedAtMS int64             `json:"updated_at_ms"`
}

func LoadEngineSnapshot(ctx context.Context, store Store) (EngineSnapshot, bool, error) {
	if store == nil {
		return EngineSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, EngineSnapshotKey)
	if err != nil {
		return EngineSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return EngineSnapshot{}, false, nil
	}
	var snapshot EngineSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return EngineSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveEngineSnapshot(ctx context.Context, store Store, snapshot EngineSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, EngineSnapshotKey, string(payload))
}
