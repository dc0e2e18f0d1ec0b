package events

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxEvents bounds the durable event list; the file keeps only the most
// recent entries.
const maxEvents = 100

// TradeEvent is immutable once appended.
type TradeEvent struct {
	Timestamp string         `json:"timestamp"`
	Kind      string         `json:"event_type"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
}

const (
	KindEntry       = "entry"
	KindExit        = "exit"
	KindOpportunity = "opportunity"
	KindError       = "error"
)

// PositionRecord mirrors the open position into the durable file for the
// dashboard.
type PositionRecord struct {
	Size        float64 `json:"size"`
	EntrySpot   float64 `json:"entry_spot"`
	EntryPerp   float64 `json:"entry_perp"`
	EntrySpread float64 `json:"entry_spread"`
	EntryTime   string  `json:"entry_time"`
}

type Stats struct {
	TradesExecuted  int             `json:"trades_executed"`
	TotalPnl        float64         `json:"total_pnl"`
	CurrentPosition *PositionRecord `json:"current_position"`
}

type snapshot struct {
	Events          []TradeEvent    `json:"events"`
	TradesExecuted  int             `json:"trades_executed"`
	TotalPnl        float64         `json:"total_pnl"`
	CurrentPosition *PositionRecord `json:"current_position"`
	LastUpdate      string          `json:"last_update"`
}

// Bus is the durable, process-wide record of trade events and running
// P&L. One instance is constructed at startup and passed by reference to
// every component that records. Mutations persist the full snapshot before
// returning; reads reload from disk first so an external dashboard process
// observes updates without coupling to this process's memory.
type Bus struct {
	path string
	log  *zap.Logger

	mu   sync.Mutex
	snap snapshot
}

func NewBus(path string, log *zap.Logger) *Bus {
	bus := &Bus{path: path, log: log}
	bus.mu.Lock()
	bus.reloadLocked()
	bus.mu.Unlock()
	return bus
}

// RecordEntry appends an entry event and mirrors the new position.
func (b *Bus) RecordEntry(pos PositionRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.CurrentPosition = &pos
	b.appendLocked(KindEntry,
		fmt.Sprintf("ENTRY: %.4f @ spot %.4f, perp %.4f", pos.Size, pos.EntrySpot, pos.EntryPerp),
		map[string]any{
			"size":       pos.Size,
			"spot_price": pos.EntrySpot,
			"perp_price": pos.EntryPerp,
			"spread":     pos.EntrySpread,
		})
}

// RecordExit appends an exit event, counts the completed round trip, adds
// its net P&L to the running total, and clears the position mirror.
func (b *Bus) RecordExit(size, spotPrice, perpPrice, netPnl float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snap.TradesExecuted++
	b.snap.TotalPnl += netPnl
	b.snap.CurrentPosition = nil
	b.appendLocked(KindExit,
		fmt.Sprintf("EXIT: %.4f @ spot %.4f, perp %.4f | P&L %+.4f", size, spotPrice, perpPrice, netPnl),
		map[string]any{
			"size":       size,
			"spot_price": spotPrice,
			"perp_price": perpPrice,
			"net_pnl":    netPnl,
		})
}

func (b *Bus) RecordError(message string, details map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendLocked(KindError, "ERROR: "+message, details)
}

func (b *Bus) RecordOpportunity(message string, details map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendLocked(KindOpportunity, message, details)
}

// ListRecent returns up to limit most recent events, oldest first,
// re-reading durable storage so cross-process writes are visible.
func (b *Bus) ListRecent(limit int) []TradeEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reloadLocked()
	events := b.snap.Events
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]TradeEvent, len(events))
	copy(out, events)
	return out
}

func (b *Bus) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reloadLocked()
	stats := Stats{
		TradesExecuted: b.snap.TradesExecuted,
		TotalPnl:       b.snap.TotalPnl,
	}
	if b.snap.CurrentPosition != nil {
		pos := *b.snap.CurrentPosition
		stats.CurrentPosition = &pos
	}
	return stats
}

func (b *Bus) appendLocked(kind, message string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	b.snap.Events = append(b.snap.Events, TradeEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Kind:      kind,
		Message:   message,
		Details:   details,
	})
	if len(b.snap.Events) > maxEvents {
		b.snap.Events = b.snap.Events[len(b.snap.Events)-maxEvents:]
	}
	b.persistLocked()
}

// persistLocked writes the full snapshot. A write failure degrades to
// in-memory bookkeeping; the trading loop must never block on this path.
func (b *Bus) persistLocked() {
	b.snap.LastUpdate = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(b.snap, "", "  ")
	if err != nil {
		b.logPersistError(err)
		return
	}
	if err := os.WriteFile(b.path, data, 0o644); err != nil {
		b.logPersistError(err)
	}
}

func (b *Bus) reloadLocked() {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if !os.IsNotExist(err) && b.log != nil {
			b.log.Warn("event file read failed", zap.Error(err))
		}
		return
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		if b.log != nil {
			b.log.Warn("event file decode failed", zap.Error(err))
		}
		return
	}
	if len(snap.Events) > maxEvents {
		snap.Events = snap.Events[len(snap.Events)-maxEvents:]
	}
	b.snap = snap
}

func (b *Bus) logPersistError(err error) {
	if b.log != nil {
		b.log.Warn("event file persist failed", zap.Error(err))
	}
}
