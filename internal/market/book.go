package market

import (
	"math"
	"time"
)

// OrderBookState is the top-of-book snapshot for one leg. It is replaced
// wholesale on every update, never merged.
type OrderBookState struct {
	Symbol     string
	BestBid    float64
	BestAsk    float64
	BidSize    float64
	AskSize    float64
	LastUpdate time.Time
}

func (b OrderBookState) Valid() bool {
	return b.BestBid > 0 && b.BestAsk > 0
}

// PriceState pairs the spot and perp books. All derived values are pure
// computations, safe for concurrent readers.
type PriceState struct {
	Spot OrderBookState
	Perp OrderBookState
}

func (p PriceState) Ready() bool {
	return p.Spot.Valid() && p.Perp.Valid()
}

// EntrySpread is (perp bid - spot ask) / spot ask: the edge available by
// buying spot and shorting perp. Zero when either book is missing, so an
// absent signal never triggers an entry.
func (p PriceState) EntrySpread() float64 {
	if !p.Ready() {
		return 0
	}
	return (p.Perp.BestBid - p.Spot.BestAsk) / p.Spot.BestAsk
}

// ExitSpread is (perp ask - spot bid) / spot bid: the cost of unwinding.
// +Inf when either book is missing, so an absent signal never triggers an
// exit.
func (p PriceState) ExitSpread() float64 {
	if !p.Ready() {
		return math.Inf(1)
	}
	return (p.Perp.BestAsk - p.Spot.BestBid) / p.Spot.BestBid
}
