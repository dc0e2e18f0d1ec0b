package market

import (
	"math"
	"testing"
	"time"
)

func validBook(symbol string, bid, ask float64) OrderBookState {
	return OrderBookState{
		Symbol:     symbol,
		BestBid:    bid,
		BestAsk:    ask,
		BidSize:    100,
		AskSize:    100,
		LastUpdate: time.Now(),
	}
}

func TestEntrySpread(t *testing.T) {
	state := PriceState{
		Spot: validBook("@107", 9.99, 10.00),
		Perp: validBook("HYPE", 10.02, 10.03),
	}
	got := state.EntrySpread()
	if math.Abs(got-0.0020) > 1e-9 {
		t.Fatalf("expected entry spread 0.0020, got %.6f", got)
	}
}

func TestExitSpread(t *testing.T) {
	state := PriceState{
		Spot: validBook("@107", 10.00, 10.01),
		Perp: validBook("HYPE", 9.99, 9.995),
	}
	got := state.ExitSpread()
	if math.Abs(got-(-0.0005)) > 1e-9 {
		t.Fatalf("expected exit spread -0.0005, got %.6f", got)
	}
}

func TestNotReadyWhenAnyPriceZero(t *testing.T) {
	base := PriceState{
		Spot: validBook("@107", 10.00, 10.01),
		Perp: validBook("HYPE", 10.02, 10.03),
	}
	zeroed := []func(*PriceState){
		func(p *PriceState) { p.Spot.BestBid = 0 },
		func(p *PriceState) { p.Spot.BestAsk = 0 },
		func(p *PriceState) { p.Perp.BestBid = 0 },
		func(p *PriceState) { p.Perp.BestAsk = 0 },
	}
	for i, zero := range zeroed {
		state := base
		zero(&state)
		if state.Ready() {
			t.Fatalf("case %d: expected not ready", i)
		}
		if got := state.EntrySpread(); got != 0 {
			t.Fatalf("case %d: expected entry spread 0, got %f", i, got)
		}
		if got := state.ExitSpread(); !math.IsInf(got, 1) {
			t.Fatalf("case %d: expected exit spread +Inf, got %f", i, got)
		}
	}
}

func TestReadyRequiresBothLegs(t *testing.T) {
	state := PriceState{Spot: validBook("@107", 10.00, 10.01)}
	if state.Ready() {
		t.Fatal("expected not ready with empty perp book")
	}
	state.Perp = validBook("HYPE", 10.02, 10.03)
	if !state.Ready() {
		t.Fatal("expected ready with both legs valid")
	}
}
