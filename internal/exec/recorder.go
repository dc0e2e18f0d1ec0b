package exec

import (
	"context"
	"strings"
	"time"

	"hl-spread-bot/internal/strategy"
	"hl-spread-bot/internal/timescale"
)

// Recorder forwards orders to the underlying gateway and mirrors filled
// legs into the time-series store. A nil writer records nothing.
type Recorder struct {
	next    strategy.Gateway
	writer  *timescale.Writer
	feeRate float64
}

func NewRecorder(next strategy.Gateway, writer *timescale.Writer, feeRate float64) *Recorder {
	return &Recorder{next: next, writer: writer, feeRate: feeRate}
}

func (r *Recorder) PlaceOrder(ctx context.Context, req strategy.OrderRequest) (strategy.Fill, error) {
	fill, err := r.next.PlaceOrder(ctx, req)
	if err != nil || !fill.Filled {
		return fill, err
	}

	side := "sell"
	if req.IsBuy {
		side = "buy"
	}
	fee := fill.Fee
	if fee == 0 {
		fee = fill.Size * fill.Price * r.feeRate
	}
	r.writer.EnqueueTrade(timescale.TradeRecord{
		Time:    time.Now().UTC(),
		Symbol:  req.Symbol,
		Side:    side,
		Size:    fill.Size,
		Price:   fill.Price,
		Fee:     fee,
		OrderID: fill.OrderID,
		Phase:   legPhase(req),
	})
	return fill, nil
}

// legPhase classifies a leg: spot buys and non-reduce-only perp sells
// open the hedge, everything else closes it.
func legPhase(req strategy.OrderRequest) string {
	spot := strings.HasPrefix(req.Symbol, "@")
	if (spot && req.IsBuy) || (!spot && !req.IsBuy && !req.ReduceOnly) {
		return "open"
	}
	return "close"
}
