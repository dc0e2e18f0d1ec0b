package exec

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"hl-spread-bot/internal/strategy"
)

// DryRun simulates order execution. Every order fills completely at its
// limit price with an estimated taker fee, so the rest of the pipeline
// runs the real code path without touching the exchange.
type DryRun struct {
	feeRate float64
	log     *zap.Logger
	seq     atomic.Int64
}

func NewDryRun(feeRate float64, log *zap.Logger) *DryRun {
	return &DryRun{feeRate: feeRate, log: log}
}

func (d *DryRun) PlaceOrder(ctx context.Context, req strategy.OrderRequest) (strategy.Fill, error) {
	_ = ctx
	oid := d.seq.Add(1)
	d.log.Info("dry-run fill",
		zap.String("symbol", req.Symbol),
		zap.Bool("is_buy", req.IsBuy),
		zap.Float64("size", req.Size),
		zap.Float64("price", req.LimitPrice))
	return strategy.Fill{
		Filled:  true,
		Size:    req.Size,
		Price:   req.LimitPrice,
		Fee:     req.Size * req.LimitPrice * d.feeRate,
		OrderID: fmt.Sprintf("dry-%d", oid),
	}, nil
}
