package exec

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"hl-spread-bot/internal/hl/exchange"
	"hl-spread-bot/internal/strategy"
)

// OrderPoster is the signed /exchange surface the live gateway needs.
type OrderPoster interface {
	PlaceOrder(ctx context.Context, order exchange.OrderWire) (map[string]any, error)
}

// Live submits immediate-or-cancel limit orders to the exchange and
// resolves the synchronous response into a fill outcome. A rejected or
// zero-fill order comes back as an unfilled outcome, not a transport
// error.
type Live struct {
	client OrderPoster
	assets *Resolver
	log    *zap.Logger
}

func NewLive(client OrderPoster, assets *Resolver, log *zap.Logger) *Live {
	return &Live{client: client, assets: assets, log: log}
}

func (l *Live) PlaceOrder(ctx context.Context, req strategy.OrderRequest) (strategy.Fill, error) {
	asset, err := l.assets.Resolve(ctx, req.Symbol)
	if err != nil {
		return strategy.Fill{}, err
	}
	wire, err := exchange.LimitOrderWire(asset, req.IsBuy, req.Size, req.LimitPrice, req.ReduceOnly, exchange.TifIoc, "")
	if err != nil {
		return strategy.Fill{}, fmt.Errorf("encode order: %w", err)
	}
	l.log.Info("placing order",
		zap.String("symbol", req.Symbol),
		zap.Int("asset", asset),
		zap.Bool("is_buy", req.IsBuy),
		zap.Float64("size", req.Size),
		zap.Float64("limit_price", req.LimitPrice))

	resp, err := l.client.PlaceOrder(ctx, wire)
	if err != nil {
		return strategy.Fill{}, err
	}
	status := exchange.ParseOrderResponse(resp)
	if !status.Filled {
		l.log.Warn("order did not fill",
			zap.String("symbol", req.Symbol),
			zap.String("reason", status.Err))
	}
	return strategy.Fill{
		Filled:  status.Filled,
		Size:    status.Size,
		Price:   status.Price,
		OrderID: status.OrderID,
		Err:     status.Err,
	}, nil
}
