package strategy

import (
	"context"
	"time"
)

// State is the engine's lifecycle phase. ENTERING and EXITING cover the
// window in which orders have been submitted but both outcomes are not
// yet known.
type State string

const (
	StateFlat       State = "FLAT"
	StateEntering   State = "ENTERING"
	StateInPosition State = "IN_POSITION"
	StateExiting    State = "EXITING"
	StateError      State = "ERROR"
)

// OrderRequest describes one immediate-or-cancel limit order.
type OrderRequest struct {
	Symbol     string
	IsBuy      bool
	Size       float64
	LimitPrice float64
	ReduceOnly bool
}

// Fill is the resolved outcome of one order. Filled is false for
// rejections, zero fills, and transport failures; Err then carries the
// reason.
type Fill struct {
	Filled  bool
	Size    float64
	Price   float64
	Fee     float64
	OrderID string
	Err     string
}

// Position records the entry of an open hedged pair: long spot, short
// perp, equal size.
type Position struct {
	Size           float64
	EntrySpotPrice float64
	EntryPerpPrice float64
	EntrySpread    float64
	EntryTime      time.Time
	EntryFees      float64
}

// Gateway submits orders. Implementations resolve symbols to exchange
// asset ids and return the synchronous fill outcome.
type Gateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (Fill, error)
}

// MarginSource reports free collateral available for new positions.
type MarginSource interface {
	AvailableMargin(ctx context.Context) (float64, error)
}

// FundingProvider reports the current funding rate for a perp asset.
type FundingProvider interface {
	Rate(ctx context.Context, asset string) (float64, error)
}

// Notifier pushes operator alerts. A nil Notifier disables alerting.
type Notifier interface {
	Send(ctx context.Context, message string) error
}
