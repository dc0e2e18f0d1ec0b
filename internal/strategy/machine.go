package strategy

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"hl-spread-bot/internal/config"
	"hl-spread-bot/internal/events"
	"hl-spread-bot/internal/market"
	"hl-spread-bot/internal/metrics"
	"hl-spread-bot/internal/state"
)

// sizeMatchEpsilon bounds the acceptable difference between the two leg
// fill sizes before the hedge is considered broken.
const sizeMatchEpsilon = 1e-9

// Engine drives the FLAT -> ENTERING -> IN_POSITION -> EXITING -> FLAT
// lifecycle from order book updates. It holds at most one position and
// processes updates strictly one at a time; an update arriving while a
// decision is executing waits, and decisions always read the snapshot
// they were invoked with.
//
// The engine never unwinds a partial fill on its own. Any leg failure or
// size mismatch parks it in ERROR until an operator intervenes.
type Engine struct {
	cfg      config.StrategyConfig
	gateway  Gateway
	margin   MarginSource
	funding  FundingProvider
	bus      *events.Bus
	store    state.Store
	notifier Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger

	mu       sync.Mutex
	state    State
	position *Position
}

func NewEngine(cfg config.StrategyConfig, gateway Gateway, margin MarginSource, funding FundingProvider, bus *events.Bus, store state.Store, notifier Notifier, m *metrics.Metrics, log *zap.Logger) *Engine {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Engine{
		cfg:      cfg,
		gateway:  gateway,
		margin:   margin,
		funding:  funding,
		bus:      bus,
		store:    store,
		notifier: notifier,
		metrics:  m,
		log:      log,
		state:    StateFlat,
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Position returns a copy of the open position, or nil.
func (e *Engine) Position() *Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.position == nil {
		return nil
	}
	pos := *e.position
	return &pos
}

// Restore rehydrates the engine from its last durable checkpoint. A
// checkpoint taken mid-transition means orders may or may not have
// reached the exchange, so ENTERING and EXITING collapse to ERROR.
func (e *Engine) Restore(ctx context.Context) error {
	snap, ok, err := state.LoadEngineSnapshot(ctx, e.store)
	if err != nil {
		return fmt.Errorf("load engine snapshot: %w", err)
	}
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch State(snap.State) {
	case StateInPosition:
		e.state = StateInPosition
	case StateError:
		e.state = StateError
	case StateEntering, StateExiting:
		e.log.Warn("restored mid-transition state, parking in error", zap.String("state", snap.State))
		e.state = StateError
	default:
		e.state = StateFlat
	}
	if e.state == StateInPosition && snap.Position == nil {
		e.log.Warn("snapshot claims open position but carries none, parking in error")
		e.state = StateError
	}
	if snap.Position != nil && e.state == StateInPosition {
		e.position = &Position{
			Size:           snap.Position.Size,
			EntrySpotPrice: snap.Position.EntrySpotPrice,
			EntryPerpPrice: snap.Position.EntryPerpPrice,
			EntrySpread:    snap.Position.EntrySpread,
			EntryTime:      time.UnixMilli(snap.Position.EntryTimeMS).UTC(),
			EntryFees:      snap.Position.EntryFees,
		}
	}
	e.log.Info("engine state restored", zap.String("state", string(e.state)))
	return nil
}

// ClearError returns the engine to FLAT after operator intervention.
func (e *Engine) ClearError(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateError {
		return false
	}
	e.position = nil
	e.transition(ctx, StateFlat)
	return true
}

// OnPriceUpdate evaluates one synchronized snapshot. Snapshots with any
// leg missing or any price non-positive never drive trading decisions.
func (e *Engine) OnPriceUpdate(ctx context.Context, prices market.PriceState) {
	if !prices.Ready() {
		return
	}
	e.metrics.PriceUpdates.Inc()
	e.metrics.EntrySpread.Set(prices.EntrySpread())
	e.metrics.ExitSpread.Set(prices.ExitSpread())

	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateFlat:
		e.maybeEnter(ctx, prices)
	case StateInPosition:
		e.maybeExit(ctx, prices)
	}
}

func (e *Engine) maybeEnter(ctx context.Context, prices market.PriceState) {
	spread := prices.EntrySpread()
	if spread < e.cfg.MinSpreadThreshold {
		return
	}
	e.log.Info("entry spread above threshold",
		zap.Float64("spread", spread),
		zap.Float64("threshold", e.cfg.MinSpreadThreshold))

	if e.cfg.CheckFundingRate {
		rate, err := e.funding.Rate(ctx, e.cfg.PerpSymbol)
		if err != nil {
			e.log.Warn("funding rate unavailable, skipping entry", zap.Error(err))
			e.bus.RecordOpportunity("entry skipped: funding rate unavailable", map[string]any{
				"spread": spread,
				"reason": err.Error(),
			})
			return
		}
		if rate < 0 {
			e.log.Info("negative funding, skipping entry", zap.Float64("funding_rate", rate))
			e.bus.RecordOpportunity("entry skipped: negative funding", map[string]any{
				"spread":       spread,
				"funding_rate": rate,
			})
			return
		}
	}

	available, err := e.margin.AvailableMargin(ctx)
	if err != nil {
		e.log.Warn("margin query failed, skipping entry", zap.Error(err))
		e.bus.RecordOpportunity("entry skipped: margin unavailable", map[string]any{
			"spread": spread,
			"reason": err.Error(),
		})
		return
	}

	notional := math.Min(e.cfg.MaxPositionUSD, available)
	size := roundDown(notional/prices.Spot.BestAsk, e.cfg.SizeDecimals)
	if size <= 0 {
		e.log.Warn("entry size rounds to zero",
			zap.Float64("notional", notional),
			zap.Float64("spot_ask", prices.Spot.BestAsk))
		return
	}

	e.transition(ctx, StateEntering)

	spotFill := e.submit(ctx, OrderRequest{
		Symbol:     e.cfg.SpotSymbol,
		IsBuy:      true,
		Size:       size,
		LimitPrice: prices.Spot.BestAsk * (1 + e.cfg.Slippage),
	})
	perpFill := e.submit(ctx, OrderRequest{
		Symbol:     e.cfg.PerpSymbol,
		IsBuy:      false,
		Size:       size,
		LimitPrice: prices.Perp.BestBid * (1 - e.cfg.Slippage),
	})

	if !spotFill.Filled || !perpFill.Filled || math.Abs(spotFill.Size-perpFill.Size) > sizeMatchEpsilon {
		e.fail(ctx, "entry legs did not both fill", spotFill, perpFill)
		return
	}

	e.position = &Position{
		Size:           spotFill.Size,
		EntrySpotPrice: spotFill.Price,
		EntryPerpPrice: perpFill.Price,
		EntrySpread:    spread,
		EntryTime:      time.Now().UTC(),
		EntryFees:      spotFill.Fee + perpFill.Fee,
	}
	e.transition(ctx, StateInPosition)
	e.metrics.EntriesOpened.Inc()
	e.bus.RecordEntry(events.PositionRecord{
		Size:        e.position.Size,
		EntrySpot:   e.position.EntrySpotPrice,
		EntryPerp:   e.position.EntryPerpPrice,
		EntrySpread: e.position.EntrySpread,
		EntryTime:   e.position.EntryTime.Format(time.RFC3339Nano),
	})
	e.notify(ctx, fmt.Sprintf("Opened %.4f long spot / short perp at spread %.4f%%", e.position.Size, spread*100))
	e.log.Info("position opened",
		zap.Float64("size", e.position.Size),
		zap.Float64("spot_price", e.position.EntrySpotPrice),
		zap.Float64("perp_price", e.position.EntryPerpPrice),
		zap.Float64("spread", spread))
}

func (e *Engine) maybeExit(ctx context.Context, prices market.PriceState) {
	spread := prices.ExitSpread()
	if spread > e.cfg.ExitThreshold {
		return
	}
	pos := *e.position
	e.log.Info("exit spread below threshold",
		zap.Float64("spread", spread),
		zap.Float64("threshold", e.cfg.ExitThreshold))

	e.transition(ctx, StateExiting)

	spotFill := e.submit(ctx, OrderRequest{
		Symbol:     e.cfg.SpotSymbol,
		IsBuy:      false,
		Size:       pos.Size,
		LimitPrice: prices.Spot.BestBid * (1 - e.cfg.Slippage),
	})
	perpFill := e.submit(ctx, OrderRequest{
		Symbol:     e.cfg.PerpSymbol,
		IsBuy:      true,
		Size:       pos.Size,
		LimitPrice: prices.Perp.BestAsk * (1 + e.cfg.Slippage),
		ReduceOnly: true,
	})

	if !spotFill.Filled || !perpFill.Filled {
		e.fail(ctx, "exit legs did not both fill", spotFill, perpFill)
		return
	}

	spotPnl := (spotFill.Price - pos.EntrySpotPrice) * pos.Size
	perpPnl := (pos.EntryPerpPrice - perpFill.Price) * pos.Size
	netPnl := spotPnl + perpPnl - pos.EntryFees - spotFill.Fee - perpFill.Fee

	e.position = nil
	e.transition(ctx, StateFlat)
	e.metrics.ExitsClosed.Inc()
	e.bus.RecordExit(pos.Size, spotFill.Price, perpFill.Price, netPnl)
	e.notify(ctx, fmt.Sprintf("Closed %.4f position, net P&L %+.4f USD", pos.Size, netPnl))
	e.log.Info("position closed",
		zap.Float64("size", pos.Size),
		zap.Float64("spot_pnl", spotPnl),
		zap.Float64("perp_pnl", perpPnl),
		zap.Float64("net_pnl", netPnl))
}

// submit resolves transport failures into unfilled outcomes and applies
// the taker fee approximation when the venue does not report a fee.
func (e *Engine) submit(ctx context.Context, req OrderRequest) Fill {
	e.metrics.OrdersPlaced.Inc()
	fill, err := e.gateway.PlaceOrder(ctx, req)
	if err != nil {
		e.metrics.OrdersFailed.Inc()
		return Fill{Err: err.Error()}
	}
	if !fill.Filled {
		e.metrics.OrdersFailed.Inc()
		return fill
	}
	if fill.Fee == 0 {
		fill.Fee = fill.Size * fill.Price * e.cfg.TakerFeeRate
	}
	return fill
}

// fail parks the engine in ERROR with exactly one event carrying both
// leg outcomes. No unwind order is sent for a filled leg.
func (e *Engine) fail(ctx context.Context, reason string, spotFill, perpFill Fill) {
	e.position = nil
	e.transition(ctx, StateError)
	e.metrics.EngineErrors.Inc()
	e.bus.RecordError(reason, map[string]any{
		"spot_filled": spotFill.Filled,
		"spot_size":   spotFill.Size,
		"spot_price":  spotFill.Price,
		"spot_error":  spotFill.Err,
		"perp_filled": perpFill.Filled,
		"perp_size":   perpFill.Size,
		"perp_price":  perpFill.Price,
		"perp_error":  perpFill.Err,
	})
	e.notify(ctx, "Trading halted: "+reason+". Manual intervention required.")
	e.log.Error("engine entered error state",
		zap.String("reason", reason),
		zap.Bool("spot_filled", spotFill.Filled),
		zap.String("spot_error", spotFill.Err),
		zap.Bool("perp_filled", perpFill.Filled),
		zap.String("perp_error", perpFill.Err))
}

func (e *Engine) transition(ctx context.Context, next State) {
	prev := e.state
	e.state = next
	e.log.Debug("state transition", zap.String("from", string(prev)), zap.String("to", string(next)))
	e.checkpoint(ctx)
}

// checkpoint persists the durable state. Persistence failures are logged
// and do not block trading.
func (e *Engine) checkpoint(ctx context.Context) {
	snap := state.EngineSnapshot{
		State:       string(e.state),
		UpdatedAtMS: time.Now().UnixMilli(),
	}
	if e.position != nil {
		snap.Position = &state.PositionSnapshot{
			Size:           e.position.Size,
			EntrySpotPrice: e.position.EntrySpotPrice,
			EntryPerpPrice: e.position.EntryPerpPrice,
			EntrySpread:    e.position.EntrySpread,
			EntryTimeMS:    e.position.EntryTime.UnixMilli(),
			EntryFees:      e.position.EntryFees,
		}
	}
	if err := state.SaveEngineSnapshot(ctx, e.store, snap); err != nil {
		e.log.Warn("engine snapshot persist failed", zap.Error(err))
	}
}

func (e *Engine) notify(ctx context.Context, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(ctx, message); err != nil {
		e.log.Warn("alert send failed", zap.Error(err))
	}
}

func roundDown(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	scale := math.Pow(10, float64(decimals))
	return math.Floor(v*scale) / scale
}
