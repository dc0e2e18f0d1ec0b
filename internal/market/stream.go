package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"hl-spread-bot/internal/hl/ws"

	"go.uber.org/zap"
)

// Listener receives the current PriceState after an update. It is invoked
// only when both legs hold valid data, at most once per inbound message, and
// always from the single read loop, so invocations never overlap.
type Listener func(PriceState)

// Stream owns one exchange connection, subscribes to the l2 book for both
// legs, and maintains the shared PriceState.
type Stream struct {
	ws           *ws.Client
	log          *zap.Logger
	spotSymbol   string
	perpSymbol   string
	probeTimeout time.Duration

	mu       sync.RWMutex
	state    PriceState
	listener Listener
}

func NewStream(wsClient *ws.Client, spotSymbol, perpSymbol string, probeTimeout time.Duration, log *zap.Logger) *Stream {
	return &Stream{
		ws:           wsClient,
		log:          log,
		spotSymbol:   spotSymbol,
		perpSymbol:   perpSymbol,
		probeTimeout: probeTimeout,
		state: PriceState{
			Spot: OrderBookState{Symbol: spotSymbol},
			Perp: OrderBookState{Symbol: perpSymbol},
		},
	}
}

// OnPriceUpdate registers the listener. Register before Connect.
func (s *Stream) OnPriceUpdate(fn Listener) {
	s.mu.Lock()
	s.listener = fn
	s.mu.Unlock()
}

// Connect subscribes both legs and reads messages until Disconnect is
// called. Reconnects are handled by the underlying client.
func (s *Stream) Connect(ctx context.Context) error {
	for _, symbol := range []string{s.spotSymbol, s.perpSymbol} {
		if err := s.ws.Subscribe(ctx, l2BookSubscription(symbol)); err != nil {
			return fmt.Errorf("subscribe %s: %w", symbol, err)
		}
	}
	return s.ws.Run(ctx, s.handleMessage)
}

func (s *Stream) Disconnect() {
	s.ws.Disconnect()
}

func (s *Stream) Prices() PriceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// TestConnection performs a single subscribe-and-wait check on a fresh
// connection. It never touches the trading-path PriceState.
func (s *Stream) TestConnection(ctx context.Context) error {
	raw, err := s.ws.Probe(ctx, l2BookSubscription(s.perpSymbol), s.probeTimeout)
	if err != nil {
		return err
	}
	var frame wsFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return fmt.Errorf("decode probe frame: %w", err)
	}
	if s.log != nil {
		s.log.Info("connection test succeeded", zap.String("channel", frame.Channel))
	}
	return nil
}

type wsFrame struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type bookLevel struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
}

type bookData struct {
	Coin   string        `json:"coin"`
	Levels [][]bookLevel `json:"levels"`
}

func l2BookSubscription(symbol string) map[string]any {
	return map[string]any{
		"method": "subscribe",
		"subscription": map[string]any{
			"type": "l2Book",
			"coin": symbol,
		},
	}
}

func (s *Stream) handleMessage(raw json.RawMessage) {
	var frame wsFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.log.Warn("ws message decode failed, skipping", zap.Error(err))
		return
	}
	switch frame.Channel {
	case "subscriptionResponse":
		s.log.Debug("subscription confirmed")
	case "l2Book":
		s.handleBookUpdate(frame.Data)
	default:
		s.log.Debug("ignoring ws frame", zap.String("channel", frame.Channel))
	}
}

func (s *Stream) handleBookUpdate(data json.RawMessage) {
	var book bookData
	if err := json.Unmarshal(data, &book); err != nil {
		s.log.Warn("l2Book decode failed, skipping", zap.Error(err))
		return
	}
	var bids, asks []bookLevel
	if len(book.Levels) > 0 {
		bids = book.Levels[0]
	}
	if len(book.Levels) > 1 {
		asks = book.Levels[1]
	}
	next := OrderBookState{Symbol: book.Coin, LastUpdate: time.Now().UTC()}
	if len(bids) > 0 {
		next.BestBid = parsePx(bids[0].Px)
		next.BidSize = parsePx(bids[0].Sz)
	}
	if len(asks) > 0 {
		next.BestAsk = parsePx(asks[0].Px)
		next.AskSize = parsePx(asks[0].Sz)
	}

	s.mu.Lock()
	switch book.Coin {
	case s.spotSymbol:
		s.state.Spot = next
	case s.perpSymbol:
		s.state.Perp = next
	default:
		s.mu.Unlock()
		return
	}
	snapshot := s.state
	listener := s.listener
	s.mu.Unlock()

	if listener != nil && snapshot.Ready() {
		listener(snapshot)
	}
}

func parsePx(raw string) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
