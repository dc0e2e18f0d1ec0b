package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hl-spread-bot/internal/config"
	"hl-spread-bot/internal/events"
	"hl-spread-bot/internal/strategy"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// bookServer accepts one ws connection and pushes the given frames after
// the first inbound message arrives.
func bookServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		ctx := r.Context()
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
		for _, frame := range frames {
			if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
				return
			}
		}
		<-ctx.Done()
	}))
}

func testAppConfig(t *testing.T, wsURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Log:  config.LoggingConfig{Level: "error"},
		REST: config.RESTConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second},
		WS: config.WSConfig{
			URL:               wsURL,
			ReconnectDelay:    10 * time.Millisecond,
			ReconnectMaxDelay: 100 * time.Millisecond,
			ProbeTimeout:      time.Second,
		},
		State:  config.StateConfig{SQLitePath: filepath.Join(dir, "data", "state.db")},
		Events: config.EventsConfig{Path: filepath.Join(dir, "trade_events.json")},
		Strategy: config.StrategyConfig{
			SpotSymbol:         "@107",
			PerpSymbol:         "HYPE",
			MinSpreadThreshold: 0.0015,
			ExitThreshold:      0.0003,
			MaxPositionUSD:     1000,
			DryRun:             true,
			TakerFeeRate:       0.00025,
			SizeDecimals:       2,
			Slippage:           0.001,
		},
	}
}

func TestDryRunRoundTrip(t *testing.T) {
	frames := []string{
		// Entry: spread = (10.03 - 10.00) / 10.00 = 0.003.
		`{"channel":"l2Book","data":{"coin":"@107","levels":[[{"px":"9.99","sz":"120"}],[{"px":"10.00","sz":"80"}]]}}`,
		`{"channel":"l2Book","data":{"coin":"HYPE","levels":[[{"px":"10.03","sz":"50"}],[{"px":"10.04","sz":"40"}]]}}`,
		// Exit: spot bid rises past the perp ask.
		`{"channel":"l2Book","data":{"coin":"@107","levels":[[{"px":"10.10","sz":"120"}],[{"px":"10.11","sz":"80"}]]}}`,
	}
	server := bookServer(t, frames)
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	application, err := New(testAppConfig(t, wsURL), zap.NewNop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- application.Run(context.Background())
	}()

	deadline := time.After(5 * time.Second)
	for {
		stats := application.bus.GetStats()
		if stats.TradesExecuted == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out, stats = %+v", application.bus.GetStats())
		case <-time.After(20 * time.Millisecond):
		}
	}

	if got := application.engine.State(); got != strategy.StateFlat {
		t.Fatalf("engine state = %s, want %s", got, strategy.StateFlat)
	}

	kinds := make([]string, 0, 4)
	for _, ev := range application.bus.ListRecent(10) {
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 2 || kinds[0] != events.KindEntry || kinds[1] != events.KindExit {
		t.Fatalf("event kinds = %v, want [entry exit]", kinds)
	}

	application.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after disconnect")
	}
}

func TestLiveModeRequiresCredentials(t *testing.T) {
	t.Setenv("HL_WALLET_ADDRESS", "")
	t.Setenv("HL_PRIVATE_KEY", "")
	cfg := testAppConfig(t, "ws://127.0.0.1:1")
	cfg.Strategy.DryRun = false

	if _, err := New(cfg, zap.NewNop()); err == nil {
		t.Fatal("expected error without signing credentials")
	}
}

func TestConnectionProbe(t *testing.T) {
	server := bookServer(t, []string{`{"channel":"subscriptionResponse","data":{"method":"subscribe"}}`})
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	cfg := testAppConfig(t, wsURL)
	cfg.Strategy.CheckFundingRate = false
	application, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	// The funding probe hits an unreachable REST endpoint, so only the
	// websocket leg is asserted here.
	if err := application.stream.TestConnection(context.Background()); err != nil {
		t.Fatalf("ws probe: %v", err)
	}
}
