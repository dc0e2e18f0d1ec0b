package exec

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"hl-spread-bot/internal/strategy"
)

func TestRecorderPassesFillsThrough(t *testing.T) {
	recorder := NewRecorder(NewDryRun(0.00025, zap.NewNop()), nil, 0.00025)

	fill, err := recorder.PlaceOrder(context.Background(), strategy.OrderRequest{
		Symbol:     "@107",
		IsBuy:      true,
		Size:       10,
		LimitPrice: 10.01,
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if !fill.Filled || fill.Size != 10 || fill.Price != 10.01 {
		t.Fatalf("fill = %+v", fill)
	}
}

func TestLegPhase(t *testing.T) {
	cases := []struct {
		req  strategy.OrderRequest
		want string
	}{
		{strategy.OrderRequest{Symbol: "@107", IsBuy: true}, "open"},
		{strategy.OrderRequest{Symbol: "HYPE", IsBuy: false}, "open"},
		{strategy.OrderRequest{Symbol: "@107", IsBuy: false}, "close"},
		{strategy.OrderRequest{Symbol: "HYPE", IsBuy: true, ReduceOnly: true}, "close"},
	}
	for _, tc := range cases {
		if got := legPhase(tc.req); got != tc.want {
			t.Fatalf("legPhase(%+v) = %s, want %s", tc.req, got, tc.want)
		}
	}
}
