package exec

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"

	"hl-spread-bot/internal/strategy"
)

func TestDryRunFillsAtLimitPrice(t *testing.T) {
	gw := NewDryRun(0.00025, zap.NewNop())

	fill, err := gw.PlaceOrder(context.Background(), strategy.OrderRequest{
		Symbol:     "@107",
		IsBuy:      true,
		Size:       100,
		LimitPrice: 10.01,
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if !fill.Filled || fill.Size != 100 || fill.Price != 10.01 {
		t.Fatalf("fill = %+v", fill)
	}
	if math.Abs(fill.Fee-100*10.01*0.00025) > 1e-12 {
		t.Fatalf("fee = %v", fill.Fee)
	}
}

func TestDryRunOrderIDsAreUnique(t *testing.T) {
	gw := NewDryRun(0.00025, zap.NewNop())

	first, _ := gw.PlaceOrder(context.Background(), strategy.OrderRequest{Symbol: "HYPE", Size: 1, LimitPrice: 10})
	second, _ := gw.PlaceOrder(context.Background(), strategy.OrderRequest{Symbol: "HYPE", Size: 1, LimitPrice: 10})

	if first.OrderID == "" || first.OrderID == second.OrderID {
		t.Fatalf("order ids = %q, %q, want distinct", first.OrderID, second.OrderID)
	}
}
