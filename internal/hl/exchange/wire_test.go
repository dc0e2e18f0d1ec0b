package exchange

import "testing"

func TestLimitOrderWire(t *testing.T) {
	wire, err := LimitOrderWire(10107, true, 1.19, 10.0231, false, TifIoc, "enter-spot")
	if err != nil {
		t.Fatalf("limit order wire: %v", err)
	}
	if wire.Asset != 10107 || !wire.IsBuy {
		t.Fatalf("unexpected wire %+v", wire)
	}
	if wire.Price != "10.0231" || wire.Size != "1.19" {
		t.Fatalf("unexpected wire strings %q / %q", wire.Price, wire.Size)
	}
	if wire.OrderType.Limit == nil || wire.OrderType.Limit.Tif != TifIoc {
		t.Fatalf("expected IOC limit order type, got %+v", wire.OrderType)
	}
	if wire.Cloid != "enter-spot" {
		t.Fatalf("unexpected cloid %q", wire.Cloid)
	}
}

func TestLimitOrderWireRequiresTif(t *testing.T) {
	if _, err := LimitOrderWire(1, true, 1, 1, false, "", ""); err == nil {
		t.Fatal("expected error for missing tif")
	}
}

func TestFloatToWireTrimsTrailingZeros(t *testing.T) {
	cases := map[float64]string{
		10.0200:  "10.02",
		1.0:      "1",
		0.0:      "0",
		0.000250: "0.00025",
	}
	for in, want := range cases {
		got, err := floatToWire(in)
		if err != nil {
			t.Fatalf("floatToWire(%f): %v", in, err)
		}
		if got != want {
			t.Fatalf("floatToWire(%f): expected %q, got %q", in, want, got)
		}
	}
}

func TestEncodeOrderActionRejectsEmpty(t *testing.T) {
	if _, err := EncodeOrderAction(OrderAction{Type: "order"}); err == nil {
		t.Fatal("expected error for empty orders")
	}
}
