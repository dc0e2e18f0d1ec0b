package exchange

import (
	"encoding/json"
	"testing"
)

func decodeResponse(t *testing.T, raw string) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestParseOrderResponseFilled(t *testing.T) {
	resp := decodeResponse(t, `{
	  "status": "ok",
	  "response": {
	    "type": "order",
	    "data": {"statuses": [{"filled": {"totalSz": "1.19", "avgPx": "10.013", "oid": 77738308}}]}
	  }
	}`)
	fill := ParseOrderResponse(resp)
	if !fill.Filled {
		t.Fatalf("expected filled, got error %q", fill.Err)
	}
	if fill.Size != 1.19 || fill.Price != 10.013 {
		t.Fatalf("unexpected fill %+v", fill)
	}
	if fill.OrderID != "77738308" {
		t.Fatalf("unexpected order id %q", fill.OrderID)
	}
}

func TestParseOrderResponseStatusError(t *testing.T) {
	resp := decodeResponse(t, `{
	  "status": "ok",
	  "response": {
	    "type": "order",
	    "data": {"statuses": [{"error": "Order could not immediately match"}]}
	  }
	}`)
	fill := ParseOrderResponse(resp)
	if fill.Filled {
		t.Fatal("expected failed fill")
	}
	if fill.Err != "Order could not immediately match" {
		t.Fatalf("unexpected error %q", fill.Err)
	}
}

func TestParseOrderResponseNonOK(t *testing.T) {
	resp := decodeResponse(t, `{"status": "err", "response": "insufficient margin"}`)
	fill := ParseOrderResponse(resp)
	if fill.Filled {
		t.Fatal("expected failed fill for non-ok status")
	}
	if fill.Err == "" {
		t.Fatal("expected error message")
	}
}

func TestParseOrderResponseUnknownShape(t *testing.T) {
	fill := ParseOrderResponse(decodeResponse(t, `{"status": "ok", "response": {"type": "order", "data": {"statuses": []}}}`))
	if fill.Filled || fill.Err == "" {
		t.Fatalf("expected unknown-format error, got %+v", fill)
	}
	fill = ParseOrderResponse(nil)
	if fill.Filled || fill.Err == "" {
		t.Fatalf("expected error for nil response, got %+v", fill)
	}
}
