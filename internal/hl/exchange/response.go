package exchange

import (
	"fmt"
	"strconv"
)

// FillStatus is the outcome of one IOC order, extracted from the /exchange
// response. A non-ok status, or a statuses entry carrying "error", is a
// failed fill.
type FillStatus struct {
	Filled  bool
	Size    float64
	Price   float64
	OrderID string
	Err     string
}

// ParseOrderResponse walks the response envelope:
// {status, response:{type:"order", data:{statuses:[{filled:{totalSz, avgPx,
// oid}} | {error}]}}}.
func ParseOrderResponse(resp map[string]any) FillStatus {
	if resp == nil {
		return FillStatus{Err: "empty exchange response"}
	}
	if status, _ := resp["status"].(string); status != "ok" {
		return FillStatus{Err: fmt.Sprintf("exchange status %v", resp["status"])}
	}
	response, _ := resp["response"].(map[string]any)
	if kind, _ := response["type"].(string); kind != "order" {
		return FillStatus{Err: fmt.Sprintf("unexpected response type %v", response["type"])}
	}
	data, _ := response["data"].(map[string]any)
	statuses, _ := data["statuses"].([]any)
	for _, entry := range statuses {
		status, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if filled, ok := status["filled"].(map[string]any); ok {
			return FillStatus{
				Filled:  true,
				Size:    numericField(filled["totalSz"]),
				Price:   numericField(filled["avgPx"]),
				OrderID: orderIDField(filled["oid"]),
			}
		}
		if errMsg, ok := status["error"].(string); ok {
			return FillStatus{Err: errMsg}
		}
	}
	return FillStatus{Err: "unknown order response format"}
}

func numericField(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func orderIDField(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatInt(int64(val), 10)
	default:
		return ""
	}
}
