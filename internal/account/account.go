package account

import (
	"context"
	"errors"
	"strconv"

	"hl-spread-bot/internal/hl/rest"

	"go.uber.org/zap"
)

// Account answers margin queries for the sizing rule. Position and fill
// tracking is unnecessary here: IOC fills come back synchronously in the
// order response.
type Account struct {
	rest    *rest.Client
	address string
	log     *zap.Logger
}

func New(restClient *rest.Client, address string, log *zap.Logger) *Account {
	return &Account{rest: restClient, address: address, log: log}
}

// AvailableMargin reports the USD margin available for a new position, from
// the clearinghouse state's withdrawable balance, falling back to account
// value when withdrawable is absent.
func (a *Account) AvailableMargin(ctx context.Context) (float64, error) {
	if a.address == "" {
		return 0, errors.New("account address is required")
	}
	state, err := a.rest.Info(ctx, rest.InfoRequest{Type: "clearinghouseState", User: a.address})
	if err != nil {
		return 0, err
	}
	if v, ok := floatField(state["withdrawable"]); ok {
		return v, nil
	}
	if summary, ok := state["marginSummary"].(map[string]any); ok {
		if v, ok := floatField(summary["accountValue"]); ok {
			return v, nil
		}
	}
	return 0, errors.New("clearinghouse state missing margin fields")
}

func floatField(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
