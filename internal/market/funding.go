package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hl-spread-bot/internal/hl/rest"

	"go.uber.org/zap"
)

// FundingSource serves current perp funding rates from metaAndAssetCtxs,
// cached for a refresh window so the entry gate does not hammer the REST API
// on every price tick.
type FundingSource struct {
	rest *rest.Client
	log  *zap.Logger

	mu            sync.Mutex
	rates         map[string]float64
	lastRefresh   time.Time
	refreshWindow time.Duration
}

func NewFundingSource(restClient *rest.Client, log *zap.Logger) *FundingSource {
	return &FundingSource{
		rest:          restClient,
		log:           log,
		rates:         make(map[string]float64),
		refreshWindow: 30 * time.Second,
	}
}

// Rate returns the current funding rate for a perp asset, refreshing the
// cache when the window has elapsed.
func (f *FundingSource) Rate(ctx context.Context, asset string) (float64, error) {
	f.mu.Lock()
	fresh := !f.lastRefresh.IsZero() && time.Since(f.lastRefresh) < f.refreshWindow
	rate, ok := f.rates[asset]
	f.mu.Unlock()
	if fresh && ok {
		return rate, nil
	}

	payload, err := f.rest.InfoAny(ctx, rest.InfoRequest{Type: "metaAndAssetCtxs"})
	if err != nil {
		return 0, err
	}
	rates, err := parseFundingRates(payload)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	f.rates = rates
	f.lastRefresh = time.Now().UTC()
	rate, ok = f.rates[asset]
	f.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("funding rate not found for %s", asset)
	}
	return rate, nil
}

// parseFundingRates walks a metaAndAssetCtxs payload: [meta{universe}, ctxs].
func parseFundingRates(payload any) (map[string]float64, error) {
	parts, ok := payload.([]any)
	if ok && len(parts) >= 2 {
		meta, metaOK := toMap(parts[0])
		ctxs, ctxsOK := parts[1].([]any)
		if metaOK && ctxsOK {
			universe, _ := meta["universe"].([]any)
			return ratesFromUniverse(universe, ctxs)
		}
	}
	if meta, ok := toMap(payload); ok {
		universe, _ := meta["universe"].([]any)
		ctxs, _ := meta["assetCtxs"].([]any)
		return ratesFromUniverse(universe, ctxs)
	}
	return nil, errors.New("metaAndAssetCtxs payload has unexpected shape")
}

func ratesFromUniverse(universe, ctxs []any) (map[string]float64, error) {
	if len(universe) == 0 || len(ctxs) == 0 {
		return nil, errors.New("metaAndAssetCtxs missing universe or asset contexts")
	}
	rates := make(map[string]float64)
	for i, entry := range universe {
		meta, ok := toMap(entry)
		if !ok || i >= len(ctxs) {
			continue
		}
		name, _ := meta["name"].(string)
		if name == "" {
			continue
		}
		ctx, ok := toMap(ctxs[i])
		if !ok {
			continue
		}
		if rate, ok := floatFromAny(ctx["funding"]); ok {
			rates[name] = rate
		}
	}
	if len(rates) == 0 {
		return nil, errors.New("no funding rates parsed")
	}
	return rates, nil
}
