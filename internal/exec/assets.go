package exec

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// spotAssetOffset maps spot pair indices into the exchange's asset id
// space: spot "@N" trades as asset 10000+N.
const spotAssetOffset = 10000

// InfoClient is the /info endpoint surface the resolver needs.
type InfoClient interface {
	Info(ctx context.Context, req interface{}) (map[string]any, error)
}

// Resolver maps configured symbols to exchange asset ids. Perp ids are
// positions in the meta universe and are cached after the first lookup.
type Resolver struct {
	info InfoClient
	log  *zap.Logger

	mu    sync.Mutex
	perps map[string]int
}

func NewResolver(info InfoClient, log *zap.Logger) *Resolver {
	return &Resolver{
		info:  info,
		log:   log,
		perps: make(map[string]int),
	}
}

func (r *Resolver) Resolve(ctx context.Context, symbol string) (int, error) {
	if strings.HasPrefix(symbol, "@") {
		idx, err := strconv.Atoi(symbol[1:])
		if err != nil || idx < 0 {
			return 0, fmt.Errorf("invalid spot symbol %q", symbol)
		}
		return spotAssetOffset + idx, nil
	}

	r.mu.Lock()
	if id, ok := r.perps[symbol]; ok {
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()

	if err := r.refresh(ctx); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.perps[symbol]
	if !ok {
		return 0, fmt.Errorf("perp asset %q not in meta universe", symbol)
	}
	return id, nil
}

func (r *Resolver) refresh(ctx context.Context) error {
	resp, err := r.info.Info(ctx, map[string]any{"type": "meta"})
	if err != nil {
		return fmt.Errorf("fetch perp meta: %w", err)
	}
	universe, _ := resp["universe"].([]any)
	if len(universe) == 0 {
		return fmt.Errorf("perp meta has no universe")
	}
	perps := make(map[string]int, len(universe))
	for i, entry := range universe {
		asset, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name, _ := asset["name"].(string)
		if name != "" {
			perps[name] = i
		}
	}
	r.mu.Lock()
	r.perps = perps
	r.mu.Unlock()
	r.log.Debug("perp universe refreshed", zap.Int("assets", len(perps)))
	return nil
}
