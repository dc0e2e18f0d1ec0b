package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hl-spread-bot/internal/account"
	"hl-spread-bot/internal/alerts"
	"hl-spread-bot/internal/config"
	"hl-spread-bot/internal/events"
	"hl-spread-bot/internal/exec"
	"hl-spread-bot/internal/hl/exchange"
	"hl-spread-bot/internal/hl/rest"
	"hl-spread-bot/internal/hl/ws"
	"hl-spread-bot/internal/market"
	"hl-spread-bot/internal/metrics"
	"hl-spread-bot/internal/state/sqlite"
	"hl-spread-bot/internal/strategy"
	"hl-spread-bot/internal/timescale"

	"go.uber.org/zap"
)

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *sqlite.Store
	rest      *rest.Client
	stream    *market.Stream
	funding   *market.FundingSource
	bus       *events.Bus
	engine    *strategy.Engine
	exchange  *exchange.Client
	timescale *timescale.Writer
	prom      *metrics.Prometheus
	alerts    *alerts.Telegram
}

// staticMargin sizes dry-run entries as if the full budget were free.
type staticMargin struct {
	value float64
}

func (m staticMargin) AvailableMargin(ctx context.Context) (float64, error) {
	_ = ctx
	return m.value, nil
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	restClient := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, log)
	wsClient := ws.New(cfg.WS.URL, cfg.WS.ReconnectDelay, cfg.WS.ReconnectMaxDelay, cfg.WS.PingInterval, log)
	stream := market.NewStream(wsClient, cfg.Strategy.SpotSymbol, cfg.Strategy.PerpSymbol, cfg.WS.ProbeTimeout, log)
	fundingSource := market.NewFundingSource(restClient, log)
	bus := events.NewBus(cfg.Events.Path, log)
	prom := metrics.NewPrometheus()
	alertsClient := alerts.NewTelegram(cfg.Telegram, log)

	tsWriter, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("timescale init: %w", err)
	}

	var gateway strategy.Gateway
	var marginSource strategy.MarginSource
	var exClient *exchange.Client
	if cfg.Strategy.DryRun {
		log.Info("dry run mode, orders are simulated")
		gateway = exec.NewDryRun(cfg.Strategy.TakerFeeRate, log)
		marginSource = staticMargin{value: cfg.Strategy.MaxPositionUSD}
	} else {
		walletAddress := strings.TrimSpace(os.Getenv("HL_WALLET_ADDRESS"))
		if walletAddress == "" {
			_ = store.Close()
			return nil, errors.New("HL_WALLET_ADDRESS is required for live trading")
		}
		privateKey := strings.TrimSpace(os.Getenv("HL_PRIVATE_KEY"))
		if privateKey == "" {
			_ = store.Close()
			return nil, errors.New("HL_PRIVATE_KEY is required for live trading")
		}
		accountAddress := strings.TrimSpace(os.Getenv("HL_ACCOUNT_ADDRESS"))
		if accountAddress == "" {
			accountAddress = walletAddress
		}
		vaultAddress := strings.TrimSpace(os.Getenv("HL_VAULT_ADDRESS"))
		isMainnet := !strings.Contains(strings.ToLower(cfg.REST.BaseURL), "testnet")
		signer, err := exchange.NewSigner(privateKey, isMainnet)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if !strings.EqualFold(walletAddress, signer.Address().Hex()) {
			_ = store.Close()
			return nil, fmt.Errorf("wallet address does not match private key: got %s expected %s", walletAddress, signer.Address().Hex())
		}
		exClient, err = exchange.NewClient(cfg.REST.BaseURL, cfg.REST.Timeout, signer, vaultAddress)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		exClient.SetLogger(log)
		gateway = exec.NewLive(exClient, exec.NewResolver(restClient, log), log)
		marginSource = account.New(restClient, accountAddress, log)
	}
	gateway = exec.NewRecorder(gateway, tsWriter, cfg.Strategy.TakerFeeRate)

	engine := strategy.NewEngine(cfg.Strategy, gateway, marginSource, fundingSource, bus, store, alertsClient, prom.Metrics, log)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		rest:      restClient,
		stream:    stream,
		funding:   fundingSource,
		bus:       bus,
		engine:    engine,
		exchange:  exClient,
		timescale: tsWriter,
		prom:      prom,
		alerts:    alertsClient,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.timescale.Close()

	if a.exchange != nil {
		if err := a.exchange.InitNonceStore(ctx, a.store); err != nil {
			a.log.Warn("nonce store init failed", zap.Error(err))
		} else if state, ok := a.exchange.NonceState(); ok {
			a.log.Info("nonce persistence enabled", zap.String("nonce_key", state.Key), zap.Uint64("nonce_seed", state.Last))
		}
	}
	if err := a.engine.Restore(ctx); err != nil {
		a.log.Warn("engine restore failed, starting flat", zap.Error(err))
	}
	a.timescale.Start(ctx)

	if a.cfg.Metrics.Enabled {
		shutdown := a.serveMetrics()
		defer shutdown()
	}

	a.stream.OnPriceUpdate(func(prices market.PriceState) {
		a.recordSpread(prices)
		a.engine.OnPriceUpdate(ctx, prices)
	})

	a.log.Info("starting price stream",
		zap.String("spot_symbol", a.cfg.Strategy.SpotSymbol),
		zap.String("perp_symbol", a.cfg.Strategy.PerpSymbol),
		zap.Bool("dry_run", a.cfg.Strategy.DryRun))
	return a.stream.Connect(ctx)
}

// TestConnection probes the websocket endpoint without mutating any
// state and reports the rest of the preflight checks.
func (a *App) TestConnection(ctx context.Context) error {
	if err := a.stream.TestConnection(ctx); err != nil {
		return fmt.Errorf("websocket probe: %w", err)
	}
	if _, err := a.funding.Rate(ctx, a.cfg.Strategy.PerpSymbol); err != nil {
		return fmt.Errorf("funding rate fetch: %w", err)
	}
	return nil
}

func (a *App) Stop() {
	a.stream.Disconnect()
}

// ResetError rehydrates the engine and clears a persisted ERROR state
// after manual intervention.
func (a *App) ResetError(ctx context.Context) error {
	defer a.store.Close()
	if err := a.engine.Restore(ctx); err != nil {
		return err
	}
	if a.engine.ClearError(ctx) {
		a.log.Info("error state cleared, engine is flat")
	} else {
		a.log.Info("engine is not in error state, nothing to clear")
	}
	return nil
}

func (a *App) serveMetrics() func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.ListenAddr, Handler: mux}
	go func() {
		a.log.Info("metrics server listening", zap.String("addr", a.cfg.Metrics.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

func (a *App) recordSpread(prices market.PriceState) {
	if a.timescale == nil || !prices.Ready() {
		return
	}
	a.timescale.EnqueueSpread(timescale.SpreadSample{
		Time:        time.Now().UTC(),
		SpotSymbol:  a.cfg.Strategy.SpotSymbol,
		PerpSymbol:  a.cfg.Strategy.PerpSymbol,
		SpotBid:     prices.Spot.BestBid,
		SpotAsk:     prices.Spot.BestAsk,
		PerpBid:     prices.Perp.BestBid,
		PerpAsk:     prices.Perp.BestAsk,
		EntrySpread: prices.EntrySpread(),
		ExitSpread:  prices.ExitSpread(),
	})
}
