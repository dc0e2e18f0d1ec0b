package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"hl-spread-bot/internal/account"
	"hl-spread-bot/internal/config"
	"hl-spread-bot/internal/hl/rest"
	"hl-spread-bot/internal/hl/ws"
	"hl-spread-bot/internal/logging"
	"hl-spread-bot/internal/market"

	"go.uber.org/zap"
)

const verifyTimeout = 15 * time.Second

// verify runs the preflight checks for a configured pair: websocket
// book subscription, funding rate fetch, and, when an account address
// is present, the margin query.
func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	wsClient := ws.New(cfg.WS.URL, cfg.WS.ReconnectDelay, cfg.WS.ReconnectMaxDelay, cfg.WS.PingInterval, log)
	stream := market.NewStream(wsClient, cfg.Strategy.SpotSymbol, cfg.Strategy.PerpSymbol, cfg.WS.ProbeTimeout, log)
	if err := stream.TestConnection(ctx); err != nil {
		fatal(fmt.Errorf("websocket probe: %w", err))
	}
	log.Info("websocket probe ok", zap.String("url", cfg.WS.URL))

	restClient := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, log)
	funding := market.NewFundingSource(restClient, log)
	rate, err := funding.Rate(ctx, cfg.Strategy.PerpSymbol)
	if err != nil {
		fatal(fmt.Errorf("funding rate fetch: %w", err))
	}
	log.Info("funding rate ok", zap.String("asset", cfg.Strategy.PerpSymbol), zap.Float64("rate", rate))

	address := strings.TrimSpace(os.Getenv("HL_ACCOUNT_ADDRESS"))
	if address == "" {
		address = strings.TrimSpace(os.Getenv("HL_WALLET_ADDRESS"))
	}
	if address == "" {
		log.Info("no account address set, skipping margin check")
		return
	}
	margin, err := account.New(restClient, address, log).AvailableMargin(ctx)
	if err != nil {
		fatal(fmt.Errorf("margin query: %w", err))
	}
	log.Info("margin query ok", zap.Float64("available_usd", margin))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "verify failed: %v\n", err)
	os.Exit(1)
}
