package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"hl-spread-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// SpreadSample is one synchronized observation of both legs.
type SpreadSample struct {
	Time        time.Time
	SpotSymbol  string
	PerpSymbol  string
	SpotBid     float64
	SpotAsk     float64
	PerpBid     float64
	PerpAsk     float64
	EntrySpread float64
	ExitSpread  float64
}

// TradeRecord is one resolved leg fill.
type TradeRecord struct {
	Time    time.Time
	Symbol  string
	Side    string
	Size    float64
	Price   float64
	Fee     float64
	OrderID string
	Phase   string
}

type Writer struct {
	db         *sql.DB
	log        *zap.Logger
	schema     string
	spreads    chan SpreadSample
	trades     chan TradeRecord
	started    atomic.Bool
	dropSpread atomic.Uint64
	dropTrade  atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:      db,
		log:     log,
		schema:  schema,
		spreads: make(chan SpreadSample, queueSize),
		trades:  make(chan TradeRecord, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// EnqueueSpread never blocks the price path; samples are dropped when
// the queue is full.
func (w *Writer) EnqueueSpread(sample SpreadSample) {
	if w == nil {
		return
	}
	select {
	case w.spreads <- sample:
		return
	default:
		if w.dropSpread.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale spread queue full")
		}
	}
}

func (w *Writer) EnqueueTrade(trade TradeRecord) {
	if w == nil {
		return
	}
	select {
	case w.trades <- trade:
		return
	default:
		if w.dropTrade.Add(1) == 1 && w.log != nil {
			w.log.Warn("timescale trade queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-w.spreads:
			w.writeSpread(ctx, sample)
		case trade := <-w.trades:
			w.writeTrade(ctx, trade)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		spot_symbol TEXT NOT NULL,
		perp_symbol TEXT NOT NULL,
		spot_bid DOUBLE PRECISION NOT NULL,
		spot_ask DOUBLE PRECISION NOT NULL,
		perp_bid DOUBLE PRECISION NOT NULL,
		perp_ask DOUBLE PRECISION NOT NULL,
		entry_spread DOUBLE PRECISION NOT NULL,
		exit_spread DOUBLE PRECISION NOT NULL
	)`, w.table("spread_samples"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		fee DOUBLE PRECISION NOT NULL,
		order_id TEXT NOT NULL,
		phase TEXT NOT NULL
	)`, w.table("leg_fills"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("spread_samples"))); err != nil && w.log != nil {
		w.log.Warn("timescale spread_samples hypertable create failed", zap.Error(err))
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("leg_fills"))); err != nil && w.log != nil {
		w.log.Warn("timescale leg_fills hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeSpread(ctx context.Context, sample SpreadSample) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, spot_symbol, perp_symbol, spot_bid, spot_ask, perp_bid, perp_ask, entry_spread, exit_spread
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9
	)`, w.table("spread_samples"))
	if _, err := w.db.ExecContext(ctx, query,
		sample.Time,
		sample.SpotSymbol,
		sample.PerpSymbol,
		sample.SpotBid,
		sample.SpotAsk,
		sample.PerpBid,
		sample.PerpAsk,
		sample.EntrySpread,
		sample.ExitSpread,
	); err != nil && w.log != nil {
		w.log.Warn("timescale spread insert failed", zap.Error(err))
	}
}

func (w *Writer) writeTrade(ctx context.Context, trade TradeRecord) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, symbol, side, size, price, fee, order_id, phase
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8
	)`, w.table("leg_fills"))
	if _, err := w.db.ExecContext(ctx, query,
		trade.Time,
		trade.Symbol,
		trade.Side,
		trade.Size,
		trade.Price,
		trade.Fee,
		trade.OrderID,
		trade.Phase,
	); err != nil && w.log != nil {
		w.log.Warn("timescale trade insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
