package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	REST      RESTConfig      `yaml:"rest"`
	WS        WSConfig        `yaml:"ws"`
	State     StateConfig     `yaml:"state"`
	Events    EventsConfig    `yaml:"events"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RESTConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type WSConfig struct {
	URL               string        `yaml:"url"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	ReconnectMaxDelay time.Duration `yaml:"reconnect_max_delay"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type EventsConfig struct {
	Path string `yaml:"path"`
}

type StrategyConfig struct {
	SpotSymbol         string  `yaml:"spot_symbol"`
	PerpSymbol         string  `yaml:"perp_symbol"`
	MinSpreadThreshold float64 `yaml:"min_spread_threshold"`
	ExitThreshold      float64 `yaml:"exit_threshold"`
	MaxPositionUSD     float64 `yaml:"max_position_usd"`
	CheckFundingRate   bool    `yaml:"check_funding_rate"`
	DryRun             bool    `yaml:"dry_run"`
	TakerFeeRate       float64 `yaml:"taker_fee_rate"`
	SizeDecimals       int     `yaml:"size_decimals"`
	Slippage           float64 `yaml:"slippage"`
}

type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = "https://api.hyperliquid.xyz"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = "wss://api.hyperliquid.xyz/ws"
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 5 * time.Second
	}
	if cfg.WS.ReconnectMaxDelay == 0 {
		cfg.WS.ReconnectMaxDelay = 60 * time.Second
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 30 * time.Second
	}
	if cfg.WS.ProbeTimeout == 0 {
		cfg.WS.ProbeTimeout = 5 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/hl-spread-bot.db"
	}
	if cfg.Events.Path == "" {
		cfg.Events.Path = "trade_events.json"
	}
	if cfg.Strategy.MinSpreadThreshold == 0 {
		cfg.Strategy.MinSpreadThreshold = 0.0015
	}
	if cfg.Strategy.ExitThreshold == 0 {
		cfg.Strategy.ExitThreshold = 0.0003
	}
	if cfg.Strategy.TakerFeeRate == 0 {
		cfg.Strategy.TakerFeeRate = 0.00025
	}
	if cfg.Strategy.SizeDecimals == 0 {
		cfg.Strategy.SizeDecimals = 2
	}
	if cfg.Strategy.Slippage == 0 {
		cfg.Strategy.Slippage = 0.001
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
}

func validate(cfg *Config) error {
	if cfg.Strategy.SpotSymbol == "" {
		return errors.New("strategy.spot_symbol is required")
	}
	if cfg.Strategy.PerpSymbol == "" {
		return errors.New("strategy.perp_symbol is required")
	}
	if cfg.Strategy.SpotSymbol == cfg.Strategy.PerpSymbol {
		return errors.New("strategy.spot_symbol and strategy.perp_symbol must differ")
	}
	if cfg.Strategy.MaxPositionUSD <= 0 {
		return errors.New("strategy.max_position_usd must be > 0")
	}
	if cfg.Strategy.MinSpreadThreshold <= cfg.Strategy.ExitThreshold {
		return errors.New("strategy.min_spread_threshold must exceed strategy.exit_threshold")
	}
	if cfg.WS.ReconnectMaxDelay < cfg.WS.ReconnectDelay {
		return errors.New("ws.reconnect_max_delay must be >= ws.reconnect_delay")
	}
	if cfg.Timescale.Enabled && cfg.Timescale.DSN == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}
