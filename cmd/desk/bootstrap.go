package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"fno-desk/internal/broker/brokerobs"
	"fno-desk/internal/broker/zerodha"
	"fno-desk/internal/contracts"
	"fno-desk/internal/desk"
	"fno-desk/internal/desk/deskobs"
	"fno-desk/internal/eod"
	"fno-desk/internal/eod/eodobs"
	"fno-desk/internal/interfaces"
	"fno-desk/internal/logger"
	"fno-desk/internal/store"
	"fno-desk/internal/trace"
	"fno-desk/internal/tradelog"
)

// initializeSystem initializes logger and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

func shutdownSystem() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = trace.Shutdown(ctx)
	logger.Sync()
}

// redirectLogs moves console logging to LOG_DASHBOARD_FILE (default
// <log dir>/desk.log) while the dashboard owns the terminal.
func redirectLogs(ctx context.Context) {
	path := os.Getenv("LOG_DASHBOARD_FILE")
	if path == "" {
		path = filepath.Join(tradelog.Dir(), "desk.log")
	}
	moved, err := logger.RedirectConsole(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to redirect logs to %s: %v\n", path, err)
		return
	}
	if moved {
		logger.Info(ctx, "Dashboard started, logging to file", "path", path)
	}
}

// loadConfig reads the config file. A missing file runs on defaults.
func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn(ctx, "Config file not found, using defaults", "path", path)
		return store.Defaults(), nil
	}
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// compressOldLogs compresses old tradelog files if retention is configured
func compressOldLogs(ctx context.Context) {
	v := os.Getenv("TRADER_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn(ctx, "Invalid TRADER_LOG_RETENTION_DAYS", "value", v)
		return
	}
	if err := tradelog.CompressOlder(n); err != nil {
		logger.Warn(ctx, "Failed to compress old logs", "error", err)
	}
}

// initializeBroker builds the Kite broker with observability. Every call
// needs a session, so missing credentials are an error here.
func initializeBroker(ctx context.Context, cfg *store.Config) (interfaces.Broker, error) {
	creds, err := store.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}

	brk := zerodha.NewZerodha(zerodha.Params{
		Mode:        cfg.Mode,
		APIKey:      creds.APIKey,
		AccessToken: creds.AccessToken,
		MarketData:  cfg.MarketData,
		QuoteRPS:    cfg.Broker.QuoteRPS,
		APIRPS:      cfg.Broker.APIRPS,
		TickerStale: time.Duration(cfg.Broker.TickerStaleSeconds) * time.Second,
	})

	if cfg.LIVE() {
		logger.Warn(ctx, "Running in LIVE mode - orders go to the exchange")
	} else {
		logger.Info(ctx, "Running in DRY_RUN mode - orders will be simulated")
	}
	logger.Info(ctx, "Market data source", "source", cfg.MarketData)

	return brokerobs.Wrap(brk), nil
}

func initializeCatalog(cfg *store.Config, brk interfaces.Broker) *contracts.Catalog {
	ttl := time.Duration(cfg.Broker.InstrumentsCacheTTLHours) * time.Hour
	return contracts.NewCatalog(brk, cfg.Broker.InstrumentsCacheDir, ttl)
}

// initializeDesk builds the order desk with observability
func initializeDesk(cfg *store.Config, brk interfaces.Broker, cat *contracts.Catalog) interfaces.Desk {
	d := desk.New(desk.ConfigFrom(cfg), brk, cat)
	return deskobs.Wrap(d)
}

// initializeEOD wraps the default EOD summarizer with observability
func initializeEOD(cfg *store.Config) {
	h, m := cfg.EODCutoff()
	cutoff := fmt.Sprintf("%02d:%02d", h, m)
	eod.SetDefaultSummarizer(eodobs.Wrap(eod.NewSummarizer(h, m), cutoff))
}

// app is everything a command needs once bootstrapped.
type app struct {
	cfg     *store.Config
	brk     interfaces.Broker
	catalog *contracts.Catalog
	desk    interfaces.Desk
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return nil, err
	}
	compressOldLogs(ctx)
	initializeEOD(cfg)

	brk, err := initializeBroker(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cat := initializeCatalog(cfg, brk)

	return &app{
		cfg:     cfg,
		brk:     brk,
		catalog: cat,
		desk:    initializeDesk(cfg, brk, cat),
	}, nil
}

func (a *app) close(ctx context.Context) {
	a.brk.Stop(ctx)
}

// loadCatalog loads the contracts of every exchange in exchanges, defaulting
// to the configured one.
func (a *app) loadCatalog(ctx context.Context, exchanges ...string) error {
	if len(exchanges) == 0 {
		exchanges = []string{a.cfg.Exchange}
	}
	seen := map[string]bool{}
	for _, ex := range exchanges {
		if seen[ex] {
			continue
		}
		seen[ex] = true
		n, err := a.catalog.Load(ctx, ex)
		if err != nil {
			return err
		}
		logger.Debug(ctx, "Catalog loaded", "exchange", ex, "contracts", n)
	}
	return nil
}
