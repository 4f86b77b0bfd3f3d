package store

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"fno-desk/internal/types"
)

type Config struct {
	Mode            string   `yaml:"mode" validate:"oneof=DRY_RUN LIVE"`
	Exchange        string   `yaml:"exchange" validate:"oneof=MCX NFO"`
	Product         string   `yaml:"product" validate:"oneof=NRML MIS"`
	MarketData      string   `yaml:"market_data" validate:"oneof=REST TICKER"`
	CredentialsFile string   `yaml:"credentials_file" validate:"required"`
	Watch           []string `yaml:"watch"`
	Poll            struct {
		MarketDataSeconds int `yaml:"market_data_seconds" validate:"min=1,max=15"`
		PositionsSeconds  int `yaml:"positions_seconds" validate:"min=1,max=15"`
		PnLSeconds        int `yaml:"pnl_seconds" validate:"min=1,max=15"`
		AccountSeconds    int `yaml:"account_seconds" validate:"min=1,max=15"`
	} `yaml:"poll"`
	Pricing struct {
		OrderType        string  `yaml:"order_type" validate:"oneof=LIMIT MARKET"`
		PriceSource      string  `yaml:"price_source" validate:"oneof=LTP BIDASK"`
		TolerancePct     float64 `yaml:"tolerance_pct" validate:"gte=0"`
		MaxAdjustmentPct float64 `yaml:"max_adjustment_pct" validate:"gte=0,lte=100"`
		RoundToTick      bool    `yaml:"round_to_tick"`
		FallbackToMarket bool    `yaml:"fallback_to_market"`
	} `yaml:"pricing"`
	Protection struct {
		MaxDailyLoss      float64 `yaml:"max_daily_loss" validate:"gte=0"`
		MaxOrdersPerDay   int     `yaml:"max_orders_per_day" validate:"gte=0"`
		MaxLotsPerOrder   int     `yaml:"max_lots_per_order" validate:"gte=0"`
		MaxMarginUsagePct float64 `yaml:"max_margin_usage_pct" validate:"gte=0,lte=100"`
		FuturesMarginPct  float64 `yaml:"futures_margin_pct" validate:"gte=0,lte=100"`
	} `yaml:"protection"`
	Broker struct {
		QuoteRPS                 float64 `yaml:"quote_rps" validate:"gt=0"`
		APIRPS                   float64 `yaml:"api_rps" validate:"gt=0"`
		InstrumentsCacheDir      string  `yaml:"instruments_cache_dir"`
		InstrumentsCacheTTLHours int     `yaml:"instruments_cache_ttl_hours" validate:"gte=0"`
		TickerStaleSeconds       int     `yaml:"ticker_stale_seconds" validate:"gte=0"`
	} `yaml:"broker"`
	EOD struct {
		Cutoff string `yaml:"cutoff"`
	} `yaml:"eod"`
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := time.Parse("15:04", c.EOD.Cutoff); err != nil {
		return fmt.Errorf("eod.cutoff must be HH:MM, got '%s'", c.EOD.Cutoff)
	}
	for _, k := range c.Watch {
		if ex, sym := types.SplitKey(k); ex == "" || sym == "" {
			return fmt.Errorf("watch entry '%s' must be EXCHANGE:SYMBOL", k)
		}
	}
	return nil
}

// Defaults returns a config with every optional field filled in.
func Defaults() *Config {
	var c Config
	c.Pricing.RoundToTick = true
	c.Pricing.FallbackToMarket = true
	applyDefaults(&c)
	return &c
}

func applyDefaults(c *Config) {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.Exchange == "" {
		c.Exchange = types.ExchangeMCX
	}
	if c.Product == "" {
		c.Product = types.ProductNRML
	}
	if c.MarketData == "" {
		c.MarketData = "REST"
	}
	if c.CredentialsFile == "" {
		c.CredentialsFile = "credentials.json"
	}
	if c.Poll.MarketDataSeconds == 0 {
		c.Poll.MarketDataSeconds = 2
	}
	if c.Poll.PositionsSeconds == 0 {
		c.Poll.PositionsSeconds = 5
	}
	if c.Poll.PnLSeconds == 0 {
		c.Poll.PnLSeconds = 3
	}
	if c.Poll.AccountSeconds == 0 {
		c.Poll.AccountSeconds = 15
	}
	if c.Pricing.OrderType == "" {
		c.Pricing.OrderType = string(types.OrderTypeLimit)
	}
	if c.Pricing.PriceSource == "" {
		c.Pricing.PriceSource = string(types.PriceSourceLTP)
	}
	if c.Pricing.MaxAdjustmentPct == 0 {
		c.Pricing.MaxAdjustmentPct = 2
	}
	if c.Protection.FuturesMarginPct == 0 {
		c.Protection.FuturesMarginPct = 12
	}
	if c.Broker.QuoteRPS == 0 {
		c.Broker.QuoteRPS = 1
	}
	if c.Broker.APIRPS == 0 {
		c.Broker.APIRPS = 8
	}
	if c.Broker.InstrumentsCacheDir == "" {
		c.Broker.InstrumentsCacheDir = "cache/instruments"
	}
	if c.Broker.InstrumentsCacheTTLHours == 0 {
		c.Broker.InstrumentsCacheTTLHours = 12
	}
	if c.Broker.TickerStaleSeconds == 0 {
		c.Broker.TickerStaleSeconds = 5
	}
	if c.EOD.Cutoff == "" {
		c.EOD.Cutoff = "23:45"
	}
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML bytes, applies defaults and validates.
func ParseConfig(b []byte) (*Config, error) {
	c := Config{}
	// round_to_tick and fallback_to_market default to true unless set explicitly
	c.Pricing.RoundToTick = true
	c.Pricing.FallbackToMarket = true

	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func (c *Config) LIVE() bool { return c.Mode == "LIVE" }

// PollIntervals returns the four poll periods as durations.
func (c *Config) PollIntervals() (marketData, positions, pnl, account time.Duration) {
	return time.Duration(c.Poll.MarketDataSeconds) * time.Second,
		time.Duration(c.Poll.PositionsSeconds) * time.Second,
		time.Duration(c.Poll.PnLSeconds) * time.Second,
		time.Duration(c.Poll.AccountSeconds) * time.Second
}

// EODCutoff returns the cutoff hour and minute.
func (c *Config) EODCutoff() (hour, minute int) {
	t, err := time.Parse("15:04", c.EOD.Cutoff)
	if err != nil {
		return 23, 45
	}
	return t.Hour(), t.Minute()
}
