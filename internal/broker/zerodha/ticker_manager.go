package zerodha

import (
	"context"
	"fmt"
	"sync"
	"time"

	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"fno-desk/internal/interfaces"
	"fno-desk/internal/logger"
	"fno-desk/internal/types"
)

// tickerManager streams full-mode ticks over the Kite websocket into a quote
// cache. Subscriptions requested before the socket connects are sent from
// onConnect, which also covers reconnects.
type tickerManager struct {
	ticker      *kiteticker.Ticker
	apiKey      string
	accessToken string
	maxAge      time.Duration

	cache  *quoteCache
	mapper *instrumentMapper

	mu        sync.Mutex
	connected bool
}

var _ interfaces.TickerManager = (*tickerManager)(nil)

func newTickerManager(apiKey, accessToken string, maxAge time.Duration) *tickerManager {
	return &tickerManager{
		apiKey:      apiKey,
		accessToken: accessToken,
		maxAge:      maxAge,
		cache:       newQuoteCache(),
		mapper:      newInstrumentMapper(),
	}
}

func (tm *tickerManager) Start(ctx context.Context) error {
	tm.ticker = kiteticker.New(tm.apiKey, tm.accessToken)

	tm.setupEventHandlers()

	go func() {
		logger.Info(ctx, "Starting Kite websocket ticker")
		tm.ticker.Serve()
	}()

	return nil
}

func (tm *tickerManager) Stop(ctx context.Context) {
	if tm.ticker == nil {
		return
	}
	logger.Info(ctx, "Stopping Kite websocket ticker")
	tm.ticker.Stop()

	tm.mu.Lock()
	tm.connected = false
	tm.mu.Unlock()
	tm.cache.clear()
}

func (tm *tickerManager) Subscribe(ctx context.Context, instruments []types.Instrument) error {
	tokens := tm.mapper.add(instruments)
	if len(tokens) == 0 {
		return nil
	}

	tm.mu.Lock()
	connected := tm.connected
	tm.mu.Unlock()
	if !connected {
		logger.Debug(ctx, "Ticker not connected yet, subscription deferred", "count", len(tokens))
		return nil
	}

	if err := tm.subscribeTokens(tokens); err != nil {
		return err
	}
	logger.Info(ctx, "Subscribed instruments for streaming quotes", "count", len(tokens))
	return nil
}

func (tm *tickerManager) subscribeTokens(tokens []uint32) error {
	if err := tm.ticker.Subscribe(tokens); err != nil {
		return fmt.Errorf("failed to subscribe to instruments: %w", err)
	}
	if err := tm.ticker.SetMode(kiteticker.ModeFull, tokens); err != nil {
		return fmt.Errorf("failed to set ticker mode: %w", err)
	}
	return nil
}

// Quote returns the streamed quote for key when it is fresh enough.
func (tm *tickerManager) Quote(key string) (types.Quote, bool) {
	return tm.cache.get(key, tm.maxAge)
}
