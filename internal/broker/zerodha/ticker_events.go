package zerodha

import (
	"context"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"github.com/zerodha/gokiteconnect/v4/models"

	"fno-desk/internal/logger"
	"fno-desk/internal/types"
)

// setupEventHandlers configures all WebSocket event callbacks
func (tm *tickerManager) setupEventHandlers() {
	tm.ticker.OnConnect(tm.onConnect)
	tm.ticker.OnError(tm.onError)
	tm.ticker.OnClose(tm.onClose)
	tm.ticker.OnReconnect(tm.onReconnect)
	tm.ticker.OnNoReconnect(tm.onNoReconnect)
	tm.ticker.OnTick(tm.onTick)
	tm.ticker.OnOrderUpdate(tm.onOrderUpdate)
}

func (tm *tickerManager) onConnect() {
	ctx := context.Background()
	logger.Info(ctx, "WebSocket connected successfully")

	tm.mu.Lock()
	tm.connected = true
	tm.mu.Unlock()

	tokens := tm.mapper.getAllTokens()
	if len(tokens) == 0 {
		return
	}
	if err := tm.subscribeTokens(tokens); err != nil {
		logger.ErrorWithErr(ctx, "Subscribing after connect failed", err, "count", len(tokens))
		return
	}
	logger.Info(ctx, "Subscribed instruments for streaming quotes", "count", len(tokens))
}

func (tm *tickerManager) onError(err error) {
	logger.ErrorWithErr(context.Background(), "WebSocket error occurred", err)
}

func (tm *tickerManager) onClose(code int, reason string) {
	tm.mu.Lock()
	tm.connected = false
	tm.mu.Unlock()

	logger.Warn(context.Background(), "WebSocket connection closed",
		"code", code,
		"reason", reason,
	)
}

func (tm *tickerManager) onReconnect(attempt int, delay time.Duration) {
	logger.Info(context.Background(), "WebSocket reconnecting",
		"attempt", attempt,
		"delay", delay,
	)
}

func (tm *tickerManager) onNoReconnect(attempt int) {
	logger.Warn(context.Background(), "WebSocket reconnection failed - falling back to REST quotes",
		"attempts", attempt,
	)
}

func (tm *tickerManager) onTick(tick models.Tick) {
	key := tm.mapper.getKey(tick.InstrumentToken)
	if key == "" {
		return
	}
	tm.cache.put(tickToQuote(key, tick))
}

func (tm *tickerManager) onOrderUpdate(order kiteconnect.Order) {
	logger.Debug(context.Background(), "Order update received",
		"order_id", order.OrderID,
		"status", order.Status,
		"symbol", order.TradingSymbol,
	)
}

func tickToQuote(key string, tick models.Tick) types.Quote {
	bid, bidQty := bestLevel(tick.Depth.Buy[:])
	ask, askQty := bestLevel(tick.Depth.Sell[:])
	ts := tick.Timestamp.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return types.Quote{
		Key:       key,
		LastPrice: tick.LastPrice,
		Bid:       bid,
		Ask:       ask,
		BidQty:    bidQty,
		AskQty:    askQty,
		Volume:    int64(tick.VolumeTraded),
		OI:        float64(tick.OI),
		Open:      tick.OHLC.Open,
		High:      tick.OHLC.High,
		Low:       tick.OHLC.Low,
		Close:     tick.OHLC.Close,
		Timestamp: ts,
	}
}
