package desk

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fno-desk/internal/interfaces"
	"fno-desk/internal/logger"
	"fno-desk/internal/types"
)

var (
	ErrLossLimit   = errors.New("daily loss limit reached")
	ErrOrderCap    = errors.New("daily order cap reached")
	ErrQuantityCap = errors.New("lots per order above cap")
	ErrMarginUsage = errors.New("margin usage above cap")
	ErrNoSelection = errors.New("nothing selected")
	ErrNoPositions = errors.New("no open positions match")
)

// Protection holds the pre-trade limits. A zero value disables that rule.
type Protection struct {
	MaxDailyLoss      float64
	MaxOrdersPerDay   int
	MaxLotsPerOrder   int
	MaxMarginUsagePct float64
	FuturesMarginPct  float64
}

// riskManager runs the protection rules against live broker state.
type riskManager struct {
	brk  interfaces.Broker
	prot Protection

	// orders placed by this process; used when the order book is unavailable
	mu          sync.Mutex
	localOrders int
}

func newRiskManager(brk interfaces.Broker, prot Protection) *riskManager {
	return &riskManager{brk: brk, prot: prot}
}

func (rm *riskManager) recordOrder() {
	rm.mu.Lock()
	rm.localOrders++
	rm.mu.Unlock()
}

// checkLossLimit blocks new risk once the day's mark-to-market loss reaches
// the configured limit.
func (rm *riskManager) checkLossLimit(ctx context.Context) error {
	if rm.prot.MaxDailyLoss <= 0 {
		return nil
	}
	pos, err := rm.brk.Positions(ctx)
	if err != nil {
		return fmt.Errorf("%w: positions unavailable: %v", ErrLossLimit, err)
	}
	mtm := pos.TotalPnL()
	if mtm <= -rm.prot.MaxDailyLoss {
		return fmt.Errorf("%w: MTM %.2f, limit -%.2f", ErrLossLimit, mtm, rm.prot.MaxDailyLoss)
	}
	logger.Debug(ctx, "Loss limit check passed", "mtm", mtm, "limit", rm.prot.MaxDailyLoss)
	return nil
}

// ordersToday counts the order book, falling back to the local counter.
func (rm *riskManager) ordersToday(ctx context.Context) int {
	orders, err := rm.brk.Orders(ctx)
	rm.mu.Lock()
	local := rm.localOrders
	rm.mu.Unlock()
	if err != nil {
		logger.Warn(ctx, "Order book unavailable, using local order count", "error", err, "local", local)
		return local
	}
	if len(orders) < local {
		return local
	}
	return len(orders)
}

// checkOrderCap blocks a batch of n orders that would exceed the daily cap.
func (rm *riskManager) checkOrderCap(ctx context.Context, n int) error {
	if rm.prot.MaxOrdersPerDay <= 0 {
		return nil
	}
	today := rm.ordersToday(ctx)
	if today+n > rm.prot.MaxOrdersPerDay {
		return fmt.Errorf("%w: %d placed + %d new > %d", ErrOrderCap, today, n, rm.prot.MaxOrdersPerDay)
	}
	return nil
}

// checkLots enforces the per-order lot cap on one leg.
func (rm *riskManager) checkLots(lots int) error {
	if rm.prot.MaxLotsPerOrder > 0 && lots > rm.prot.MaxLotsPerOrder {
		return fmt.Errorf("%w: %d lots > %d", ErrQuantityCap, lots, rm.prot.MaxLotsPerOrder)
	}
	return nil
}

// requiredMargin estimates the cash a leg blocks. Option buyers pay the
// premium; futures and option writers post a percentage of notional.
func (rm *riskManager) requiredMargin(side types.Side, in types.Instrument, qty int, price float64) float64 {
	notional := price * float64(qty)
	if in.IsOption() && side == types.SideBuy {
		return notional
	}
	return notional * rm.prot.FuturesMarginPct / 100
}

// checkMargin estimates usage per segment after the batch:
// (used + required) / (used + available) * 100.
//
// Parameters:
//   - ctx: Context for logging
//   - side: side of every leg
//   - legs: the batch
//   - prices: per-key reference price used for the estimate
//
// Returns ErrMarginUsage (wrapped) when any segment would exceed the cap.
func (rm *riskManager) checkMargin(ctx context.Context, side types.Side, legs []types.Leg, prices map[string]float64) error {
	if rm.prot.MaxMarginUsagePct <= 0 {
		return nil
	}
	// a leg without a price cannot be margined
	for _, l := range legs {
		if prices[l.Instrument.Key()] <= 0 {
			return fmt.Errorf("%w: no price for %s", ErrMarginUsage, l.Instrument.Key())
		}
	}
	m, err := rm.brk.Margins(ctx)
	if err != nil {
		return fmt.Errorf("%w: margins unavailable: %v", ErrMarginUsage, err)
	}

	required := map[string]float64{}
	for _, l := range legs {
		seg := segmentOf(l.Instrument.Exchange)
		required[seg] += rm.requiredMargin(side, l.Instrument, l.Qty(), prices[l.Instrument.Key()])
	}

	for seg, req := range required {
		sm := m.ForExchange(exchangeOfSegment(seg))
		capacity := sm.Used + sm.Available
		if capacity <= 0 {
			return fmt.Errorf("%w: no %s margin available", ErrMarginUsage, seg)
		}
		usage := (sm.Used + req) / capacity * 100
		logger.Debug(ctx, "Margin usage estimate",
			"segment", seg,
			"used", sm.Used,
			"available", sm.Available,
			"required", req,
			"usage_pct", usage,
		)
		if usage > rm.prot.MaxMarginUsagePct {
			return fmt.Errorf("%w: %s usage %.1f%% > %.1f%%", ErrMarginUsage, seg, usage, rm.prot.MaxMarginUsagePct)
		}
	}
	return nil
}

func segmentOf(exchange string) string {
	if exchange == types.ExchangeMCX {
		return "commodity"
	}
	return "equity"
}

func exchangeOfSegment(seg string) string {
	if seg == "commodity" {
		return types.ExchangeMCX
	}
	return types.ExchangeNFO
}

// ruleName maps a protection error to the name written to the journal.
func ruleName(err error) string {
	switch {
	case errors.Is(err, ErrLossLimit):
		return "LOSS_LIMIT"
	case errors.Is(err, ErrOrderCap):
		return "ORDER_CAP"
	case errors.Is(err, ErrQuantityCap):
		return "LOT_CAP"
	case errors.Is(err, ErrMarginUsage):
		return "MARGIN_USAGE"
	default:
		return "OTHER"
	}
}
