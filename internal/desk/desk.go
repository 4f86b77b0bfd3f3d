package desk

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"fno-desk/internal/interfaces"
	"fno-desk/internal/logger"
	"fno-desk/internal/pricing"
	"fno-desk/internal/store"
	"fno-desk/internal/types"
)

// Config is the slice of the desk configuration order placement needs.
type Config struct {
	Exchange         string
	Product          string
	Pricing          pricing.Config
	FallbackToMarket bool
	Protection       Protection
}

// ConfigFrom maps the loaded file configuration onto Config.
func ConfigFrom(c *store.Config) Config {
	return Config{
		Exchange: c.Exchange,
		Product:  c.Product,
		Pricing: pricing.Config{
			OrderType:        types.OrderType(c.Pricing.OrderType),
			PriceSource:      types.PriceSource(c.Pricing.PriceSource),
			TolerancePct:     c.Pricing.TolerancePct,
			MaxAdjustmentPct: c.Pricing.MaxAdjustmentPct,
			RoundToTick:      c.Pricing.RoundToTick,
		},
		FallbackToMarket: c.Pricing.FallbackToMarket,
		Protection: Protection{
			MaxDailyLoss:      c.Protection.MaxDailyLoss,
			MaxOrdersPerDay:   c.Protection.MaxOrdersPerDay,
			MaxLotsPerOrder:   c.Protection.MaxLotsPerOrder,
			MaxMarginUsagePct: c.Protection.MaxMarginUsagePct,
			FuturesMarginPct:  c.Protection.FuturesMarginPct,
		},
	}
}

// desk places batches of orders for a selection and flattens positions.
type desk struct {
	cfg  Config
	brk  interfaces.Broker
	calc *pricing.Calculator

	riskMgr     *riskManager
	orderExec   *orderExecutor
	positionMgr *positionManager

	// one batch at a time so the order cap sees every previous order
	mu sync.Mutex
}

var _ interfaces.Desk = (*desk)(nil)

func newDesk(cfg Config, brk interfaces.Broker, lookup InstrumentLookup) *desk {
	if cfg.Product == "" {
		cfg.Product = types.ProductNRML
	}
	return &desk{
		cfg:         cfg,
		brk:         brk,
		calc:        pricing.NewCalculator(cfg.Pricing),
		riskMgr:     newRiskManager(brk, cfg.Protection),
		orderExec:   newOrderExecutor(brk, cfg.FallbackToMarket),
		positionMgr: newPositionManager(brk, lookup),
	}
}

func newBatchID() (id, tag string) {
	id = uuid.NewString()
	return id, "desk-" + id[:8]
}

// PlaceBatch submits every leg of sel on side.
//
// Batch-level rules (loss limit, order cap, margin usage) abort the whole
// batch: every leg comes back SKIPPED, the wrapped rule error is returned and
// sel is left untouched so it can be adjusted. Leg-level problems (lot cap,
// no price, broker rejection) only affect that leg. sel is cleared once the
// batch has been submitted.
func (d *desk) PlaceBatch(ctx context.Context, side types.Side, sel interfaces.Selection) (*types.BatchResult, error) {
	legs := sel.Legs()
	if len(legs) == 0 {
		return nil, ErrNoSelection
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	batchID, tag := newBatchID()
	res := &types.BatchResult{BatchID: batchID, Side: side}

	keys := make([]string, 0, len(legs))
	for _, l := range legs {
		keys = append(keys, l.Instrument.Key())
	}
	quotes, err := d.brk.Quote(ctx, keys)
	if err != nil {
		logger.Warn(ctx, "Quotes unavailable for batch", "batch_id", batchID, "error", err)
		quotes = map[string]types.Quote{}
	}

	prices := make(map[string]float64, len(legs))
	for _, l := range legs {
		prices[l.Instrument.Key()] = d.calc.ReferencePrice(quotes[l.Instrument.Key()], side)
	}

	if err := d.checkBatch(ctx, side, legs, prices); err != nil {
		for _, l := range legs {
			res.Legs = append(res.Legs, d.orderExec.blocked(ctx, batchID, side, l, prices[l.Instrument.Key()], err))
		}
		return res, err
	}

	for _, l := range legs {
		key := l.Instrument.Key()
		if err := d.riskMgr.checkLots(l.Lots); err != nil {
			res.Legs = append(res.Legs, d.orderExec.blocked(ctx, batchID, side, l, prices[key], err))
			continue
		}

		req := types.OrderReq{
			Exchange:  l.Instrument.Exchange,
			Symbol:    l.Instrument.Symbol,
			Side:      side,
			Qty:       l.Qty(),
			OrderType: d.calc.OrderType(),
			Product:   d.cfg.Product,
			Tag:       tag,
		}
		if req.OrderType == types.OrderTypeLimit {
			req.Price = d.calc.LimitPrice(side, quotes[key], l.Instrument.TickSize)
		}

		lr := d.orderExec.place(ctx, batchID, req)
		if lr.OK() {
			d.riskMgr.recordOrder()
		}
		res.Legs = append(res.Legs, lr)
	}

	sel.Clear()
	logger.Info(ctx, "Batch submitted",
		"batch_id", batchID,
		"side", side,
		"legs", len(res.Legs),
		"placed", res.Placed(),
		"failed", res.Failed(),
	)
	return res, nil
}

func (d *desk) checkBatch(ctx context.Context, side types.Side, legs []types.Leg, prices map[string]float64) error {
	if err := d.riskMgr.checkLossLimit(ctx); err != nil {
		return err
	}
	if err := d.riskMgr.checkOrderCap(ctx, len(legs)); err != nil {
		return err
	}
	return d.riskMgr.checkMargin(ctx, side, legs, prices)
}

// ExitPositions flattens the open net positions matched by req. Exits skip
// the loss, order cap and margin rules; the lot cap still applies by
// splitting each position into several orders.
func (d *desk) ExitPositions(ctx context.Context, req types.ExitRequest) (*types.BatchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	positions, err := d.positionMgr.selectOpen(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, ErrNoPositions
	}

	batchID, tag := newBatchID()
	res := &types.BatchResult{BatchID: batchID}

	keys := make([]string, 0, len(positions))
	for _, p := range positions {
		keys = append(keys, p.Key())
	}
	quotes, err := d.brk.Quote(ctx, keys)
	if err != nil {
		logger.Warn(ctx, "Quotes unavailable for exit, using position LTP", "batch_id", batchID, "error", err)
		quotes = map[string]types.Quote{}
	}

	for _, o := range d.positionMgr.plan(positions, d.cfg.Protection.MaxLotsPerOrder) {
		side, price := d.calc.ExitPrice(o.pos, quotes[o.pos.Key()], o.inst.TickSize)
		product := o.pos.Product
		if product == "" {
			product = d.cfg.Product
		}
		oreq := types.OrderReq{
			Exchange:  o.pos.Exchange,
			Symbol:    o.pos.Symbol,
			Side:      side,
			Qty:       o.qty,
			OrderType: d.calc.OrderType(),
			Product:   product,
			Tag:       tag,
		}
		if oreq.OrderType == types.OrderTypeLimit {
			oreq.Price = price
		}

		lr := d.orderExec.place(ctx, batchID, oreq)
		if lr.OK() {
			d.riskMgr.recordOrder()
		}
		res.Legs = append(res.Legs, lr)
	}

	logger.Info(ctx, "Exit submitted",
		"batch_id", batchID,
		"positions", len(positions),
		"orders", len(res.Legs),
		"placed", res.Placed(),
	)
	return res, nil
}
