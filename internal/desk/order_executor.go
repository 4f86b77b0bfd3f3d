package desk

import (
	"context"
	"fmt"

	"fno-desk/internal/interfaces"
	"fno-desk/internal/logger"
	"fno-desk/internal/tradelog"
	"fno-desk/internal/types"
)

// orderExecutor handles order placement, the market fallback and the
// journal.
type orderExecutor struct {
	broker           interfaces.Broker
	fallbackToMarket bool
}

func newOrderExecutor(broker interfaces.Broker, fallbackToMarket bool) *orderExecutor {
	return &orderExecutor{
		broker:           broker,
		fallbackToMarket: fallbackToMarket,
	}
}

// place sends req and, when a LIMIT order fails (or has no price) and the
// fallback is enabled, retries it once as MARKET.
//
// Parameters:
//   - ctx: Context for logging and tracing
//   - batchID: batch the order belongs to, written to the journal
//   - req: the order; a LIMIT with Price <= 0 means no price was available
//
// Returns the leg outcome. Broker errors never escape: they are recorded on
// the result so the batch can continue.
func (oe *orderExecutor) place(ctx context.Context, batchID string, req types.OrderReq) types.LegResult {
	res := types.LegResult{
		Key:       req.Key(),
		Side:      req.Side,
		Qty:       req.Qty,
		OrderType: req.OrderType,
		Price:     req.Price,
	}

	var firstErr error
	if req.OrderType == types.OrderTypeLimit && req.Price <= 0 {
		firstErr = fmt.Errorf("no price available for %s", req.Key())
	} else {
		resp, err := oe.broker.PlaceOrder(ctx, req)
		if err == nil {
			res.OrderID = resp.OrderID
			res.Status = types.LegPlaced
			if resp.Status == "SIMULATED" {
				res.Status = types.LegSimulated
			}
			oe.journal(batchID, req, res)
			return res
		}
		firstErr = err
	}

	if req.OrderType != types.OrderTypeLimit || !oe.fallbackToMarket {
		logger.ErrorWithErr(ctx, "Order failed", firstErr,
			"symbol", req.Key(),
			"side", req.Side,
			"qty", req.Qty,
			"order_type", req.OrderType,
		)
		res.Status = types.LegFailed
		res.Reason = firstErr.Error()
		oe.journal(batchID, req, res)
		return res
	}

	logger.Warn(ctx, "Limit order failed, retrying as market",
		"symbol", req.Key(),
		"side", req.Side,
		"qty", req.Qty,
		"limit_price", req.Price,
		"error", firstErr,
	)

	mkt := req
	mkt.OrderType = types.OrderTypeMarket
	mkt.Price = 0
	res.OrderType = types.OrderTypeMarket
	res.Price = 0

	resp, err := oe.broker.PlaceOrder(ctx, mkt)
	if err != nil {
		logger.ErrorWithErr(ctx, "Market fallback failed", err, "symbol", req.Key(), "side", req.Side, "qty", req.Qty)
		res.Status = types.LegFailed
		res.Reason = fmt.Sprintf("limit: %v; market: %v", firstErr, err)
		oe.journal(batchID, mkt, res)
		return res
	}

	res.OrderID = resp.OrderID
	res.Status = types.LegFallback
	res.Reason = "limit failed: " + firstErr.Error()
	oe.journal(batchID, mkt, res)
	return res
}

func (oe *orderExecutor) journal(batchID string, req types.OrderReq, res types.LegResult) {
	_ = tradelog.Append(tradelog.Entry{
		BatchID:   batchID,
		Exchange:  req.Exchange,
		Symbol:    req.Symbol,
		Side:      string(req.Side),
		OrderType: string(req.OrderType),
		Qty:       req.Qty,
		Price:     req.Price,
		OrderID:   res.OrderID,
		Status:    string(res.Status),
		Reason:    res.Reason,
	})
}

// blocked journals and logs a leg stopped by a protection rule.
func (oe *orderExecutor) blocked(ctx context.Context, batchID string, side types.Side, leg types.Leg, price float64, err error) types.LegResult {
	rule := ruleName(err)
	logger.Risk(ctx, leg.Instrument.Key(), rule,
		"batch_id", batchID,
		"side", side,
		"lots", leg.Lots,
		"reason", err.Error(),
	)
	_ = tradelog.AppendBlocked(tradelog.BlockedEntry{
		BatchID: batchID,
		Symbol:  leg.Instrument.Key(),
		Side:    string(side),
		Qty:     leg.Qty(),
		Price:   price,
		Rule:    rule,
		Reason:  err.Error(),
	})
	return types.LegResult{
		Key:    leg.Instrument.Key(),
		Side:   side,
		Qty:    leg.Qty(),
		Price:  price,
		Status: types.LegSkipped,
		Reason: err.Error(),
	}
}
