package brokerobs

import (
	"context"
	"fmt"

	"fno-desk/internal/interfaces"
	"fno-desk/internal/logger"
	"fno-desk/internal/trace"
	"fno-desk/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

// Compile-time interface check
var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{
		broker: broker,
	}
}

func (ob *observableBroker) Instruments(ctx context.Context, exchange string) ([]types.Instrument, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Instruments")
	defer span.End()

	ins, err := ob.broker.Instruments(ctx, exchange)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch instruments", err, "exchange", exchange)
		return nil, err
	}

	logger.InfoSkip(ctx, 1, "Instruments fetched", "exchange", exchange, "count", len(ins))
	return ins, nil
}

func (ob *observableBroker) Quote(ctx context.Context, keys []string) (map[string]types.Quote, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Quote")
	defer span.End()

	logger.DebugSkip(ctx, 1, "Fetching quotes", "count", len(keys))

	qs, err := ob.broker.Quote(ctx, keys)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch quotes", err, "count", len(keys))
		return qs, err
	}

	logger.DebugSkip(ctx, 1, "Quotes fetched", "requested", len(keys), "received", len(qs))
	return qs, nil
}

func (ob *observableBroker) LTP(ctx context.Context, keys []string) (map[string]float64, error) {
	ctx, span := trace.StartSpan(ctx, "broker.LTP")
	defer span.End()

	ltps, err := ob.broker.LTP(ctx, keys)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch LTP", err, "count", len(keys))
		return ltps, err
	}

	logger.DebugSkip(ctx, 1, "LTP fetched", "requested", len(keys), "received", len(ltps))
	return ltps, nil
}

func (ob *observableBroker) Positions(ctx context.Context) (types.Positions, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Positions")
	defer span.End()

	pos, err := ob.broker.Positions(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch positions", err)
		return pos, err
	}

	logger.DebugSkip(ctx, 1, "Positions fetched", "net", len(pos.Net), "day", len(pos.Day))
	return pos, nil
}

func (ob *observableBroker) Margins(ctx context.Context) (types.Margins, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Margins")
	defer span.End()

	m, err := ob.broker.Margins(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch margins", err)
		return m, err
	}

	logger.DebugSkip(ctx, 1, "Margins fetched",
		"equity_available", m.Equity.Available,
		"commodity_available", m.Commodity.Available,
	)
	return m, nil
}

func (ob *observableBroker) Orders(ctx context.Context) ([]types.Order, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Orders")
	defer span.End()

	orders, err := ob.broker.Orders(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch orders", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Orders fetched", "count", len(orders))
	return orders, nil
}

// PlaceOrder places an order with observability
func (ob *observableBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order",
		"symbol", req.Key(),
		"side", req.Side,
		"qty", req.Qty,
		"order_type", req.OrderType,
		"price", req.Price,
		"tag", req.Tag,
	)

	resp, err := ob.broker.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", req.Key(),
			"side", req.Side,
			"qty", req.Qty,
			"order_type", req.OrderType,
		)
		return types.OrderResp{}, err
	}

	logger.Order(ctx, req.Key(), string(req.Side), req.Qty, req.Price, resp.OrderID, resp.Status,
		"order_type", req.OrderType,
	)
	return resp, nil
}

// Start initializes the broker with observability
func (ob *observableBroker) Start(ctx context.Context, instruments []types.Instrument) error {
	ctx, span := trace.StartSpan(ctx, "broker.Start")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Starting broker", "count", len(instruments))

	err := ob.broker.Start(ctx, instruments)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to start broker", err, "count", len(instruments))
		return fmt.Errorf("broker start failed: %w", err)
	}

	logger.InfoSkip(ctx, 1, "Broker started successfully", "count", len(instruments))
	return nil
}

// Stop shuts down the broker with observability
func (ob *observableBroker) Stop(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "broker.Stop")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Stopping broker")
	ob.broker.Stop(ctx)
	logger.InfoSkip(ctx, 1, "Broker stopped successfully")
}
