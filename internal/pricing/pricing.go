// Package pricing turns a market price into the limit price the desk sends
// with an order.
package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"fno-desk/internal/types"
)

// MinTick is the smallest price increment on MCX and NFO contracts. It is the
// floor for a computed price when tick rounding is turned off.
const MinTick = 0.05

// ClampTolerance bounds a fractional tolerance to [0, maxAdjustmentPct/100].
// A non-positive maxAdjustmentPct leaves the upper side unbounded.
func ClampTolerance(tol, maxAdjustmentPct float64) float64 {
	if tol < 0 {
		return 0
	}
	if maxAdjustmentPct > 0 {
		if limit := maxAdjustmentPct / 100; tol > limit {
			return limit
		}
	}
	return tol
}

// RoundToTick snaps price to the nearest multiple of tick.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decimal.NewFromFloat(tick)
	p := decimal.NewFromFloat(price)
	f, _ := p.Div(t).Round(0).Mul(t).Float64()
	return f
}

// CalculateLimitPrice offsets price by tol: a BUY is priced at price*(1-tol)
// and a SELL at price*(1+tol).
//
// Parameters:
//   - price: reference market price; <= 0 means no price and returns 0
//   - side: BUY or SELL
//   - tol: fractional tolerance, already clamped
//   - tick: tick size to round to; <= 0 disables rounding
//
// The result is never <= 0: it falls back to one tick (or MinTick).
func CalculateLimitPrice(price float64, side types.Side, tol, tick float64) float64 {
	if price <= 0 {
		return 0
	}
	p := decimal.NewFromFloat(price)
	adj := decimal.NewFromFloat(tol)
	one := decimal.NewFromInt(1)

	var limit decimal.Decimal
	if side == types.SideBuy {
		limit = p.Mul(one.Sub(adj))
	} else {
		limit = p.Mul(one.Add(adj))
	}

	out, _ := limit.Float64()
	if tick > 0 {
		out = RoundToTick(out, tick)
	}
	if out <= 0 {
		if tick > 0 {
			return tick
		}
		return MinTick
	}
	return out
}

// ExitSide is the side that flattens a position of qty.
func ExitSide(qty int) types.Side {
	if qty < 0 {
		return types.SideBuy
	}
	return types.SideSell
}

// Config is the pricing block of the desk configuration.
type Config struct {
	OrderType        types.OrderType
	PriceSource      types.PriceSource
	TolerancePct     float64
	MaxAdjustmentPct float64
	RoundToTick      bool
}

// Calculator applies Config to quotes.
type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) *Calculator {
	if cfg.OrderType == "" {
		cfg.OrderType = types.OrderTypeLimit
	}
	cfg.PriceSource = types.PriceSource(strings.ToUpper(string(cfg.PriceSource)))
	if cfg.PriceSource == "" {
		cfg.PriceSource = types.PriceSourceLTP
	}
	return &Calculator{cfg: cfg}
}

func (c *Calculator) OrderType() types.OrderType { return c.cfg.OrderType }

// Tolerance is the configured percentage as a clamped fraction.
func (c *Calculator) Tolerance() float64 {
	return ClampTolerance(c.cfg.TolerancePct/100, c.cfg.MaxAdjustmentPct)
}

// ReferencePrice picks the quote field that anchors a limit on side. With
// BIDASK a buy crosses to the best ask and a sell to the best bid; an empty
// book side falls back to the last price.
func (c *Calculator) ReferencePrice(q types.Quote, side types.Side) float64 {
	if c.cfg.PriceSource == types.PriceSourceBidAsk {
		if side == types.SideBuy && q.Ask > 0 {
			return q.Ask
		}
		if side == types.SideSell && q.Bid > 0 {
			return q.Bid
		}
	}
	return q.LastPrice
}

// LimitPrice prices an order on side from q. It returns 0 when the quote has
// no usable price.
func (c *Calculator) LimitPrice(side types.Side, q types.Quote, tick float64) float64 {
	if !c.cfg.RoundToTick {
		tick = 0
	}
	return CalculateLimitPrice(c.ReferencePrice(q, side), side, c.Tolerance(), tick)
}

// ExitPrice prices the order that flattens pos: a long exits with SELL
// tolerance, a short with BUY tolerance.
func (c *Calculator) ExitPrice(pos types.Position, q types.Quote, tick float64) (types.Side, float64) {
	side := ExitSide(pos.Quantity)
	if q.LastPrice <= 0 && pos.LastPrice > 0 {
		q.LastPrice = pos.LastPrice
	}
	return side, c.LimitPrice(side, q, tick)
}
