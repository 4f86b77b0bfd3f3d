package zerodha

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"fno-desk/internal/interfaces"
	"fno-desk/internal/logger"
	"fno-desk/internal/types"
)

// Kite caps a single quote request at 500 instruments.
const maxQuoteKeys = 500

var ErrMissingCredentials = errors.New("missing API key/access token")

type Params struct {
	Mode        string
	APIKey      string
	AccessToken string
	MarketData  string // REST or TICKER
	QuoteRPS    float64
	APIRPS      float64
	TickerStale time.Duration
}

type Zerodha struct {
	p            Params
	api          kiteAPI
	quoteLimiter *rate.Limiter
	apiLimiter   *rate.Limiter

	tickerMgr    interfaces.TickerManager
	isTickerInit atomic.Bool

	simSeq atomic.Int64
	simMu  sync.Mutex
	simOrd []types.Order
}

var _ interfaces.Broker = (*Zerodha)(nil)

func NewZerodha(p Params) *Zerodha {
	z := newWithAPI(p, newRestClient(p.APIKey, p.AccessToken))

	if p.MarketData == "TICKER" && p.APIKey != "" && p.AccessToken != "" {
		z.tickerMgr = newTickerManager(p.APIKey, p.AccessToken, p.TickerStale)
	}

	return z
}

func newWithAPI(p Params, api kiteAPI) *Zerodha {
	if p.QuoteRPS <= 0 {
		p.QuoteRPS = 1
	}
	if p.APIRPS <= 0 {
		p.APIRPS = 8
	}
	return &Zerodha{
		p:            p,
		api:          api,
		quoteLimiter: rate.NewLimiter(rate.Limit(p.QuoteRPS), 1),
		apiLimiter:   rate.NewLimiter(rate.Limit(p.APIRPS), 1),
	}
}

func (z *Zerodha) dryRun() bool { return z.p.Mode != "LIVE" }

// ready gates every REST call on credentials and the rate limiter.
func (z *Zerodha) ready(ctx context.Context, lim *rate.Limiter) error {
	if z.p.APIKey == "" || z.p.AccessToken == "" {
		return ErrMissingCredentials
	}
	return lim.Wait(ctx)
}

func (z *Zerodha) Instruments(ctx context.Context, exchange string) ([]types.Instrument, error) {
	if err := z.ready(ctx, z.apiLimiter); err != nil {
		return nil, err
	}
	ins, err := z.api.Instruments(exchange)
	if err != nil {
		return nil, fmt.Errorf("instruments %s: %w", exchange, err)
	}
	return ins, nil
}

// Quote serves fresh streamed quotes first and asks REST for the rest.
func (z *Zerodha) Quote(ctx context.Context, keys []string) (map[string]types.Quote, error) {
	out := make(map[string]types.Quote, len(keys))
	missing := keys
	if z.tickerMgr != nil && z.isTickerInit.Load() {
		missing = make([]string, 0, len(keys))
		for _, k := range keys {
			if q, ok := z.tickerMgr.Quote(k); ok {
				out[k] = q
				continue
			}
			missing = append(missing, k)
		}
	}

	for _, chunk := range chunkKeys(missing, maxQuoteKeys) {
		if err := z.ready(ctx, z.quoteLimiter); err != nil {
			return out, err
		}
		qs, err := z.api.Quote(chunk...)
		if err != nil {
			return out, fmt.Errorf("quote: %w", err)
		}
		for k, q := range qs {
			out[k] = q
		}
	}
	return out, nil
}

func (z *Zerodha) LTP(ctx context.Context, keys []string) (map[string]float64, error) {
	out := make(map[string]float64, len(keys))
	missing := keys
	if z.tickerMgr != nil && z.isTickerInit.Load() {
		missing = make([]string, 0, len(keys))
		for _, k := range keys {
			if q, ok := z.tickerMgr.Quote(k); ok && q.LastPrice > 0 {
				out[k] = q.LastPrice
				continue
			}
			missing = append(missing, k)
		}
	}

	for _, chunk := range chunkKeys(missing, maxQuoteKeys) {
		if err := z.ready(ctx, z.quoteLimiter); err != nil {
			return out, err
		}
		ltps, err := z.api.LTP(chunk...)
		if err != nil {
			return out, fmt.Errorf("ltp: %w", err)
		}
		for k, p := range ltps {
			out[k] = p
		}
	}
	return out, nil
}

func (z *Zerodha) Positions(ctx context.Context) (types.Positions, error) {
	if err := z.ready(ctx, z.apiLimiter); err != nil {
		return types.Positions{}, err
	}
	pos, err := z.api.Positions()
	if err != nil {
		return types.Positions{}, fmt.Errorf("positions: %w", err)
	}
	return pos, nil
}

func (z *Zerodha) Margins(ctx context.Context) (types.Margins, error) {
	if err := z.ready(ctx, z.apiLimiter); err != nil {
		return types.Margins{}, err
	}
	m, err := z.api.Margins()
	if err != nil {
		return types.Margins{}, fmt.Errorf("margins: %w", err)
	}
	return m, nil
}

// Orders returns today's order book. In DRY_RUN the simulated orders are
// appended so order caps still see them.
func (z *Zerodha) Orders(ctx context.Context) ([]types.Order, error) {
	if err := z.ready(ctx, z.apiLimiter); err != nil {
		return nil, err
	}
	orders, err := z.api.Orders()
	if err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}
	if z.dryRun() {
		z.simMu.Lock()
		orders = append(orders, z.simOrd...)
		z.simMu.Unlock()
	}
	return orders, nil
}

func (z *Zerodha) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	if req.Qty <= 0 {
		return types.OrderResp{}, fmt.Errorf("invalid quantity %d for %s", req.Qty, req.Key())
	}
	if req.OrderType == types.OrderTypeLimit && req.Price <= 0 {
		return types.OrderResp{}, fmt.Errorf("limit order for %s has no price", req.Key())
	}

	if z.dryRun() {
		resp := types.OrderResp{
			OrderID: fmt.Sprintf("SIM-%d", z.simSeq.Add(1)),
			Status:  "SIMULATED",
			Message: "dry-run",
		}
		z.recordSimulated(req, resp)
		return resp, nil
	}

	if err := z.ready(ctx, z.apiLimiter); err != nil {
		return types.OrderResp{}, err
	}

	id, err := z.api.PlaceOrder(types.VarietyRegular, req)
	if err != nil {
		return types.OrderResp{}, err
	}
	return types.OrderResp{OrderID: id, Status: "PLACED", Message: "ok"}, nil
}

func (z *Zerodha) recordSimulated(req types.OrderReq, resp types.OrderResp) {
	z.simMu.Lock()
	defer z.simMu.Unlock()

	z.simOrd = append(z.simOrd, types.Order{
		OrderID:   resp.OrderID,
		Status:    resp.Status,
		Exchange:  req.Exchange,
		Symbol:    req.Symbol,
		Side:      req.Side,
		OrderType: req.OrderType,
		Quantity:  req.Qty,
		Price:     req.Price,
		Tag:       req.Tag,
		PlacedAt:  time.Now(),
	})
}

// Start connects the ticker and subscribes instruments when market data
// streams over the websocket; with REST market data it is a no-op.
func (z *Zerodha) Start(ctx context.Context, instruments []types.Instrument) error {
	if z.tickerMgr == nil {
		return nil
	}

	if !z.isTickerInit.Load() {
		if err := z.tickerMgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start ticker manager: %w", err)
		}
		z.isTickerInit.Store(true)
	}

	if err := z.tickerMgr.Subscribe(ctx, instruments); err != nil {
		logger.Warn(ctx, "Ticker subscription failed, quotes will come from REST", "error", err)
	}
	return nil
}

func (z *Zerodha) Stop(ctx context.Context) {
	if z.tickerMgr != nil && z.isTickerInit.CompareAndSwap(true, false) {
		z.tickerMgr.Stop(ctx)
	}
}

func chunkKeys(keys []string, size int) [][]string {
	var out [][]string
	for len(keys) > 0 {
		n := size
		if len(keys) < n {
			n = len(keys)
		}
		out = append(out, keys[:n])
		keys = keys[n:]
	}
	return out
}
