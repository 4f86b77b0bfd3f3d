package desk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"fno-desk/internal/contracts"
	"fno-desk/internal/pricing"
	"fno-desk/internal/tradelog"
	"fno-desk/internal/types"
)

type fakeBroker struct {
	mu sync.Mutex

	quotes     map[string]types.Quote
	quoteErr   error
	positions  types.Positions
	posErr     error
	margins    types.Margins
	marginErr  error
	orders     []types.Order
	ordersErr  error
	rejectType types.OrderType // PlaceOrder fails for this order type
	rejectAll  bool
	simulate   bool

	placed []types.OrderReq
}

func (f *fakeBroker) Instruments(ctx context.Context, exchange string) ([]types.Instrument, error) {
	return nil, nil
}

func (f *fakeBroker) Quote(ctx context.Context, keys []string) (map[string]types.Quote, error) {
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	out := map[string]types.Quote{}
	for _, k := range keys {
		if q, ok := f.quotes[k]; ok {
			out[k] = q
		}
	}
	return out, nil
}

func (f *fakeBroker) LTP(ctx context.Context, keys []string) (map[string]float64, error) {
	return nil, nil
}

func (f *fakeBroker) Positions(ctx context.Context) (types.Positions, error) {
	return f.positions, f.posErr
}

func (f *fakeBroker) Margins(ctx context.Context) (types.Margins, error) {
	return f.margins, f.marginErr
}

func (f *fakeBroker) Orders(ctx context.Context) ([]types.Order, error) {
	return f.orders, f.ordersErr
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	if f.rejectAll || (f.rejectType != "" && req.OrderType == f.rejectType) {
		return types.OrderResp{}, errors.New("RMS: rejected")
	}
	if f.simulate {
		return types.OrderResp{OrderID: "SIM-1", Status: "SIMULATED"}, nil
	}
	return types.OrderResp{OrderID: "OID-" + req.Symbol, Status: "OK"}, nil
}

func (f *fakeBroker) Start(ctx context.Context, instruments []types.Instrument) error { return nil }
func (f *fakeBroker) Stop(ctx context.Context) {}

var (
	crudeFut = types.Instrument{Exchange: "MCX", Symbol: "CRUDEOIL26NOVFUT", Name: "CRUDEOIL", Type: "FUT", LotSize: 100, TickSize: 1}
	crudeCE  = types.Instrument{Exchange: "MCX", Symbol: "CRUDEOIL26NOV6500CE", Name: "CRUDEOIL", Type: "CE", Strike: 6500, LotSize: 100, TickSize: 0.1}
)

func baseConfig() Config {
	return Config{
		Exchange: "MCX",
		Product:  "NRML",
		Pricing: pricing.Config{
			OrderType:        types.OrderTypeLimit,
			PriceSource:      types.PriceSourceLTP,
			TolerancePct:     1,
			MaxAdjustmentPct: 2,
			RoundToTick:      true,
		},
		FallbackToMarket: true,
		Protection: Protection{
			MaxDailyLoss:      5000,
			MaxOrdersPerDay:   10,
			MaxLotsPerOrder:   2,
			MaxMarginUsagePct: 80,
			FuturesMarginPct:  10,
		},
	}
}

type DeskSuite struct {
	suite.Suite
	brk *fakeBroker
	sel *contracts.Selection
	ctx context.Context
}

func (s *DeskSuite) SetupTest() {
	s.T().Setenv("TRADER_LOG_DIR", s.T().TempDir())
	s.ctx = context.Background()
	s.brk = &fakeBroker{
		quotes: map[string]types.Quote{
			crudeFut.Key(): {Key: crudeFut.Key(), LastPrice: 6480, Bid: 6479, Ask: 6481},
			crudeCE.Key():  {Key: crudeCE.Key(), LastPrice: 120.4},
		},
		margins: types.Margins{Commodity: types.SegmentMargin{Enabled: true, Available: 1_000_000, Used: 0}},
	}
	s.sel = contracts.NewSelection()
}

func (s *DeskSuite) desk(cfg Config) *desk {
	cat := contracts.NewCatalog(s.brk, "", 0)
	cat.Add(crudeFut, crudeCE)
	return newDesk(cfg, s.brk, cat)
}

func (s *DeskSuite) TestPlaceBatchLimitOrders() {
	s.Require().NoError(s.sel.Add(crudeFut, 1))
	s.Require().NoError(s.sel.Add(crudeCE, 2))

	res, err := s.desk(baseConfig()).PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.Require().NoError(err)
	s.Require().Len(res.Legs, 2)
	s.Equal(2, res.Placed())
	s.NotEmpty(res.BatchID)

	s.Require().Len(s.brk.placed, 2)
	fut := s.brk.placed[0]
	s.Equal(types.OrderTypeLimit, fut.OrderType)
	s.Equal(100, fut.Qty)
	s.Equal(6415.0, fut.Price) // 6480 * 0.99 rounded to tick 1
	s.Equal("NRML", fut.Product)
	s.Contains(fut.Tag, "desk-")
	s.LessOrEqual(len(fut.Tag), 20)

	ce := s.brk.placed[1]
	s.Equal(200, ce.Qty)
	s.InDelta(119.2, ce.Price, 1e-9)

	s.Equal(0, s.sel.Len(), "selection is cleared after submission")

	entries, err := tradelog.ReadDay(time.Now())
	s.Require().NoError(err)
	s.Len(entries, 2)
	s.Equal(res.BatchID, entries[0].BatchID)
}

func (s *DeskSuite) TestSellPricesAboveMarket() {
	s.Require().NoError(s.sel.Add(crudeFut, 1))
	_, err := s.desk(baseConfig()).PlaceBatch(s.ctx, types.SideSell, s.sel)
	s.Require().NoError(err)
	s.Equal(6545.0, s.brk.placed[0].Price)
}

func (s *DeskSuite) TestEmptySelection() {
	_, err := s.desk(baseConfig()).PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.ErrorIs(err, ErrNoSelection)
}

func (s *DeskSuite) TestLossLimitBlocksBatch() {
	s.brk.positions = types.Positions{Net: []types.Position{{Exchange: "MCX", Symbol: "GOLDM26NOVFUT", Quantity: 10, PnL: -5000}}}
	s.Require().NoError(s.sel.Add(crudeFut, 1))

	res, err := s.desk(baseConfig()).PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.ErrorIs(err, ErrLossLimit)
	s.Require().NotNil(res)
	s.Equal(types.LegSkipped, res.Legs[0].Status)
	s.Empty(s.brk.placed)
	s.Equal(1, s.sel.Len(), "selection kept so it can be adjusted")
}

func (s *DeskSuite) TestLossLimitFailsClosed() {
	s.brk.posErr = errors.New("timeout")
	s.Require().NoError(s.sel.Add(crudeFut, 1))

	_, err := s.desk(baseConfig()).PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.ErrorIs(err, ErrLossLimit)
	s.Empty(s.brk.placed)
}

func (s *DeskSuite) TestOrderCapCountsBatchLegs() {
	s.brk.orders = make([]types.Order, 9)
	s.Require().NoError(s.sel.Add(crudeFut, 1))
	s.Require().NoError(s.sel.Add(crudeCE, 1))

	_, err := s.desk(baseConfig()).PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.ErrorIs(err, ErrOrderCap)
	s.Empty(s.brk.placed)
}

func (s *DeskSuite) TestOrderCapUsesLocalCountWhenBookFails() {
	cfg := baseConfig()
	cfg.Protection.MaxOrdersPerDay = 1
	d := s.desk(cfg)

	s.Require().NoError(s.sel.Add(crudeFut, 1))
	_, err := d.PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.Require().NoError(err)

	s.brk.ordersErr = errors.New("order book down")
	s.Require().NoError(s.sel.Add(crudeFut, 1))
	_, err = d.PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.ErrorIs(err, ErrOrderCap)
}

func (s *DeskSuite) TestMarginUsageBlocksBatch() {
	s.brk.margins = types.Margins{Commodity: types.SegmentMargin{Available: 60_000, Used: 40_000}}
	// 2 lots of futures: 6480 * 200 * 10% = 129600 required
	s.Require().NoError(s.sel.Add(crudeFut, 2))

	res, err := s.desk(baseConfig()).PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.ErrorIs(err, ErrMarginUsage)
	s.Equal(types.LegSkipped, res.Legs[0].Status)
	s.Empty(s.brk.placed)
}

func (s *DeskSuite) TestOptionBuyUsesPremiumForMargin() {
	// premium 120.4 * 100 = 12040; (0 + 12040) / 20000 = 60.2%
	s.brk.margins = types.Margins{Commodity: types.SegmentMargin{Available: 20_000}}
	s.Require().NoError(s.sel.Add(crudeCE, 1))

	_, err := s.desk(baseConfig()).PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.NoError(err)

	// selling the same option is margined on notional * 10%
	s.brk.margins = types.Margins{Commodity: types.SegmentMargin{Available: 1_000}}
	s.Require().NoError(s.sel.Add(crudeCE, 1))
	_, err = s.desk(baseConfig()).PlaceBatch(s.ctx, types.SideSell, s.sel)
	s.ErrorIs(err, ErrMarginUsage)
}

func (s *DeskSuite) TestMarginFailsClosed() {
	s.brk.marginErr = errors.New("503")
	s.Require().NoError(s.sel.Add(crudeFut, 1))

	_, err := s.desk(baseConfig()).PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.ErrorIs(err, ErrMarginUsage)
}

func (s *DeskSuite) TestMarginBlocksUnpricedLegs() {
	s.brk.quotes = map[string]types.Quote{}
	s.brk.margins = types.Margins{Commodity: types.SegmentMargin{Enabled: true, Available: 100}}
	s.Require().NoError(s.sel.Add(crudeFut, 2))

	res, err := s.desk(baseConfig()).PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.ErrorIs(err, ErrMarginUsage)
	s.Contains(err.Error(), "no price for "+crudeFut.Key())
	s.Require().Len(res.Legs, 1)
	s.Equal(types.LegSkipped, res.Legs[0].Status)
	s.Empty(s.brk.placed, "no market fallback without a margin estimate")
	s.Equal(1, s.sel.Len(), "selection kept for retry")

	day := time.Now().In(tradelog.IST).Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(tradelog.Dir(), "blocked", day+".txt"))
	s.Require().NoError(err)
	s.Contains(string(data), "MARGIN_USAGE")
}

func (s *DeskSuite) TestLotCapSkipsOnlyThatLeg() {
	s.Require().NoError(s.sel.Add(crudeFut, 3))
	s.Require().NoError(s.sel.Add(crudeCE, 1))

	res, err := s.desk(baseConfig()).PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.Require().NoError(err)
	s.Require().Len(res.Legs, 2)
	s.Equal(types.LegSkipped, res.Legs[0].Status)
	s.Contains(res.Legs[0].Reason, "lots")
	s.Equal(types.LegPlaced, res.Legs[1].Status)
	s.Len(s.brk.placed, 1)
}

func (s *DeskSuite) TestLimitRejectionFallsBackToMarket() {
	s.brk.rejectType = types.OrderTypeLimit
	s.Require().NoError(s.sel.Add(crudeFut, 1))

	res, err := s.desk(baseConfig()).PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.Require().NoError(err)
	s.Equal(types.LegFallback, res.Legs[0].Status)
	s.Equal(types.OrderTypeMarket, res.Legs[0].OrderType)
	s.Require().Len(s.brk.placed, 2)
	s.Equal(types.OrderTypeMarket, s.brk.placed[1].OrderType)
	s.Zero(s.brk.placed[1].Price)
}

func (s *DeskSuite) TestNoFallbackWhenDisabled() {
	cfg := baseConfig()
	cfg.FallbackToMarket = false
	s.brk.rejectType = types.OrderTypeLimit
	s.Require().NoError(s.sel.Add(crudeFut, 1))

	res, err := s.desk(cfg).PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.Require().NoError(err)
	s.Equal(types.LegFailed, res.Legs[0].Status)
	s.Len(s.brk.placed, 1)
}

func (s *DeskSuite) TestMissingPrice() {
	s.brk.quotes = map[string]types.Quote{}
	s.brk.margins = types.Margins{}
	cfg := baseConfig()
	cfg.Protection.MaxMarginUsagePct = 0
	s.Require().NoError(s.sel.Add(crudeFut, 1))

	res, err := s.desk(cfg).PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.Require().NoError(err)
	s.Equal(types.LegFallback, res.Legs[0].Status)
	s.Require().Len(s.brk.placed, 1)
	s.Equal(types.OrderTypeMarket, s.brk.placed[0].OrderType)

	cfg.FallbackToMarket = false
	s.Require().NoError(s.sel.Add(crudeFut, 1))
	res, err = s.desk(cfg).PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.Require().NoError(err)
	s.Equal(types.LegFailed, res.Legs[0].Status)
	s.Len(s.brk.placed, 1, "nothing sent without a price")
}

func (s *DeskSuite) TestSimulatedStatus() {
	s.brk.simulate = true
	s.Require().NoError(s.sel.Add(crudeFut, 1))

	res, err := s.desk(baseConfig()).PlaceBatch(s.ctx, types.SideBuy, s.sel)
	s.Require().NoError(err)
	s.Equal(types.LegSimulated, res.Legs[0].Status)
	s.True(res.Legs[0].OK())
}

func (s *DeskSuite) TestExitChunksByLotCap() {
	s.brk.positions = types.Positions{Net: []types.Position{
		{Exchange: "MCX", Symbol: crudeFut.Symbol, Product: "NRML", Quantity: 500, LastPrice: 6480},
		{Exchange: "MCX", Symbol: crudeCE.Symbol, Product: "NRML", Quantity: -100, LastPrice: 120.4},
		{Exchange: "MCX", Symbol: "GOLDM26NOVFUT", Quantity: 0},
	}}
	res, err := s.desk(baseConfig()).ExitPositions(s.ctx, types.ExitRequest{All: true})
	s.Require().NoError(err)
	s.Require().Len(res.Legs, 4)

	var futQty []int
	for _, o := range s.brk.placed {
		if o.Symbol == crudeFut.Symbol {
			s.Equal(types.SideSell, o.Side)
			futQty = append(futQty, o.Qty)
		} else {
			s.Equal(types.SideBuy, o.Side)
			s.Equal(100, o.Qty)
			s.InDelta(119.2, o.Price, 1e-9)
		}
	}
	s.Equal([]int{200, 200, 100}, futQty)
}

func (s *DeskSuite) TestExitBypassesLossAndMargin() {
	s.brk.positions = types.Positions{Net: []types.Position{
		{Exchange: "MCX", Symbol: crudeFut.Symbol, Quantity: 100, PnL: -50_000},
	}}
	s.brk.marginErr = errors.New("down")

	res, err := s.desk(baseConfig()).ExitPositions(s.ctx, types.ExitRequest{All: true})
	s.Require().NoError(err)
	s.Equal(1, res.Placed())
}

func (s *DeskSuite) TestExitFilters() {
	s.brk.positions = types.Positions{Net: []types.Position{
		{Exchange: "MCX", Symbol: crudeFut.Symbol, Quantity: 100},
		{Exchange: "MCX", Symbol: crudeCE.Symbol, Quantity: 100},
		{Exchange: "NFO", Symbol: "NIFTY26NOV24000PE", Quantity: 75},
	}}
	cfg := baseConfig()
	cfg.Protection.MaxLotsPerOrder = 0
	d := s.desk(cfg)

	res, err := d.ExitPositions(s.ctx, types.ExitRequest{InstrumentType: "CE"})
	s.Require().NoError(err)
	s.Require().Len(res.Legs, 1)
	s.Equal(crudeCE.Key(), res.Legs[0].Key)

	res, err = d.ExitPositions(s.ctx, types.ExitRequest{Exchange: "nfo"})
	s.Require().NoError(err)
	s.Equal("NFO:NIFTY26NOV24000PE", res.Legs[0].Key)

	res, err = d.ExitPositions(s.ctx, types.ExitRequest{Symbols: []string{"MCX:CRUDEOIL26NOVFUT"}})
	s.Require().NoError(err)
	s.Equal(crudeFut.Key(), res.Legs[0].Key)

	_, err = d.ExitPositions(s.ctx, types.ExitRequest{Symbols: []string{"SILVERM26NOVFUT"}})
	s.ErrorIs(err, ErrNoPositions)
}

func (s *DeskSuite) TestExitTypeFilterUsesCatalog() {
	sensexFut := types.Instrument{Exchange: "BFO", Symbol: "SENSEX26NOV", Name: "SENSEX", Type: "FUT", LotSize: 20, TickSize: 0.05}
	s.brk.positions = types.Positions{Net: []types.Position{
		{Exchange: "BFO", Symbol: sensexFut.Symbol, Quantity: 20, LastPrice: 82000},
		{Exchange: "MCX", Symbol: crudeCE.Symbol, Quantity: 100, LastPrice: 120.4},
	}}
	cat := contracts.NewCatalog(s.brk, "", 0)
	cat.Add(crudeFut, crudeCE, sensexFut)
	d := newDesk(baseConfig(), s.brk, cat)

	res, err := d.ExitPositions(s.ctx, types.ExitRequest{InstrumentType: "fut"})
	s.Require().NoError(err)
	s.Require().Len(res.Legs, 1)
	s.Equal(sensexFut.Key(), res.Legs[0].Key)
	s.Equal(types.SideSell, res.Legs[0].Side)
}

func TestDeskSuite(t *testing.T) {
	suite.Run(t, new(DeskSuite))
}

func TestRuleName(t *testing.T) {
	assert.Equal(t, "LOSS_LIMIT", ruleName(ErrLossLimit))
	assert.Equal(t, "LOT_CAP", ruleName(errors.Join(errors.New("x"), ErrQuantityCap)))
	assert.Equal(t, "OTHER", ruleName(errors.New("boom")))
}

func TestInstrumentTypeOf(t *testing.T) {
	assert.Equal(t, "FUT", instrumentTypeOf("crudeoil26novfut"))
	assert.Equal(t, "CE", instrumentTypeOf("NIFTY26NOV24000CE"))
	assert.Equal(t, "PE", instrumentTypeOf("NIFTY26NOV24000PE"))
	assert.Equal(t, "", instrumentTypeOf("RELIANCE"))
}

func TestPlanWithoutCap(t *testing.T) {
	pm := newPositionManager(&fakeBroker{}, nil)
	orders := pm.plan([]types.Position{{Exchange: "MCX", Symbol: "X", Quantity: -7}}, 0)
	require.Len(t, orders, 1)
	assert.Equal(t, 7, orders[0].qty)
	assert.Equal(t, 1, orders[0].inst.LotSize)
}
