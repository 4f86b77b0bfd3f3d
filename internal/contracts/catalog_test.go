package contracts

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fno-desk/internal/types"
)

type stubBroker struct {
	instruments []types.Instrument
	calls       int
	err         error
}

func (s *stubBroker) Instruments(ctx context.Context, exchange string) ([]types.Instrument, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.instruments, nil
}

func (s *stubBroker) Quote(ctx context.Context, keys []string) (map[string]types.Quote, error) {
	return nil, nil
}
func (s *stubBroker) LTP(ctx context.Context, keys []string) (map[string]float64, error) {
	return nil, nil
}
func (s *stubBroker) Positions(ctx context.Context) (types.Positions, error) {
	return types.Positions{}, nil
}
func (s *stubBroker) Margins(ctx context.Context) (types.Margins, error) {
	return types.Margins{}, nil
}
func (s *stubBroker) Orders(ctx context.Context) ([]types.Order, error) { return nil, nil }
func (s *stubBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	return types.OrderResp{}, nil
}
func (s *stubBroker) Start(ctx context.Context, instruments []types.Instrument) error {
	return nil
}
func (s *stubBroker) Stop(ctx context.Context) {}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func option(symbol string, strike float64, typ, expiry string) types.Instrument {
	return types.Instrument{
		Exchange: types.ExchangeMCX,
		Symbol:   symbol,
		Name:     "CRUDEOIL",
		Expiry:   day(expiry),
		Strike:   strike,
		Type:     typ,
		LotSize:  100,
		TickSize: 0.1,
	}
}

func sampleInstruments() []types.Instrument {
	ins := []types.Instrument{
		{Token: 1, Exchange: "MCX", Symbol: "CRUDEOIL26OCTFUT", Name: "CRUDEOIL", Expiry: day("2026-10-16"), Type: "FUT", LotSize: 100, TickSize: 1},
		{Token: 2, Exchange: "MCX", Symbol: "CRUDEOIL26NOVFUT", Name: "CRUDEOIL", Expiry: day("2026-11-19"), Type: "FUT", LotSize: 100, TickSize: 1},
		{Token: 3, Exchange: "MCX", Symbol: "CRUDEOIL26DECFUT", Name: "CRUDEOIL", Expiry: day("2026-12-17"), Type: "FUT", LotSize: 100, TickSize: 1},
		{Token: 4, Exchange: "MCX", Symbol: "GOLDM26NOVFUT", Name: "GOLDM", Expiry: day("2026-11-05"), Type: "FUT", LotSize: 10, TickSize: 1},
	}
	for _, k := range []float64{6300, 6400, 6500, 6600, 6700} {
		ins = append(ins,
			option("CRUDEOIL26NOV"+ftoa(k)+"CE", k, "CE", "2026-11-17"),
			option("CRUDEOIL26NOV"+ftoa(k)+"PE", k, "PE", "2026-11-17"),
		)
	}
	ins = append(ins, option("CRUDEOIL26DEC6500CE", 6500, "CE", "2026-12-15"))
	return ins
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', 0, 64)
}

type CatalogSuite struct {
	suite.Suite
	broker  *stubBroker
	catalog *Catalog
}

func (s *CatalogSuite) SetupTest() {
	s.broker = &stubBroker{instruments: sampleInstruments()}
	s.catalog = NewCatalog(s.broker, s.T().TempDir(), 12*time.Hour)
	s.catalog.now = func() time.Time { return time.Date(2026, 10, 18, 10, 0, 0, 0, ist) }

	n, err := s.catalog.Load(context.Background(), types.ExchangeMCX)
	s.Require().NoError(err)
	s.Require().Equal(len(sampleInstruments()), n)
}

func (s *CatalogSuite) TestLookupAndFind() {
	in, ok := s.catalog.Lookup("MCX:CRUDEOIL26NOVFUT")
	s.True(ok)
	s.Equal(100, in.LotSize)

	_, ok = s.catalog.Find("MCX", "crudeoil26novfut")
	s.True(ok)

	_, ok = s.catalog.Lookup("NFO:CRUDEOIL26NOVFUT")
	s.False(ok)
}

func (s *CatalogSuite) TestLoadUsesDiskCache() {
	fresh := NewCatalog(s.broker, s.catalog.cache.dir, 12*time.Hour)
	fresh.now = s.catalog.now

	_, err := fresh.Load(context.Background(), types.ExchangeMCX)
	s.Require().NoError(err)
	s.Equal(1, s.broker.calls)

	in, ok := fresh.Lookup("MCX:CRUDEOIL26NOV6500CE")
	s.True(ok)
	s.Equal("2026-11-17", dateOf(in.Expiry))
}

func (s *CatalogSuite) TestLoadErrorIsWrapped() {
	broker := &stubBroker{err: errors.New("token expired")}
	c := NewCatalog(broker, "", 0)
	_, err := c.Load(context.Background(), types.ExchangeNFO)
	s.ErrorContains(err, "token expired")
}

func (s *CatalogSuite) TestExpiriesSkipPastDates() {
	exp := s.catalog.Expiries("MCX", "CRUDEOIL")
	got := make([]string, 0, len(exp))
	for _, e := range exp {
		got = append(got, dateOf(e))
	}
	s.Equal([]string{"2026-11-17", "2026-11-19", "2026-12-15", "2026-12-17"}, got)
}

func (s *CatalogSuite) TestNearestFuture() {
	fut, ok := s.catalog.NearestFuture("MCX", "CRUDEOIL")
	s.Require().True(ok)
	s.Equal("CRUDEOIL26NOVFUT", fut.Symbol)
}

func (s *CatalogSuite) TestFilterByTypeAndStrike() {
	got := s.catalog.Filter(Filter{
		Exchange:   "MCX",
		Underlying: "crudeoil",
		Types:      []string{"PE"},
		MinStrike:  6400,
		MaxStrike:  6600,
	})
	s.Require().Len(got, 3)
	s.Equal(6400.0, got[0].Strike)
	s.Equal(6600.0, got[2].Strike)
}

func (s *CatalogSuite) TestChainAroundATM() {
	rows := s.catalog.Chain("MCX", "CRUDEOIL", time.Time{}, 6520, 1)
	s.Require().Len(rows, 3)
	s.Equal(6400.0, rows[0].Strike)
	s.Equal(6500.0, rows[1].Strike)
	s.Equal(6600.0, rows[2].Strike)
	s.Require().NotNil(rows[1].CE)
	s.Require().NotNil(rows[1].PE)
	s.Equal("CRUDEOIL26NOV6500CE", rows[1].CE.Symbol)
	s.Equal("CRUDEOIL26NOV6500PE", rows[1].PE.Symbol)
}

func (s *CatalogSuite) TestChainExplicitExpiry() {
	rows := s.catalog.Chain("MCX", "CRUDEOIL", day("2026-12-15"), 0, 0)
	s.Require().Len(rows, 1)
	s.NotNil(rows[0].CE)
	s.Nil(rows[0].PE)
}

func (s *CatalogSuite) TestChainClampsAtEdges() {
	rows := s.catalog.Chain("MCX", "CRUDEOIL", time.Time{}, 6300, 2)
	s.Require().Len(rows, 3)
	s.Equal(6300.0, rows[0].Strike)
}

func TestCatalogSuite(t *testing.T) {
	suite.Run(t, new(CatalogSuite))
}
