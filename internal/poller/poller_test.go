package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fno-desk/internal/types"
)

type fakeBroker struct {
	mu        sync.Mutex
	ltp       map[string]float64
	positions types.Positions
	quoteErr  error
	ordersErr error
	marginErr error
	calls     map[string]int
}

func (f *fakeBroker) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

func (f *fakeBroker) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBroker) Instruments(ctx context.Context, exchange string) ([]types.Instrument, error) {
	return nil, nil
}

func (f *fakeBroker) Quote(ctx context.Context, keys []string) (map[string]types.Quote, error) {
	f.hit("quote")
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	out := map[string]types.Quote{}
	for _, k := range keys {
		out[k] = types.Quote{Key: k, LastPrice: 100}
	}
	return out, nil
}

func (f *fakeBroker) LTP(ctx context.Context, keys []string) (map[string]float64, error) {
	f.hit("ltp")
	return f.ltp, nil
}

func (f *fakeBroker) Positions(ctx context.Context) (types.Positions, error) {
	f.hit("positions")
	return f.positions, nil
}

func (f *fakeBroker) Margins(ctx context.Context) (types.Margins, error) {
	f.hit("margins")
	if f.marginErr != nil {
		return types.Margins{}, f.marginErr
	}
	return types.Margins{Commodity: types.SegmentMargin{Available: 50_000, Used: 10_000}}, nil
}

func (f *fakeBroker) Orders(ctx context.Context) ([]types.Order, error) {
	f.hit("orders")
	if f.ordersErr != nil {
		return nil, f.ordersErr
	}
	return make([]types.Order, 3), nil
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, req types.OrderReq) (types.OrderResp, error) {
	return types.OrderResp{}, nil
}

func (f *fakeBroker) Start(ctx context.Context, instruments []types.Instrument) error { return nil }

func (f *fakeBroker) Stop(ctx context.Context) {}

func TestPollPnLRecomputesMTM(t *testing.T) {
	brk := &fakeBroker{
		positions: types.Positions{Net: []types.Position{
			{Exchange: "MCX", Symbol: "CRUDEOIL26NOVFUT", Quantity: 100, BuyValue: 640_000, Multiplier: 1, PnL: 1000},
			{Exchange: "MCX", Symbol: "GOLDM26NOVFUT", Quantity: 0, BuyValue: 76_000, SellValue: 76_500, PnL: 500},
		}},
		ltp: map[string]float64{"MCX:CRUDEOIL26NOVFUT": 6450},
	}
	p := New(brk, nil, Intervals{})
	ctx := context.Background()

	require.NoError(t, p.PollPositions(ctx))
	assert.Equal(t, 1500.0, p.Store().Snapshot().MTM)

	require.NoError(t, p.PollPnL(ctx))
	snap := p.Store().Snapshot()
	// (0 - 640000) + 100 * 6450 = 5000, plus the closed GOLDM 500
	assert.Equal(t, 5000.0, snap.Positions.Net[0].PnL)
	assert.Equal(t, 6450.0, snap.Positions.Net[0].LastPrice)
	assert.Equal(t, 5500.0, snap.MTM)

	assert.Equal(t, 1000.0, brk.positions.Net[0].PnL, "broker data is not mutated")
}

func TestPollPnLWithoutOpenPositions(t *testing.T) {
	brk := &fakeBroker{}
	p := New(brk, nil, Intervals{})
	require.NoError(t, p.PollPnL(context.Background()))
	assert.Equal(t, 0, brk.count("ltp"))
}

func TestPollAccount(t *testing.T) {
	p := New(&fakeBroker{}, nil, Intervals{})
	require.NoError(t, p.PollAccount(context.Background()))

	snap := p.Store().Snapshot()
	assert.Equal(t, 3, snap.OrdersToday)
	assert.Equal(t, 50_000.0, snap.Margins.Commodity.Available)
	assert.False(t, snap.UpdatedAt[KindAccount].IsZero())
}

func TestPollAccountKeepsPartialResults(t *testing.T) {
	brk := &fakeBroker{ordersErr: errors.New("orders: 502")}
	p := New(brk, nil, Intervals{})

	err := p.PollAccount(context.Background())
	require.Error(t, err)

	snap := p.Store().Snapshot()
	assert.Equal(t, 50_000.0, snap.Margins.Commodity.Available, "margins still refreshed")
	assert.Zero(t, snap.OrdersToday)
	assert.Contains(t, snap.Errors[KindAccount], "502")

	brk.ordersErr = nil
	brk.marginErr = errors.New("margins: timeout")
	require.Error(t, p.PollAccount(context.Background()))
	snap = p.Store().Snapshot()
	assert.Equal(t, 3, snap.OrdersToday)
	assert.Equal(t, 50_000.0, snap.Margins.Commodity.Available, "last good margins kept")
	assert.Contains(t, snap.Errors[KindAccount], "timeout")

	brk.marginErr = nil
	require.NoError(t, p.PollAccount(context.Background()))
	assert.Empty(t, p.Store().Snapshot().Errors)
}

func TestFailedPollKeepsLastSnapshot(t *testing.T) {
	brk := &fakeBroker{}
	p := New(brk, []string{"MCX:CRUDEOIL26NOVFUT"}, Intervals{})
	ctx := context.Background()

	require.NoError(t, p.PollMarketData(ctx))
	brk.quoteErr = errors.New("429 too many requests")
	assert.Error(t, p.PollMarketData(ctx))

	snap := p.Store().Snapshot()
	assert.Equal(t, 100.0, snap.Quotes["MCX:CRUDEOIL26NOVFUT"].LastPrice)
	assert.Contains(t, snap.Errors[KindMarketData], "429")

	brk.quoteErr = nil
	require.NoError(t, p.PollMarketData(ctx))
	assert.Empty(t, p.Store().Snapshot().Errors)
}

func TestSnapshotIsACopy(t *testing.T) {
	p := New(&fakeBroker{}, []string{"MCX:X"}, Intervals{})
	require.NoError(t, p.PollMarketData(context.Background()))

	snap := p.Store().Snapshot()
	snap.Quotes["MCX:X"] = types.Quote{LastPrice: -1}
	assert.Equal(t, 100.0, p.Store().Snapshot().Quotes["MCX:X"].LastPrice)
}

func TestRunDeliversUpdatesUntilCancelled(t *testing.T) {
	brk := &fakeBroker{}
	p := New(brk, []string{"MCX:X"}, Intervals{
		MarketData: 10 * time.Millisecond,
		Positions:  10 * time.Millisecond,
		PnL:        10 * time.Millisecond,
		Account:    10 * time.Millisecond,
	})

	var seen sync.Map
	var updates atomic.Int64
	p.OnUpdate(func(u Update) {
		seen.Store(u.Kind, true)
		updates.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool {
		_, md := seen.Load(KindMarketData)
		_, acc := seen.Load(KindAccount)
		return md && acc && brk.count("quote") >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	assert.Positive(t, updates.Load())
}
