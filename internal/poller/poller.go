// Package poller keeps a live picture of quotes, positions, P&L and account
// state by polling the broker on independent intervals.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fno-desk/internal/interfaces"
	"fno-desk/internal/logger"
	"fno-desk/internal/types"
)

// Kind names one of the polling loops.
type Kind string

const (
	KindMarketData Kind = "market_data"
	KindPositions  Kind = "positions"
	KindPnL        Kind = "pnl"
	KindAccount    Kind = "account"
)

// Snapshot is the latest state seen by every loop.
type Snapshot struct {
	Quotes      map[string]types.Quote
	Positions   types.Positions
	MTM         float64
	Margins     types.Margins
	OrdersToday int
	UpdatedAt   map[Kind]time.Time
	Errors      map[Kind]string
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Quotes = make(map[string]types.Quote, len(s.Quotes))
	for k, v := range s.Quotes {
		out.Quotes[k] = v
	}
	out.Positions.Net = append([]types.Position(nil), s.Positions.Net...)
	out.Positions.Day = append([]types.Position(nil), s.Positions.Day...)
	out.UpdatedAt = make(map[Kind]time.Time, len(s.UpdatedAt))
	for k, v := range s.UpdatedAt {
		out.UpdatedAt[k] = v
	}
	out.Errors = make(map[Kind]string, len(s.Errors))
	for k, v := range s.Errors {
		out.Errors[k] = v
	}
	return out
}

// Update is delivered to listeners after every poll.
type Update struct {
	Kind     Kind
	Snapshot Snapshot
	Err      error
}

// Store holds the most recent snapshot. The last write wins.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewStore() *Store {
	return &Store{snap: Snapshot{
		Quotes:    map[string]types.Quote{},
		UpdatedAt: map[Kind]time.Time{},
		Errors:    map[Kind]string{},
	}}
}

// Snapshot returns a copy that is safe to keep.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.clone()
}

func (s *Store) update(kind Kind, err error, fn func(*Snapshot)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.snap.Errors[kind] = err.Error()
		return s.snap.clone()
	}
	delete(s.snap.Errors, kind)
	fn(&s.snap)
	s.snap.UpdatedAt[kind] = time.Now()
	return s.snap.clone()
}

// patch applies fn even when err is set, for loops that refresh several
// fields independently. err is still recorded against kind.
func (s *Store) patch(kind Kind, err error, fn func(*Snapshot)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
	s.snap.UpdatedAt[kind] = time.Now()
	if err != nil {
		s.snap.Errors[kind] = err.Error()
	} else {
		delete(s.snap.Errors, kind)
	}
	return s.snap.clone()
}

// Intervals are the poll periods of each loop.
type Intervals struct {
	MarketData time.Duration
	Positions  time.Duration
	PnL        time.Duration
	Account    time.Duration
}

// Poller runs the four loops against a broker.
type Poller struct {
	brk   interfaces.Broker
	keys  []string
	iv    Intervals
	store *Store

	mu        sync.Mutex
	listeners []func(Update)
}

// New builds a poller that quotes keys (EXCHANGE:SYMBOL) on every market
// data tick.
func New(brk interfaces.Broker, keys []string, iv Intervals) *Poller {
	return &Poller{
		brk:   brk,
		keys:  keys,
		iv:    iv,
		store: NewStore(),
	}
}

func (p *Poller) Store() *Store { return p.store }

// OnUpdate registers fn to receive every update. fn runs on the polling
// goroutine and must not block.
func (p *Poller) OnUpdate(fn func(Update)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

func (p *Poller) publish(u Update) {
	p.mu.Lock()
	ls := append(([]func(Update))(nil), p.listeners...)
	p.mu.Unlock()
	for _, fn := range ls {
		fn(u)
	}
}

// Run polls until ctx is cancelled. Each loop polls once immediately. A
// failed poll is recorded on the snapshot and does not stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	loops := []struct {
		kind  Kind
		every time.Duration
		poll  func(context.Context) error
	}{
		{KindMarketData, p.iv.MarketData, p.PollMarketData},
		{KindPositions, p.iv.Positions, p.PollPositions},
		{KindPnL, p.iv.PnL, p.PollPnL},
		{KindAccount, p.iv.Account, p.PollAccount},
	}

	for _, l := range loops {
		l := l
		g.Go(func() error {
			return loop(ctx, l.kind, l.every, l.poll)
		})
	}

	logger.Info(ctx, "Poller started",
		"keys", len(p.keys),
		"market_data", p.iv.MarketData,
		"positions", p.iv.Positions,
		"pnl", p.iv.PnL,
		"account", p.iv.Account,
	)

	return g.Wait()
}

func loop(ctx context.Context, kind Kind, every time.Duration, poll func(context.Context) error) error {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if err := poll(ctx); err != nil && ctx.Err() == nil {
			logger.Warn(ctx, "Poll failed", "kind", kind, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PollMarketData refreshes quotes for the watch keys.
func (p *Poller) PollMarketData(ctx context.Context) error {
	if len(p.keys) == 0 {
		return nil
	}
	qs, err := p.brk.Quote(ctx, p.keys)
	snap := p.store.update(KindMarketData, err, func(s *Snapshot) {
		for k, q := range qs {
			s.Quotes[k] = q
		}
	})
	p.publish(Update{Kind: KindMarketData, Snapshot: snap, Err: err})
	return err
}

// PollPositions replaces the position book.
func (p *Poller) PollPositions(ctx context.Context) error {
	pos, err := p.brk.Positions(ctx)
	snap := p.store.update(KindPositions, err, func(s *Snapshot) {
		s.Positions = types.Positions{
			Net: append([]types.Position(nil), pos.Net...),
			Day: append([]types.Position(nil), pos.Day...),
		}
		s.MTM = pos.TotalPnL()
	})
	p.publish(Update{Kind: KindPositions, Snapshot: snap, Err: err})
	return err
}

// PollPnL marks the open positions to fresh LTPs and recomputes MTM.
func (p *Poller) PollPnL(ctx context.Context) error {
	current := p.store.Snapshot().Positions
	var keys []string
	for _, pos := range current.Open() {
		keys = append(keys, pos.Key())
	}
	if len(keys) == 0 {
		return nil
	}

	ltps, err := p.brk.LTP(ctx, keys)
	snap := p.store.update(KindPnL, err, func(s *Snapshot) {
		total := 0.0
		for i, pos := range s.Positions.Net {
			if ltp, ok := ltps[pos.Key()]; ok && ltp > 0 {
				pos.LastPrice = ltp
				pos.PnL = pos.MarkToMarket(ltp)
				s.Positions.Net[i] = pos
			}
			total += s.Positions.Net[i].PnL
		}
		s.MTM = total
	})
	p.publish(Update{Kind: KindPnL, Snapshot: snap, Err: err})
	return err
}

// PollAccount refreshes the day's order count and the margins. Each field
// is kept from its own call, so one failing endpoint does not hide the other.
func (p *Poller) PollAccount(ctx context.Context) error {
	orders, oerr := p.brk.Orders(ctx)
	margins, merr := p.brk.Margins(ctx)
	err := errors.Join(oerr, merr)

	var snap Snapshot
	if oerr != nil && merr != nil {
		snap = p.store.update(KindAccount, err, nil)
	} else {
		snap = p.store.patch(KindAccount, err, func(s *Snapshot) {
			if oerr == nil {
				s.OrdersToday = len(orders)
			}
			if merr == nil {
				s.Margins = margins
			}
		})
	}
	p.publish(Update{Kind: KindAccount, Snapshot: snap, Err: err})
	return err
}
