// Package contracts indexes the broker's instrument dump and answers the
// lookups the desk needs: symbol to contract, expiries, and option chains.
package contracts

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"fno-desk/internal/interfaces"
	"fno-desk/internal/logger"
	"fno-desk/internal/types"
)

var ist = time.FixedZone("IST", 19800)

type Catalog struct {
	broker interfaces.Broker
	cache  *fileCache

	mu         sync.RWMutex
	byKey      map[string]types.Instrument
	byExchange map[string][]types.Instrument

	now func() time.Time
}

// NewCatalog builds an empty catalog. An empty cacheDir disables the on-disk
// cache.
func NewCatalog(broker interfaces.Broker, cacheDir string, ttl time.Duration) *Catalog {
	return &Catalog{
		broker:     broker,
		cache:      newFileCache(cacheDir, ttl),
		byKey:      make(map[string]types.Instrument),
		byExchange: make(map[string][]types.Instrument),
		now:        time.Now,
	}
}

// Load fills the catalog with every contract of exchange, from today's cache
// file when present and from the broker otherwise.
func (c *Catalog) Load(ctx context.Context, exchange string) (int, error) {
	key := cacheKey(exchange, c.now())

	if data, ok := c.cache.get(key); ok {
		var ins []types.Instrument
		if err := json.Unmarshal(data, &ins); err == nil && len(ins) > 0 {
			c.index(exchange, ins)
			logger.Debug(ctx, "Instruments loaded from cache", "exchange", exchange, "count", len(ins))
			return len(ins), nil
		}
	}

	ins, err := c.broker.Instruments(ctx, exchange)
	if err != nil {
		return 0, fmt.Errorf("load instruments for %s: %w", exchange, err)
	}
	c.index(exchange, ins)

	if data, err := json.Marshal(ins); err == nil {
		if err := c.cache.set(key, data); err != nil {
			logger.Warn(ctx, "Could not write instrument cache", "exchange", exchange, "error", err)
		}
	}
	if err := c.cache.cleanupExpired(); err != nil {
		logger.Warn(ctx, "Instrument cache cleanup failed", "error", err)
	}
	return len(ins), nil
}

func (c *Catalog) index(exchange string, ins []types.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, old := range c.byExchange[exchange] {
		delete(c.byKey, old.Key())
	}
	c.byExchange[exchange] = ins
	for _, in := range ins {
		c.byKey[in.Key()] = in
	}
}

// Add indexes instruments without touching the broker or the cache.
func (c *Catalog) Add(ins ...types.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, in := range ins {
		if _, exists := c.byKey[in.Key()]; !exists {
			c.byExchange[in.Exchange] = append(c.byExchange[in.Exchange], in)
		}
		c.byKey[in.Key()] = in
	}
}

// Lookup resolves an EXCHANGE:SYMBOL key.
func (c *Catalog) Lookup(key string) (types.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	in, ok := c.byKey[key]
	return in, ok
}

func (c *Catalog) Find(exchange, symbol string) (types.Instrument, bool) {
	return c.Lookup(types.Key(exchange, strings.ToUpper(symbol)))
}

// Filter selects contracts. Zero-valued fields match everything.
type Filter struct {
	Exchange   string
	Underlying string
	Types      []string
	// Expiry restricts to one expiry date. When zero and Nearest is set, only
	// the earliest expiry that has not passed is kept.
	Expiry    time.Time
	Nearest   bool
	MinStrike float64
	MaxStrike float64
}

func (f Filter) matches(in types.Instrument) bool {
	if f.Exchange != "" && in.Exchange != f.Exchange {
		return false
	}
	if f.Underlying != "" && !strings.EqualFold(in.Name, f.Underlying) {
		return false
	}
	if len(f.Types) > 0 && !containsFold(f.Types, in.Type) {
		return false
	}
	if f.MinStrike > 0 && in.Strike < f.MinStrike {
		return false
	}
	if f.MaxStrike > 0 && in.Strike > f.MaxStrike {
		return false
	}
	if !f.Expiry.IsZero() && dateOf(in.Expiry) != dateOf(f.Expiry) {
		return false
	}
	return true
}

// Filter returns matching contracts ordered by expiry, strike and type.
func (c *Catalog) Filter(f Filter) []types.Instrument {
	c.mu.RLock()
	var out []types.Instrument
	for ex, ins := range c.byExchange {
		if f.Exchange != "" && ex != f.Exchange {
			continue
		}
		for _, in := range ins {
			if f.matches(in) {
				out = append(out, in)
			}
		}
	}
	c.mu.RUnlock()

	if f.Expiry.IsZero() && f.Nearest {
		out = keepNearest(out, c.today())
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Expiry.Equal(b.Expiry) {
			return a.Expiry.Before(b.Expiry)
		}
		if a.Strike != b.Strike {
			return a.Strike < b.Strike
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Symbol < b.Symbol
	})
	return out
}

// Expiries lists the upcoming expiry dates of an underlying, earliest first.
func (c *Catalog) Expiries(exchange, underlying string) []time.Time {
	today := c.today()
	seen := map[string]time.Time{}
	for _, in := range c.Filter(Filter{Exchange: exchange, Underlying: underlying}) {
		if in.Expiry.IsZero() || dateOf(in.Expiry) < today {
			continue
		}
		seen[dateOf(in.Expiry)] = in.Expiry
	}
	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// NearestFuture returns the earliest unexpired futures contract, whose price
// serves as spot for the option chain.
func (c *Catalog) NearestFuture(exchange, underlying string) (types.Instrument, bool) {
	futs := c.Filter(Filter{
		Exchange:   exchange,
		Underlying: underlying,
		Types:      []string{types.InstrumentFUT},
		Nearest:    true,
	})
	if len(futs) == 0 {
		return types.Instrument{}, false
	}
	return futs[0], true
}

// ChainRow pairs the call and put at one strike. Either side may be missing.
type ChainRow struct {
	Strike float64
	CE     *types.Instrument
	PE     *types.Instrument
}

// Chain builds the option chain of an underlying for one expiry, keeping
// width strikes either side of the strike closest to spot. A non-positive
// spot or width keeps every strike.
func (c *Catalog) Chain(exchange, underlying string, expiry time.Time, spot float64, width int) []ChainRow {
	opts := c.Filter(Filter{
		Exchange:   exchange,
		Underlying: underlying,
		Types:      []string{types.InstrumentCE, types.InstrumentPE},
		Expiry:     expiry,
		Nearest:    expiry.IsZero(),
	})

	rows := make([]ChainRow, 0, len(opts)/2+1)
	idx := map[float64]int{}
	for i := range opts {
		in := opts[i]
		pos, ok := idx[in.Strike]
		if !ok {
			pos = len(rows)
			idx[in.Strike] = pos
			rows = append(rows, ChainRow{Strike: in.Strike})
		}
		if in.Type == types.InstrumentCE {
			rows[pos].CE = &in
		} else {
			rows[pos].PE = &in
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Strike < rows[j].Strike })

	if spot <= 0 || width <= 0 || len(rows) == 0 {
		return rows
	}

	atm := ATMIndex(rows, spot)
	lo, hi := atm-width, atm+width+1
	if lo < 0 {
		lo = 0
	}
	if hi > len(rows) {
		hi = len(rows)
	}
	return rows[lo:hi]
}

// ATMIndex is the row whose strike is closest to spot; ties go to the lower
// strike.
func ATMIndex(rows []ChainRow, spot float64) int {
	best, bestDiff := 0, math.Inf(1)
	for i, r := range rows {
		if d := math.Abs(r.Strike - spot); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}

func (c *Catalog) today() string {
	return c.now().In(ist).Format("2006-01-02")
}

func keepNearest(ins []types.Instrument, today string) []types.Instrument {
	nearest := ""
	for _, in := range ins {
		d := dateOf(in.Expiry)
		if in.Expiry.IsZero() || d < today {
			continue
		}
		if nearest == "" || d < nearest {
			nearest = d
		}
	}
	if nearest == "" {
		return nil
	}
	out := ins[:0]
	for _, in := range ins {
		if !in.Expiry.IsZero() && dateOf(in.Expiry) == nearest {
			out = append(out, in)
		}
	}
	return out
}

// dateOf formats an expiry in its own location; Kite sends bare dates.
func dateOf(t time.Time) string {
	return t.Format("2006-01-02")
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
