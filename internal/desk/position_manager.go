package desk

import (
	"context"
	"strings"

	"fno-desk/internal/interfaces"
	"fno-desk/internal/types"
)

// InstrumentLookup resolves an EXCHANGE:SYMBOL key to contract details. The
// contract catalog satisfies it.
type InstrumentLookup interface {
	Lookup(key string) (types.Instrument, bool)
}

// exitOrder is one chunk of a position to flatten.
type exitOrder struct {
	pos  types.Position
	inst types.Instrument
	qty  int
}

// positionManager picks the open positions an exit request targets and cuts
// them into orders that respect the lot cap.
type positionManager struct {
	brk    interfaces.Broker
	lookup InstrumentLookup
}

func newPositionManager(brk interfaces.Broker, lookup InstrumentLookup) *positionManager {
	return &positionManager{brk: brk, lookup: lookup}
}

// selectOpen returns the open net positions matching req.
func (pm *positionManager) selectOpen(ctx context.Context, req types.ExitRequest) ([]types.Position, error) {
	book, err := pm.brk.Positions(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.Position
	for _, p := range book.Open() {
		if pm.matchesExit(p, req) {
			out = append(out, p)
		}
	}
	return out, nil
}

// matchesExit applies the exit filters. The instrument type comes from the
// catalog, or from the symbol suffix for contracts it does not know.
func (pm *positionManager) matchesExit(p types.Position, req types.ExitRequest) bool {
	if req.All {
		return true
	}
	if req.Exchange != "" && !strings.EqualFold(req.Exchange, p.Exchange) {
		return false
	}
	if req.InstrumentType != "" && !strings.EqualFold(req.InstrumentType, pm.instrument(p).Type) {
		return false
	}
	if len(req.Symbols) > 0 {
		found := false
		for _, s := range req.Symbols {
			if strings.EqualFold(s, p.Symbol) || strings.EqualFold(s, p.Key()) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// instrumentTypeOf infers FUT, CE or PE from a derivative trading symbol.
func instrumentTypeOf(symbol string) string {
	s := strings.ToUpper(symbol)
	switch {
	case strings.HasSuffix(s, types.InstrumentFUT):
		return types.InstrumentFUT
	case strings.HasSuffix(s, types.InstrumentCE):
		return types.InstrumentCE
	case strings.HasSuffix(s, types.InstrumentPE):
		return types.InstrumentPE
	}
	return ""
}

// instrument resolves the contract of pos. Unknown contracts trade in units
// with the minimum tick.
func (pm *positionManager) instrument(pos types.Position) types.Instrument {
	if pm.lookup != nil {
		if in, ok := pm.lookup.Lookup(pos.Key()); ok {
			return in
		}
	}
	return types.Instrument{
		Token:    pos.Token,
		Exchange: pos.Exchange,
		Symbol:   pos.Symbol,
		Type:     instrumentTypeOf(pos.Symbol),
		LotSize:  1,
	}
}

// plan splits each position into orders of at most maxLots lots. A
// non-positive maxLots sends each position as a single order.
func (pm *positionManager) plan(positions []types.Position, maxLots int) []exitOrder {
	var out []exitOrder
	for _, p := range positions {
		in := pm.instrument(p)
		remaining := p.Quantity
		if remaining < 0 {
			remaining = -remaining
		}
		lot := in.LotSize
		if lot <= 0 {
			lot = 1
		}
		chunk := remaining
		if maxLots > 0 {
			chunk = maxLots * lot
		}
		for remaining > 0 {
			q := chunk
			if q > remaining {
				q = remaining
			}
			out = append(out, exitOrder{pos: p, inst: in, qty: q})
			remaining -= q
		}
	}
	return out
}
