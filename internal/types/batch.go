package types

// Leg is one selected contract with the number of lots to trade.
type Leg struct {
	Instrument Instrument
	Lots       int
}

// Qty is lots times lot size; instruments without a lot size trade in units.
func (l Leg) Qty() int {
	if l.Instrument.LotSize <= 0 {
		return l.Lots
	}
	return l.Lots * l.Instrument.LotSize
}

type LegStatus string

const (
	LegPlaced    LegStatus = "PLACED"
	LegFallback  LegStatus = "PLACED_MARKET_FALLBACK"
	LegSkipped   LegStatus = "SKIPPED"
	LegFailed    LegStatus = "FAILED"
	LegSimulated LegStatus = "SIMULATED"
)

// LegResult records what happened to a single order of a batch.
type LegResult struct {
	Key       string
	Side      Side
	Qty       int
	OrderType OrderType
	Price     float64
	OrderID   string
	Status    LegStatus
	Reason    string
}

func (r LegResult) OK() bool {
	return r.Status == LegPlaced || r.Status == LegFallback || r.Status == LegSimulated
}

type BatchResult struct {
	BatchID string
	Side    Side
	Legs    []LegResult
}

// Placed counts the legs that reached the broker successfully.
func (b *BatchResult) Placed() int {
	n := 0
	for _, l := range b.Legs {
		if l.OK() {
			n++
		}
	}
	return n
}

// Failed counts legs that were skipped or rejected.
func (b *BatchResult) Failed() int {
	return len(b.Legs) - b.Placed()
}

// ExitRequest picks which open net positions to flatten. All wins over the
// other filters; empty filters match everything.
type ExitRequest struct {
	All            bool
	Symbols        []string
	InstrumentType string
	Exchange       string
}
