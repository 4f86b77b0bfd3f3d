package types

import (
	"strings"
	"time"
)

// Side is the transaction direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the side that closes a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// PriceSource selects which quote field anchors the limit price.
type PriceSource string

const (
	PriceSourceLTP    PriceSource = "LTP"
	PriceSourceBidAsk PriceSource = "BIDASK"
)

const (
	ExchangeMCX = "MCX"
	ExchangeNFO = "NFO"

	ProductNRML = "NRML"
	ProductMIS  = "MIS"

	VarietyRegular = "regular"
	ValidityDay    = "DAY"

	InstrumentFUT = "FUT"
	InstrumentCE  = "CE"
	InstrumentPE  = "PE"
)

// Key builds the EXCHANGE:TRADINGSYMBOL form used by the quote endpoints.
func Key(exchange, symbol string) string {
	return exchange + ":" + symbol
}

// SplitKey is the inverse of Key. A key without an exchange prefix returns an
// empty exchange.
func SplitKey(key string) (exchange, symbol string) {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

// Instrument is a tradable contract from the broker's instrument dump.
type Instrument struct {
	Token    uint32    `json:"token"`
	Exchange string    `json:"exchange"`
	Symbol   string    `json:"symbol"`
	Name     string    `json:"name"`
	Expiry   time.Time `json:"expiry"`
	Strike   float64   `json:"strike"`
	Type     string    `json:"type"`
	LotSize  int       `json:"lot_size"`
	TickSize float64   `json:"tick_size"`
	Segment  string    `json:"segment"`
}

func (i Instrument) Key() string { return Key(i.Exchange, i.Symbol) }

// IsOption reports whether the contract is a call or a put.
func (i Instrument) IsOption() bool {
	return i.Type == InstrumentCE || i.Type == InstrumentPE
}

// Quote is the latest market snapshot for one instrument.
type Quote struct {
	Key       string    `json:"key"`
	LastPrice float64   `json:"last_price"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	BidQty    int       `json:"bid_qty"`
	AskQty    int       `json:"ask_qty"`
	Volume    int64     `json:"volume"`
	OI        float64   `json:"oi"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Timestamp time.Time `json:"timestamp"`
}

// Position is a net or day position record.
type Position struct {
	Token        uint32  `json:"token"`
	Exchange     string  `json:"exchange"`
	Symbol       string  `json:"symbol"`
	Product      string  `json:"product"`
	Quantity     int     `json:"quantity"`
	Multiplier   float64 `json:"multiplier"`
	AveragePrice float64 `json:"average_price"`
	LastPrice    float64 `json:"last_price"`
	BuyValue     float64 `json:"buy_value"`
	SellValue    float64 `json:"sell_value"`
	PnL          float64 `json:"pnl"`
	Realised     float64 `json:"realised"`
	Unrealised   float64 `json:"unrealised"`
}

func (p Position) Key() string { return Key(p.Exchange, p.Symbol) }

func (p Position) IsOpen() bool  { return p.Quantity != 0 }
func (p Position) IsLong() bool  { return p.Quantity > 0 }
func (p Position) IsShort() bool { return p.Quantity < 0 }

// MarkToMarket recomputes P&L at ltp the way the broker does:
// (sell value - buy value) + qty * ltp * multiplier.
func (p Position) MarkToMarket(ltp float64) float64 {
	m := p.Multiplier
	if m == 0 {
		m = 1
	}
	return (p.SellValue - p.BuyValue) + float64(p.Quantity)*ltp*m
}

type Positions struct {
	Net []Position `json:"net"`
	Day []Position `json:"day"`
}

// Open returns the net positions with a non-zero quantity.
func (p Positions) Open() []Position {
	out := make([]Position, 0, len(p.Net))
	for _, pos := range p.Net {
		if pos.IsOpen() {
			out = append(out, pos)
		}
	}
	return out
}

// TotalPnL sums P&L over net positions.
func (p Positions) TotalPnL() float64 {
	total := 0.0
	for _, pos := range p.Net {
		total += pos.PnL
	}
	return total
}

// SegmentMargin is the cash picture of one trading segment.
type SegmentMargin struct {
	Enabled   bool    `json:"enabled"`
	Net       float64 `json:"net"`
	Available float64 `json:"available"`
	Used      float64 `json:"used"`
}

type Margins struct {
	Equity    SegmentMargin `json:"equity"`
	Commodity SegmentMargin `json:"commodity"`
}

// ForExchange picks the segment that funds orders on exchange.
func (m Margins) ForExchange(exchange string) SegmentMargin {
	if exchange == ExchangeMCX {
		return m.Commodity
	}
	return m.Equity
}

type OrderReq struct {
	Exchange  string
	Symbol    string
	Side      Side
	Qty       int
	OrderType OrderType
	Product   string
	Price     float64
	Tag       string
}

func (r OrderReq) Key() string { return Key(r.Exchange, r.Symbol) }

type OrderResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Order is one row of the broker's order book.
type Order struct {
	OrderID      string    `json:"order_id"`
	Status       string    `json:"status"`
	Exchange     string    `json:"exchange"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	OrderType    OrderType `json:"order_type"`
	Quantity     int       `json:"quantity"`
	Price        float64   `json:"price"`
	AveragePrice float64   `json:"average_price"`
	Tag          string    `json:"tag"`
	PlacedAt     time.Time `json:"placed_at"`
}

// Credentials is the persisted broker session.
type Credentials struct {
	APIKey      string `json:"api_key"`
	AccessToken string `json:"access_token"`
}
