package zerodha

import (
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"fno-desk/internal/types"
)

// kiteAPI is the REST surface the adapter needs, already converted to desk
// types. restClient implements it on top of gokiteconnect; tests fake it.
type kiteAPI interface {
	Instruments(exchange string) ([]types.Instrument, error)
	Quote(keys ...string) (map[string]types.Quote, error)
	LTP(keys ...string) (map[string]float64, error)
	Positions() (types.Positions, error)
	Margins() (types.Margins, error)
	Orders() ([]types.Order, error)
	PlaceOrder(variety string, req types.OrderReq) (string, error)
}

type restClient struct {
	kc *kiteconnect.Client
}

var _ kiteAPI = (*restClient)(nil)

func newRestClient(apiKey, accessToken string) *restClient {
	kc := kiteconnect.New(apiKey)
	kc.SetAccessToken(accessToken)
	return &restClient{kc: kc}
}

func (r *restClient) Instruments(exchange string) ([]types.Instrument, error) {
	raw, err := r.kc.GetInstrumentsByExchange(exchange)
	if err != nil {
		return nil, err
	}
	out := make([]types.Instrument, 0, len(raw))
	for _, in := range raw {
		out = append(out, types.Instrument{
			Token:    uint32(in.InstrumentToken),
			Exchange: in.Exchange,
			Symbol:   in.Tradingsymbol,
			Name:     in.Name,
			Expiry:   in.Expiry.Time,
			Strike:   in.StrikePrice,
			Type:     in.InstrumentType,
			LotSize:  int(in.LotSize),
			TickSize: in.TickSize,
			Segment:  in.Segment,
		})
	}
	return out, nil
}

func (r *restClient) Quote(keys ...string) (map[string]types.Quote, error) {
	raw, err := r.kc.GetQuote(keys...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]types.Quote, len(raw))
	for key, q := range raw {
		bid, bidQty := bestLevel(q.Depth.Buy[:])
		ask, askQty := bestLevel(q.Depth.Sell[:])
		out[key] = types.Quote{
			Key:       key,
			LastPrice: q.LastPrice,
			Bid:       bid,
			Ask:       ask,
			BidQty:    bidQty,
			AskQty:    askQty,
			Volume:    int64(q.Volume),
			OI:        float64(q.OI),
			Open:      q.OHLC.Open,
			High:      q.OHLC.High,
			Low:       q.OHLC.Low,
			Close:     q.OHLC.Close,
			Timestamp: q.Timestamp.Time,
		}
	}
	return out, nil
}

func (r *restClient) LTP(keys ...string) (map[string]float64, error) {
	raw, err := r.kc.GetLTP(keys...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(raw))
	for key, q := range raw {
		out[key] = q.LastPrice
	}
	return out, nil
}

func (r *restClient) Positions() (types.Positions, error) {
	raw, err := r.kc.GetPositions()
	if err != nil {
		return types.Positions{}, err
	}
	return types.Positions{
		Net: convertPositions(raw.Net),
		Day: convertPositions(raw.Day),
	}, nil
}

func convertPositions(in []kiteconnect.Position) []types.Position {
	out := make([]types.Position, 0, len(in))
	for _, p := range in {
		out = append(out, types.Position{
			Token:        uint32(p.InstrumentToken),
			Exchange:     p.Exchange,
			Symbol:       p.Tradingsymbol,
			Product:      p.Product,
			Quantity:     int(p.Quantity),
			Multiplier:   float64(p.Multiplier),
			AveragePrice: p.AveragePrice,
			LastPrice:    p.LastPrice,
			BuyValue:     p.BuyValue,
			SellValue:    p.SellValue,
			PnL:          p.PnL,
			Realised:     p.Realised,
			Unrealised:   p.Unrealised,
		})
	}
	return out
}

func (r *restClient) Margins() (types.Margins, error) {
	raw, err := r.kc.GetUserMargins()
	if err != nil {
		return types.Margins{}, err
	}
	return types.Margins{
		Equity:    convertMargin(raw.Equity),
		Commodity: convertMargin(raw.Commodity),
	}, nil
}

func convertMargin(m kiteconnect.Margins) types.SegmentMargin {
	return types.SegmentMargin{
		Enabled:   m.Enabled,
		Net:       m.Net,
		Available: m.Available.LiveBalance,
		Used:      m.Used.Debits,
	}
}

func (r *restClient) Orders() ([]types.Order, error) {
	raw, err := r.kc.GetOrders()
	if err != nil {
		return nil, err
	}
	out := make([]types.Order, 0, len(raw))
	for _, o := range raw {
		out = append(out, types.Order{
			OrderID:      o.OrderID,
			Status:       o.Status,
			Exchange:     o.Exchange,
			Symbol:       o.TradingSymbol,
			Side:         types.Side(o.TransactionType),
			OrderType:    types.OrderType(o.OrderType),
			Quantity:     int(o.Quantity),
			Price:        o.Price,
			AveragePrice: o.AveragePrice,
			Tag:          o.Tag,
			PlacedAt:     o.OrderTimestamp.Time,
		})
	}
	return out, nil
}

func (r *restClient) PlaceOrder(variety string, req types.OrderReq) (string, error) {
	params := kiteconnect.OrderParams{
		Exchange:        req.Exchange,
		Tradingsymbol:   req.Symbol,
		Validity:        types.ValidityDay,
		Product:         req.Product,
		OrderType:       string(req.OrderType),
		TransactionType: string(req.Side),
		Quantity:        req.Qty,
		Tag:             req.Tag,
	}
	if req.OrderType == types.OrderTypeLimit {
		params.Price = req.Price
	}
	resp, err := r.kc.PlaceOrder(variety, params)
	if err != nil {
		return "", err
	}
	return resp.OrderID, nil
}

// LoginURL is the Kite login page that redirects back with a request token.
func LoginURL(apiKey string) string {
	return kiteconnect.New(apiKey).GetLoginURL()
}

// GenerateSession exchanges a request token for an access token.
func GenerateSession(apiKey, apiSecret, requestToken string) (types.Credentials, error) {
	kc := kiteconnect.New(apiKey)
	sess, err := kc.GenerateSession(requestToken, apiSecret)
	if err != nil {
		return types.Credentials{}, err
	}
	return types.Credentials{APIKey: apiKey, AccessToken: sess.AccessToken}, nil
}
