package eod

// aggRow holds one symbol's placed orders for the day.
type aggRow struct {
	Symbol     string  // EXCHANGE:TRADINGSYMBOL
	Orders     int     // Orders that reached the broker
	BuyQty     int     // Total quantity bought
	BuyValue   float64 // Sum of qty * price over priced buys
	buyPriced  int     // Buy quantity with a known price
	SellQty    int     // Total quantity sold
	SellValue  float64 // Sum of qty * price over priced sells
	sellPriced int     // Sell quantity with a known price
	MarketQty  int     // Quantity sent as MARKET, priced by the exchange
}

func (r *aggRow) buyAvg() float64 {
	if r.buyPriced == 0 {
		return 0
	}
	return r.BuyValue / float64(r.buyPriced)
}

func (r *aggRow) sellAvg() float64 {
	if r.sellPriced == 0 {
		return 0
	}
	return r.SellValue / float64(r.sellPriced)
}

// realized is the P&L of the quantity that was both bought and sold today,
// valued at the day's average prices.
func (r *aggRow) realized() float64 {
	matched := r.buyPriced
	if r.sellPriced < matched {
		matched = r.sellPriced
	}
	return float64(matched) * (r.sellAvg() - r.buyAvg())
}
