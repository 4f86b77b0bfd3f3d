package eod

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"fno-desk/internal/tradelog"
	"fno-desk/internal/types"
)

type eodSummarizer struct {
	cutoffHour   int
	cutoffMinute int
	now          func() time.Time
}

// SummarizeDay writes the per-symbol CSV for the IST day containing t. Only
// orders that reached the broker are counted. A day without orders returns
// an empty path and no error.
func (s *eodSummarizer) SummarizeDay(t time.Time) (string, error) {
	entries, err := tradelog.ReadDay(t)
	if err != nil {
		return "", err
	}

	aggs := map[string]*aggRow{}
	for _, e := range entries {
		if !e.Placed() {
			continue
		}
		key := types.Key(e.Exchange, e.Symbol)
		row := aggs[key]
		if row == nil {
			row = &aggRow{Symbol: key}
			aggs[key] = row
		}
		row.Orders++
		if e.OrderType == string(types.OrderTypeMarket) || e.Price <= 0 {
			row.MarketQty += e.Qty
		}
		switch types.Side(e.Side) {
		case types.SideBuy:
			row.BuyQty += e.Qty
			if e.Price > 0 {
				row.BuyValue += float64(e.Qty) * e.Price
				row.buyPriced += e.Qty
			}
		case types.SideSell:
			row.SellQty += e.Qty
			if e.Price > 0 {
				row.SellValue += float64(e.Qty) * e.Price
				row.sellPriced += e.Qty
			}
		}
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := eodCSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	headers := []string{"symbol", "orders", "buy_qty", "buy_avg", "sell_qty", "sell_avg", "net_qty", "market_qty", "realized_pnl", "gross_buy_value", "gross_sell_value"}
	if err := w.Write(headers); err != nil {
		return "", err
	}

	var totalBuy, totalSell, totalPnL float64
	totalOrders := 0
	for _, k := range keys {
		r := aggs[k]
		pnl := r.realized()
		rec := []string{
			r.Symbol,
			strconv.Itoa(r.Orders),
			strconv.Itoa(r.BuyQty),
			fmt.Sprintf("%.4f", r.buyAvg()),
			strconv.Itoa(r.SellQty),
			fmt.Sprintf("%.4f", r.sellAvg()),
			strconv.Itoa(r.BuyQty - r.SellQty),
			strconv.Itoa(r.MarketQty),
			fmt.Sprintf("%.2f", pnl),
			fmt.Sprintf("%.2f", r.BuyValue),
			fmt.Sprintf("%.2f", r.SellValue),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalOrders += r.Orders
		totalBuy += r.BuyValue
		totalSell += r.SellValue
		totalPnL += pnl
	}
	if err := w.Write([]string{"TOTAL", strconv.Itoa(totalOrders), "", "", "", "", "", "", fmt.Sprintf("%.2f", totalPnL), fmt.Sprintf("%.2f", totalBuy), fmt.Sprintf("%.2f", totalSell)}); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, nil
}

func (s *eodSummarizer) SummarizeToday() (string, error) { return s.SummarizeDay(s.now()) }

// ShouldRunNow is true once the cutoff has passed and today's CSV does not
// exist yet.
func (s *eodSummarizer) ShouldRunNow() (bool, string) {
	now := s.now()
	outPath := eodCSVPath(now)
	if now.After(cutoffTime(now, s.cutoffHour, s.cutoffMinute)) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}
