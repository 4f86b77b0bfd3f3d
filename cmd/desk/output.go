package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"fno-desk/internal/contracts"
	"fno-desk/internal/dashboard"
	"fno-desk/internal/types"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func render(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}

func price(v float64) string {
	if v == 0 {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func printInstruments(w io.Writer, ins []types.Instrument) {
	rows := make([][]string, 0, len(ins))
	for _, in := range ins {
		rows = append(rows, []string{
			in.Key(),
			in.Name,
			in.Type,
			in.Expiry.Format("2006-01-02"),
			price(in.Strike),
			strconv.Itoa(in.LotSize),
			strconv.FormatFloat(in.TickSize, 'f', -1, 64),
		})
	}
	render(w, []string{"Instrument", "Underlying", "Type", "Expiry", "Strike", "Lot", "Tick"}, rows)
	fmt.Fprintf(w, "%d contracts\n", len(ins))
}

func printChain(w io.Writer, rows []contracts.ChainRow, quotes map[string]types.Quote, spot float64) {
	atm := contracts.ATMIndex(rows, spot)
	side := func(in *types.Instrument) (string, string) {
		if in == nil {
			return "", ""
		}
		q := quotes[in.Key()]
		return price(q.LastPrice), strconv.FormatFloat(q.OI, 'f', 0, 64)
	}
	out := make([][]string, 0, len(rows))
	for i, r := range rows {
		ceLTP, ceOI := side(r.CE)
		peLTP, peOI := side(r.PE)
		strike := price(r.Strike)
		if i == atm {
			strike = "*" + strike
		}
		out = append(out, []string{ceOI, ceLTP, strike, peLTP, peOI})
	}
	render(w, []string{"CE OI", "CE LTP", "Strike", "PE LTP", "PE OI"}, out)
	fmt.Fprintf(w, "spot %s\n", price(spot))
}

func printQuotes(w io.Writer, keys []string, quotes map[string]types.Quote) {
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		q, ok := quotes[k]
		if !ok {
			rows = append(rows, []string{k, "-", "-", "-", "-", "-"})
			continue
		}
		rows = append(rows, []string{
			k,
			price(q.LastPrice),
			price(q.Bid),
			price(q.Ask),
			strconv.FormatInt(q.Volume, 10),
			strconv.FormatFloat(q.OI, 'f', 0, 64),
		})
	}
	render(w, []string{"Instrument", "LTP", "Bid", "Ask", "Volume", "OI"}, rows)
}

func printPositions(w io.Writer, pos types.Positions) {
	rows := make([][]string, 0, len(pos.Net))
	for _, p := range pos.Net {
		rows = append(rows, []string{
			p.Key(),
			p.Product,
			strconv.Itoa(p.Quantity),
			price(p.AveragePrice),
			price(p.LastPrice),
			dashboard.FormatPnL(p.PnL),
		})
	}
	render(w, []string{"Instrument", "Product", "Qty", "Avg", "LTP", "P&L"}, rows)
	fmt.Fprintf(w, "MTM %s\n", dashboard.FormatPnL(pos.TotalPnL()))
}

func printMargins(w io.Writer, m types.Margins) {
	row := func(name string, s types.SegmentMargin) []string {
		return []string{name, strconv.FormatBool(s.Enabled), price(s.Net), price(s.Available), price(s.Used)}
	}
	render(w, []string{"Segment", "Enabled", "Net", "Available", "Used"}, [][]string{
		row("equity", m.Equity),
		row("commodity", m.Commodity),
	})
}

func printBatch(w io.Writer, res *types.BatchResult) {
	if res == nil {
		return
	}
	rows := make([][]string, 0, len(res.Legs))
	for _, l := range res.Legs {
		rows = append(rows, []string{
			l.Key,
			string(l.Side),
			strconv.Itoa(l.Qty),
			string(l.OrderType),
			price(l.Price),
			string(l.Status),
			l.OrderID,
			l.Reason,
		})
	}
	render(w, []string{"Instrument", "Side", "Qty", "Type", "Price", "Status", "Order ID", "Reason"}, rows)
	fmt.Fprintf(w, "batch %s: %d placed, %d not placed\n", res.BatchID, res.Placed(), res.Failed())
}
