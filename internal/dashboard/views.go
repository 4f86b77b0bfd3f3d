package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"fno-desk/internal/poller"
	"fno-desk/internal/types"
)

func newTable(columns []table.Column, focused bool) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(focused),
		table.WithHeight(8),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return t
}

// NewQuotesTable creates the watch list table.
func NewQuotesTable() table.Model {
	return newTable([]table.Column{
		{Title: "Instrument", Width: 28},
		{Title: "LTP", Width: 14},
		{Title: "Bid", Width: 10},
		{Title: "Ask", Width: 10},
		{Title: "Volume", Width: 12},
		{Title: "OI", Width: 12},
	}, true)
}

// NewPositionsTable creates the net positions table.
func NewPositionsTable() table.Model {
	return newTable([]table.Column{
		{Title: "Instrument", Width: 28},
		{Title: "Product", Width: 8},
		{Title: "Qty", Width: 8},
		{Title: "Avg", Width: 10},
		{Title: "LTP", Width: 10},
		{Title: "P&L", Width: 14},
	}, false)
}

// QuoteRows orders quotes by key.
func QuoteRows(quotes map[string]types.Quote, prev map[string]float64) []table.Row {
	keys := make([]string, 0, len(quotes))
	for k := range quotes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]table.Row, 0, len(keys))
	for _, k := range keys {
		q := quotes[k]
		rows = append(rows, table.Row{
			k,
			FormatPriceMove(q.LastPrice, prev[k]),
			fmt.Sprintf("%.2f", q.Bid),
			fmt.Sprintf("%.2f", q.Ask),
			fmt.Sprintf("%d", q.Volume),
			fmt.Sprintf("%.0f", q.OI),
		})
	}
	return rows
}

// PositionRows lists net positions, open ones first.
func PositionRows(pos types.Positions) []table.Row {
	net := append([]types.Position(nil), pos.Net...)
	sort.SliceStable(net, func(i, j int) bool {
		if net[i].IsOpen() != net[j].IsOpen() {
			return net[i].IsOpen()
		}
		return net[i].Key() < net[j].Key()
	})

	rows := make([]table.Row, 0, len(net))
	for _, p := range net {
		rows = append(rows, table.Row{
			p.Key(),
			p.Product,
			fmt.Sprintf("%d", p.Quantity),
			fmt.Sprintf("%.2f", p.AveragePrice),
			fmt.Sprintf("%.2f", p.LastPrice),
			fmt.Sprintf("%.2f", p.PnL),
		})
	}
	return rows
}

// AccountView renders MTM, order count and margins.
func AccountView(s poller.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MTM          %s\n", FormatPnL(s.MTM))
	fmt.Fprintf(&b, "Orders today %d\n", s.OrdersToday)
	segment := func(name string, m types.SegmentMargin) {
		fmt.Fprintf(&b, "%-12s available %.2f  used %.2f\n", name, m.Available, m.Used)
	}
	segment("Equity", s.Margins.Equity)
	segment("Commodity", s.Margins.Commodity)
	return strings.TrimRight(b.String(), "\n")
}

// ErrorsView lists the loops whose last poll failed.
func ErrorsView(s poller.Snapshot) string {
	if len(s.Errors) == 0 {
		return ""
	}
	kinds := make([]string, 0, len(s.Errors))
	for k := range s.Errors {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	lines := make([]string, 0, len(kinds))
	for _, k := range kinds {
		lines = append(lines, ErrorStyle.Render(fmt.Sprintf("%s: %s", k, s.Errors[poller.Kind(k)])))
	}
	return strings.Join(lines, "\n")
}
