package main

import (
	"fmt"
	"strconv"
	"strings"

	"fno-desk/internal/types"
)

// legSpec is one command-line leg: [EXCHANGE:]SYMBOL[=LOTS].
type legSpec struct {
	Exchange string
	Symbol   string
	Lots     int
}

func (l legSpec) Key() string { return types.Key(l.Exchange, l.Symbol) }

// parseLegs reads leg arguments. Legs without an exchange use defExchange and
// legs without a lot count use defLots.
func parseLegs(args []string, defExchange string, defLots int) ([]legSpec, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no contracts given; pass [EXCHANGE:]SYMBOL[=LOTS]")
	}
	out := make([]legSpec, 0, len(args))
	for _, arg := range args {
		contract, lotsStr, hasLots := strings.Cut(strings.TrimSpace(arg), "=")
		lots := defLots
		if hasLots {
			n, err := strconv.Atoi(lotsStr)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid lots in '%s'", arg)
			}
			lots = n
		}
		if lots <= 0 {
			return nil, fmt.Errorf("lots must be positive for '%s'", arg)
		}
		ex, sym := types.SplitKey(strings.ToUpper(contract))
		if ex == "" {
			ex = strings.ToUpper(defExchange)
		}
		if sym == "" {
			return nil, fmt.Errorf("missing symbol in '%s'", arg)
		}
		out = append(out, legSpec{Exchange: ex, Symbol: sym, Lots: lots})
	}
	return out, nil
}

// normalizeKeys upper-cases keys and prefixes bare symbols with defExchange.
func normalizeKeys(keys []string, defExchange string) []string {
	out := make([]string, 0, len(keys))
	seen := map[string]bool{}
	for _, k := range keys {
		ex, sym := types.SplitKey(strings.ToUpper(strings.TrimSpace(k)))
		if sym == "" {
			continue
		}
		if ex == "" {
			ex = strings.ToUpper(defExchange)
		}
		key := types.Key(ex, sym)
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

func exchangesOf(keys []string) []string {
	var out []string
	for _, k := range keys {
		ex, _ := types.SplitKey(k)
		out = append(out, ex)
	}
	return out
}
