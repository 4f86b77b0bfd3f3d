package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"fno-desk/internal/broker/zerodha"
	"fno-desk/internal/contracts"
	"fno-desk/internal/dashboard"
	"fno-desk/internal/eod"
	"fno-desk/internal/logger"
	"fno-desk/internal/poller"
	"fno-desk/internal/store"
	"fno-desk/internal/tradelog"
	"fno-desk/internal/types"
)

const dateLayout = "2006-01-02"

// withApp bootstraps the broker stack for a command and tears it down after.
func withApp(fn func(ctx context.Context, cmd *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		a, err := newApp(ctx, cmd.String("config"))
		if err != nil {
			return err
		}
		defer a.close(ctx)
		return fn(ctx, cmd, a)
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Create a Kite session and save it to the credentials file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api-key", Usage: "Kite API key", Sources: cli.EnvVars("KITE_API_KEY")},
			&cli.StringFlag{Name: "api-secret", Usage: "Kite API secret", Sources: cli.EnvVars("KITE_API_SECRET")},
			&cli.StringFlag{Name: "request-token", Usage: "request_token from the login redirect"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(ctx, cmd.String("config"))
			if err != nil {
				return err
			}
			apiKey := cmd.String("api-key")
			if apiKey == "" {
				return errors.New("api key required (--api-key or KITE_API_KEY)")
			}

			token := cmd.String("request-token")
			if token == "" {
				fmt.Println("Open this URL, log in and rerun with --request-token:")
				fmt.Println(zerodha.LoginURL(apiKey))
				return nil
			}
			secret := cmd.String("api-secret")
			if secret == "" {
				return errors.New("api secret required (--api-secret or KITE_API_SECRET)")
			}

			creds, err := zerodha.GenerateSession(apiKey, secret, token)
			if err != nil {
				return fmt.Errorf("generate session: %w", err)
			}
			if err := store.SaveCredentials(cfg.CredentialsFile, creds); err != nil {
				return err
			}
			logger.Info(ctx, "Session saved", "path", cfg.CredentialsFile)
			fmt.Println("Session saved to", cfg.CredentialsFile)
			return nil
		},
	}
}

func expiryFlag() cli.Flag {
	return &cli.TimestampFlag{
		Name:   "expiry",
		Usage:  "Expiry date in `YYYY-MM-DD` format",
		Config: cli.TimestampConfig{Layouts: []string{dateLayout}},
	}
}

func instrumentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "instruments",
		Usage: "Search the contract catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "exchange", Aliases: []string{"e"}, Usage: "MCX or NFO (defaults to config)"},
			&cli.StringFlag{Name: "underlying", Aliases: []string{"u"}, Usage: "Underlying name, e.g. CRUDEOIL"},
			&cli.StringSliceFlag{Name: "type", Aliases: []string{"t"}, Usage: "FUT, CE or PE (repeatable)"},
			expiryFlag(),
			&cli.BoolFlag{Name: "nearest", Usage: "Only the nearest expiry"},
			&cli.FloatFlag{Name: "min-strike"},
			&cli.FloatFlag{Name: "max-strike"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			ex := strings.ToUpper(cmd.String("exchange"))
			if ex == "" {
				ex = a.cfg.Exchange
			}
			if err := a.loadCatalog(ctx, ex); err != nil {
				return err
			}
			ins := a.catalog.Filter(contracts.Filter{
				Exchange:   ex,
				Underlying: cmd.String("underlying"),
				Types:      cmd.StringSlice("type"),
				Expiry:     cmd.Timestamp("expiry"),
				Nearest:    cmd.Bool("nearest"),
				MinStrike:  cmd.Float("min-strike"),
				MaxStrike:  cmd.Float("max-strike"),
			})
			printInstruments(os.Stdout, ins)
			return nil
		}),
	}
}

func chainCommand() *cli.Command {
	return &cli.Command{
		Name:      "chain",
		Usage:     "Show the option chain around the money",
		ArgsUsage: "UNDERLYING",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "exchange", Aliases: []string{"e"}, Usage: "MCX or NFO (defaults to config)"},
			expiryFlag(),
			&cli.IntFlag{Name: "width", Aliases: []string{"w"}, Value: 5, Usage: "Strikes either side of ATM"},
			&cli.FloatFlag{Name: "spot", Usage: "Spot override; defaults to the nearest future's LTP"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			underlying := strings.ToUpper(cmd.Args().First())
			if underlying == "" {
				return errors.New("underlying required, e.g. 'desk chain CRUDEOIL'")
			}
			ex := strings.ToUpper(cmd.String("exchange"))
			if ex == "" {
				ex = a.cfg.Exchange
			}
			if err := a.loadCatalog(ctx, ex); err != nil {
				return err
			}

			spot := cmd.Float("spot")
			if spot <= 0 {
				if fut, ok := a.catalog.NearestFuture(ex, underlying); ok {
					ltp, err := a.brk.LTP(ctx, []string{fut.Key()})
					if err != nil {
						logger.Warn(ctx, "Spot unavailable, showing full chain", "future", fut.Key(), "error", err)
					}
					spot = ltp[fut.Key()]
				}
			}

			rows := a.catalog.Chain(ex, underlying, cmd.Timestamp("expiry"), spot, int(cmd.Int("width")))
			if len(rows) == 0 {
				return fmt.Errorf("no options for %s on %s", underlying, ex)
			}
			var keys []string
			for _, r := range rows {
				for _, in := range []*types.Instrument{r.CE, r.PE} {
					if in != nil {
						keys = append(keys, in.Key())
					}
				}
			}
			quotes, err := a.brk.Quote(ctx, keys)
			if err != nil {
				logger.Warn(ctx, "Chain quotes unavailable", "error", err)
			}
			printChain(os.Stdout, rows, quotes, spot)
			return nil
		}),
	}
}

func quoteCommand() *cli.Command {
	return &cli.Command{
		Name:      "quote",
		Usage:     "Show quotes for instruments",
		ArgsUsage: "[EXCHANGE:]SYMBOL...",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			keys := normalizeKeys(cmd.Args().Slice(), a.cfg.Exchange)
			if len(keys) == 0 {
				keys = normalizeKeys(a.cfg.Watch, a.cfg.Exchange)
			}
			if len(keys) == 0 {
				return errors.New("no instruments given and watch list is empty")
			}
			quotes, err := a.brk.Quote(ctx, keys)
			if err != nil {
				return err
			}
			printQuotes(os.Stdout, keys, quotes)
			return nil
		}),
	}
}

func positionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "positions",
		Usage: "Show net positions and MTM",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			pos, err := a.brk.Positions(ctx)
			if err != nil {
				return err
			}
			printPositions(os.Stdout, pos)
			return nil
		}),
	}
}

func marginsCommand() *cli.Command {
	return &cli.Command{
		Name:  "margins",
		Usage: "Show available and used margin per segment",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			m, err := a.brk.Margins(ctx)
			if err != nil {
				return err
			}
			printMargins(os.Stdout, m)
			return nil
		}),
	}
}

func orderCommand(side types.Side) *cli.Command {
	name := strings.ToLower(string(side))
	return &cli.Command{
		Name:      name,
		Usage:     fmt.Sprintf("%s one or more contracts as a single batch", strings.ToUpper(name[:1])+name[1:]),
		ArgsUsage: "[EXCHANGE:]SYMBOL[=LOTS]...",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "lots", Aliases: []string{"l"}, Value: 1, Usage: "Lots for legs without an explicit count"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			legs, err := parseLegs(cmd.Args().Slice(), a.cfg.Exchange, int(cmd.Int("lots")))
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(legs))
			for _, l := range legs {
				keys = append(keys, l.Key())
			}
			if err := a.loadCatalog(ctx, exchangesOf(keys)...); err != nil {
				return err
			}

			sel := contracts.NewSelection()
			for _, l := range legs {
				in, ok := a.catalog.Lookup(l.Key())
				if !ok {
					return fmt.Errorf("unknown contract %s", l.Key())
				}
				if err := sel.Add(in, l.Lots); err != nil {
					return err
				}
			}

			res, err := a.desk.PlaceBatch(ctx, side, sel)
			printBatch(os.Stdout, res)
			return err
		}),
	}
}

func exitCommand() *cli.Command {
	return &cli.Command{
		Name:  "exit",
		Usage: "Flatten open positions",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "Exit every open position"},
			&cli.StringSliceFlag{Name: "symbol", Aliases: []string{"s"}, Usage: "Trading symbol or EXCHANGE:SYMBOL (repeatable)"},
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Only FUT, CE or PE"},
			&cli.StringFlag{Name: "exchange", Aliases: []string{"e"}, Usage: "Only this exchange"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			req := types.ExitRequest{
				All:            cmd.Bool("all"),
				Symbols:        cmd.StringSlice("symbol"),
				InstrumentType: strings.ToUpper(cmd.String("type")),
				Exchange:       strings.ToUpper(cmd.String("exchange")),
			}
			if !req.All && len(req.Symbols) == 0 && req.InstrumentType == "" && req.Exchange == "" {
				return errors.New("choose what to exit: --all, --symbol, --type or --exchange")
			}
			// lot sizes for the quantity cap
			if err := a.loadCatalog(ctx, types.ExchangeMCX, types.ExchangeNFO); err != nil {
				logger.Warn(ctx, "Catalog unavailable, exits will use unit lots", "error", err)
			}
			res, err := a.desk.ExitPositions(ctx, req)
			printBatch(os.Stdout, res)
			return err
		}),
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Live dashboard of quotes, positions, P&L and margins",
		ArgsUsage: "[EXCHANGE:]SYMBOL...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "plain", Usage: "Log updates instead of drawing the dashboard"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, a *app) error {
			keys := normalizeKeys(append(append([]string{}, a.cfg.Watch...), cmd.Args().Slice()...), a.cfg.Exchange)

			if a.cfg.MarketData == "TICKER" && len(keys) > 0 {
				if err := a.loadCatalog(ctx, exchangesOf(keys)...); err != nil {
					return err
				}
				var ins []types.Instrument
				for _, k := range keys {
					if in, ok := a.catalog.Lookup(k); ok {
						ins = append(ins, in)
					}
				}
				if err := a.brk.Start(ctx, ins); err != nil {
					logger.Warn(ctx, "Ticker unavailable, quotes will use REST", "error", err)
				}
			}

			md, pos, pnl, acc := a.cfg.PollIntervals()
			p := poller.New(a.brk, keys, poller.Intervals{MarketData: md, Positions: pos, PnL: pnl, Account: acc})

			if !cmd.Bool("plain") {
				redirectLogs(ctx)
			}
			go runEODWatcher(ctx)

			if cmd.Bool("plain") {
				return runPlain(ctx, p)
			}
			return dashboard.Run(ctx, p, fmt.Sprintf("fno-desk  %s  %s", a.cfg.Mode, a.cfg.Exchange))
		}),
	}
}

func runPlain(ctx context.Context, p *poller.Poller) error {
	p.OnUpdate(func(u poller.Update) {
		if u.Err != nil {
			logger.Warn(ctx, "Poll failed", "kind", u.Kind, "error", u.Err)
			return
		}
		s := u.Snapshot
		switch u.Kind {
		case poller.KindMarketData:
			for k, q := range s.Quotes {
				logger.Info(ctx, "Quote", "key", k, "ltp", q.LastPrice, "bid", q.Bid, "ask", q.Ask)
			}
		case poller.KindPositions, poller.KindPnL:
			logger.Info(ctx, "P&L", "kind", u.Kind, "open", len(s.Positions.Open()), "mtm", s.MTM)
		case poller.KindAccount:
			logger.Info(ctx, "Account",
				"orders_today", s.OrdersToday,
				"equity_available", s.Margins.Equity.Available,
				"commodity_available", s.Margins.Commodity.Available,
			)
		}
	})
	return p.Run(ctx)
}

// runEODWatcher writes the day's summary once the cutoff passes.
func runEODWatcher(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			// the summarizer logs its own outcome
			if ok, _ := eod.ShouldRunNow(); ok {
				_, _ = eod.SummarizeToday()
			}
		}
	}
}

func eodCommand() *cli.Command {
	return &cli.Command{
		Name:  "eod",
		Usage: "Summarise a day's orders into CSV",
		Flags: []cli.Flag{
			&cli.TimestampFlag{
				Name:   "date",
				Usage:  "Day in `YYYY-MM-DD` format (defaults to today, IST)",
				Config: cli.TimestampConfig{Layouts: []string{dateLayout}, Timezone: tradelog.IST},
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(ctx, cmd.String("config"))
			if err != nil {
				return err
			}
			initializeEOD(cfg)

			var p string
			if d := cmd.Timestamp("date"); !d.IsZero() {
				p, err = eod.SummarizeDay(d)
			} else {
				p, err = eod.SummarizeToday()
			}
			if err != nil {
				return err
			}
			if p == "" {
				fmt.Println("No orders for that day")
				return nil
			}
			fmt.Println("EOD CSV written:", p)
			return nil
		},
	}
}
