package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"fno-desk/internal/types"
)

func main() {
	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer shutdownSystem()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "desk",
		Usage: "Futures and options trading desk for Zerodha Kite",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config",
				Value:   "config.yaml",
				Sources: cli.EnvVars("DESK_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			instrumentsCommand(),
			chainCommand(),
			quoteCommand(),
			positionsCommand(),
			marginsCommand(),
			orderCommand(types.SideBuy),
			orderCommand(types.SideSell),
			exitCommand(),
			watchCommand(),
			eodCommand(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		shutdownSystem()
		os.Exit(1)
	}
}
