package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/livebet/internal/app"
	"github.com/alanyoungcy/livebet/internal/config"
	"github.com/alanyoungcy/livebet/internal/domain"
	"github.com/alanyoungcy/livebet/internal/x402"
)

// Exit codes for pay. A failure after the transfer gets its own code so
// scripts never blindly retry it.
const (
	exitFailed     = 1
	exitFundsMoved = 3
	exitUncertain  = 4
)

func exitCode(err error) int {
	if pe, ok := x402.AsPayError(err); ok {
		switch {
		case pe.Uncertain():
			return exitUncertain
		case pe.FundsMoved():
			return exitFundsMoved
		}
	}
	return exitFailed
}

type payFlags struct {
	config   string
	endpoint string
	market   string
	outcome  string
	stake    string
	sport    string
	category string
}

func parsePayFlags(args []string) (payFlags, error) {
	var f payFlags
	fs := flag.NewFlagSet("pay", flag.ContinueOnError)
	fs.StringVar(&f.config, "config", "config.toml", "path to configuration file")
	fs.StringVar(&f.endpoint, "endpoint", "", "bet endpoint (default payment.bet_endpoint)")
	fs.StringVar(&f.market, "market", "", "market id")
	fs.StringVar(&f.outcome, "outcome", "", "YES or NO")
	fs.StringVar(&f.stake, "stake", "", "stake in the native asset, e.g. 0.05")
	fs.StringVar(&f.sport, "sport", "", "sport label")
	fs.StringVar(&f.category, "category", "", "category label")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.market == "" || f.stake == "" {
		return f, errors.New("-market and -stake are required")
	}
	return f, nil
}

func (f payFlags) intent() (domain.BetIntent, error) {
	stake, err := decimal.NewFromString(f.stake)
	if err != nil {
		return domain.BetIntent{}, fmt.Errorf("invalid -stake %q: %w", f.stake, err)
	}
	intent := domain.BetIntent{
		MarketID: f.market,
		Sport:    f.sport,
		Category: f.category,
		Stake:    stake,
	}
	if f.outcome != "" {
		o, ok := domain.ParseOutcome(f.outcome)
		if !ok {
			return domain.BetIntent{}, fmt.Errorf("invalid -outcome %q: want YES or NO", f.outcome)
		}
		intent.Outcome = o
	}
	return intent, nil
}

func runPay(ctx context.Context, args []string, out io.Writer, logger *slog.Logger) error {
	f, err := parsePayFlags(args)
	if err != nil {
		return err
	}
	intent, err := f.intent()
	if err != nil {
		return err
	}

	cfg, err := config.Load(f.config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Mode = "client"
	if f.endpoint != "" {
		cfg.Payment.BetEndpoint = f.endpoint
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	payer, closeWallet, err := app.NewPayer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeWallet()

	res, err := payer.Pay(ctx, cfg.Payment.BetEndpoint, intent)
	if err != nil {
		if pe, ok := x402.AsPayError(err); ok {
			_ = printJSON(out, map[string]any{
				"success":     false,
				"kind":        pe.Kind,
				"phase":       pe.Phase,
				"detail":      pe.Detail,
				"quoteId":     pe.QuoteID,
				"txHash":      pe.TxHash,
				"fundsMoved":  pe.FundsMoved(),
				"safeToRetry": pe.SafeToRetry(),
			})
		}
		return err
	}
	return printJSON(out, res)
}
