// Command betctl is the operator and player toolbox: pay for a bet through
// the 402 flow, sign and submit a market resolution, or encrypt a wallet key.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: betctl <command> [flags]

commands:
  pay          place a bet and settle its payment challenge
  resolve      sign and submit a market resolution as an admin
  encrypt-key  write an encrypted wallet key file

run "betctl <command> -h" for command flags`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	var err error
	switch os.Args[1] {
	case "pay":
		err = runPay(ctx, os.Args[2:], os.Stdout, logger)
	case "resolve":
		err = runResolve(ctx, os.Args[2:], os.Stdout)
	case "encrypt-key":
		err = runEncryptKey(os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Fprintln(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "betctl: unknown command %q\n\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "betctl %s: %v\n", os.Args[1], err)
		os.Exit(exitCode(err))
	}
}

// printJSON writes v indented.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
