package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/livebet/internal/config"
	"github.com/alanyoungcy/livebet/internal/wallet"
	"github.com/alanyoungcy/livebet/internal/x402"
)

// NewPayer connects the configured wallet once and returns a payment client
// bound to it. The returned cleanup closes the wallet session.
func NewPayer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*x402.Client, func(), error) {
	session, err := wallet.Connect(ctx, wallet.Config{
		RPCURL:  cfg.Chain.RPCURL,
		ChainID: cfg.Chain.ChainID,
		Key:     cfg.Wallet.KeyConfig(),
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("app: connect wallet: %w", err)
	}

	logger.InfoContext(ctx, "wallet connected",
		slog.String("address", session.Address().Hex()),
		slog.String("chain_id", session.ChainID().String()),
	)

	client := x402.NewClient(x402.Config{
		ConfirmURL:     cfg.Payment.ConfirmEndpoint,
		RequestTimeout: cfg.Payment.RequestTimeout.Duration,
		WalletTimeout:  cfg.Payment.WalletTimeout.Duration,
		Decimals:       cfg.Chain.Decimals,
	}, session, logger)
	return client, session.Close, nil
}
