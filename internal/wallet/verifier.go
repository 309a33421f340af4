package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Transfer verification failures.
var (
	ErrTxNotFound     = errors.New("transaction not found")
	ErrTxPending      = errors.New("transaction still pending")
	ErrTxReverted     = errors.New("transaction reverted")
	ErrWrongRecipient = errors.New("transaction paid a different address")
	ErrUnderpaid      = errors.New("transaction value below quoted amount")
)

// Verifier checks that a submitted transfer actually paid what a quote asked
// for. It only reads from the chain.
type Verifier struct {
	client ethereum.TransactionReader
	wait   time.Duration
	poll   time.Duration
}

// NewVerifier returns a Verifier reading from client. A transfer that is not
// mined yet is polled for up to wait before it is reported as pending.
func NewVerifier(client ethereum.TransactionReader, wait time.Duration) *Verifier {
	return &Verifier{client: client, wait: wait, poll: time.Second}
}

// VerifyTransfer succeeds when txHash is mined with a success status, its
// recipient is to and its value is at least minWei.
func (v *Verifier) VerifyTransfer(ctx context.Context, txHash string, to common.Address, minWei *big.Int) error {
	if len(common.FromHex(txHash)) != common.HashLength {
		return fmt.Errorf("wallet/verify: %w: malformed hash %q", ErrTxNotFound, txHash)
	}
	hash := common.HexToHash(txHash)

	receipt, err := v.receipt(ctx, hash)
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("wallet/verify: %w: %s", ErrTxReverted, txHash)
	}

	tx, _, err := v.client.TransactionByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("wallet/verify: tx %s: %w", txHash, err)
	}

	if tx.To() == nil || *tx.To() != to {
		return fmt.Errorf("wallet/verify: %w: %s", ErrWrongRecipient, txHash)
	}
	if minWei != nil && tx.Value().Cmp(minWei) < 0 {
		return fmt.Errorf("wallet/verify: %w: paid %s, quoted %s", ErrUnderpaid, tx.Value(), minWei)
	}
	return nil
}

// receipt returns the receipt of hash, waiting up to v.wait for a transfer
// that has not been mined yet.
func (v *Verifier) receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	r, err := v.client.TransactionReceipt(ctx, hash)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return nil, fmt.Errorf("wallet/verify: receipt %s: %w", hash.Hex(), err)
	}

	if v.wait > 0 {
		wctx, cancel := context.WithTimeout(ctx, v.wait)
		r, err = waitReceipt(wctx, v.client, hash, v.poll)
		cancel()
		if err == nil {
			return r, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}

	if _, _, err := v.client.TransactionByHash(ctx, hash); errors.Is(err, ethereum.NotFound) {
		return nil, fmt.Errorf("wallet/verify: %w: %s", ErrTxNotFound, hash.Hex())
	}
	return nil, fmt.Errorf("wallet/verify: %w: %s", ErrTxPending, hash.Hex())
}
