package wallet

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livebet/internal/crypto"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

type chain struct {
	backend *simulated.Backend
	session *Session
}

func newChain(t *testing.T) *chain {
	t.Helper()

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.NewSignerFromKey(key)

	backend := simulated.NewBackend(types.GenesisAlloc{
		signer.Address(): {Balance: ether(100)},
	})
	t.Cleanup(func() { _ = backend.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewSession(context.Background(), backend.Client(), signer, 1337, logger)
	require.NoError(t, err)
	s.poll = 10 * time.Millisecond

	return &chain{backend: backend, session: s}
}

func TestNewSessionChainMismatch(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	backend := simulated.NewBackend(types.GenesisAlloc{})
	defer backend.Close()

	_, err = NewSession(context.Background(), backend.Client(), crypto.NewSignerFromKey(key), 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestConnectRequiresRPC(t *testing.T) {
	_, err := Connect(context.Background(), Config{}, slog.Default())
	require.Error(t, err)
}

func TestSendPaymentAndVerify(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	payee := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	hash, err := c.session.SendPayment(ctx, payee, ether(1))
	require.NoError(t, err)
	c.backend.Commit()

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	receipt, err := c.session.WaitMined(rctx, hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	bal, err := c.backend.Client().BalanceAt(ctx, payee, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, bal.Cmp(ether(1)))

	v := NewVerifier(c.backend.Client(), 0)
	require.NoError(t, v.VerifyTransfer(ctx, hash.Hex(), payee, ether(1)))

	err = v.VerifyTransfer(ctx, hash.Hex(), c.session.Address(), ether(1))
	require.ErrorIs(t, err, ErrWrongRecipient)

	err = v.VerifyTransfer(ctx, hash.Hex(), payee, ether(2))
	require.ErrorIs(t, err, ErrUnderpaid)
}

func TestSequentialPaymentsUseFreshNonces(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	payee := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	h1, err := c.session.SendPayment(ctx, payee, big.NewInt(1000))
	require.NoError(t, err)
	h2, err := c.session.SendPayment(ctx, payee, big.NewInt(2000))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
	c.backend.Commit()

	v := NewVerifier(c.backend.Client(), 0)
	require.NoError(t, v.VerifyTransfer(ctx, h1.Hex(), payee, big.NewInt(1000)))
	require.NoError(t, v.VerifyTransfer(ctx, h2.Hex(), payee, big.NewInt(2000)))
}

func TestVerifyUnknownTransfer(t *testing.T) {
	c := newChain(t)
	v := NewVerifier(c.backend.Client(), 0)

	err := v.VerifyTransfer(context.Background(), common.BytesToHash([]byte("nope")).Hex(), common.Address{}, big.NewInt(1))
	require.ErrorIs(t, err, ErrTxNotFound)

	err = v.VerifyTransfer(context.Background(), "0x1234", common.Address{}, big.NewInt(1))
	require.ErrorIs(t, err, ErrTxNotFound)
}

func TestSendPaymentRejectsZero(t *testing.T) {
	c := newChain(t)
	_, err := c.session.SendPayment(context.Background(), common.Address{1}, big.NewInt(0))
	require.Error(t, err)
}

func TestVerifyWaitsForPendingTransfer(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	payee := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	hash, err := c.session.SendPayment(ctx, payee, ether(1))
	require.NoError(t, err)

	// Not mined yet and no grace period: reported as pending, not failed.
	err = NewVerifier(c.backend.Client(), 0).VerifyTransfer(ctx, hash.Hex(), payee, ether(1))
	require.ErrorIs(t, err, ErrTxPending)

	v := NewVerifier(c.backend.Client(), 5*time.Second)
	v.poll = 10 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- v.VerifyTransfer(ctx, hash.Hex(), payee, ether(1)) }()

	select {
	case err := <-done:
		t.Fatalf("verify returned before the block was mined: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	c.backend.Commit()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("verify did not observe the mined transfer")
	}
}

func TestWaitMinedBlocksUntilCommit(t *testing.T) {
	c := newChain(t)
	ctx := context.Background()
	payee := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	hash, err := c.session.SendPayment(ctx, payee, ether(1))
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = c.session.WaitMined(short, hash)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	c.backend.Commit()
	rctx, cancel2 := context.WithTimeout(ctx, 5*time.Second)
	defer cancel2()
	receipt, err := c.session.WaitMined(rctx, hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
}
