// Package wallet owns the process-wide wallet connection: one RPC client and
// one signing key, created once by Connect and handed to whatever needs to
// pay or verify payments.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/livebet/internal/crypto"
)

// ChainClient is the subset of an Ethereum RPC client a Session uses. Both
// *ethclient.Client and the simulated backend's client satisfy it.
type ChainClient interface {
	ethereum.ChainIDReader
	ethereum.ChainReader
	ethereum.PendingStateReader
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.GasPricer1559
	ethereum.TransactionReader
	ethereum.TransactionSender
}

// Config is what Connect needs to open a session.
type Config struct {
	RPCURL  string
	ChainID int64 // 0 skips the chain id check
	Key     crypto.KeyConfig
}

// Session is a connected wallet. It is safe for concurrent use; transfers
// are serialised so nonces never collide.
type Session struct {
	client  ChainClient
	signer  *crypto.Signer
	chainID *big.Int
	closer  func()
	logger  *slog.Logger
	poll    time.Duration

	mu sync.Mutex
}

// Connect dials the RPC endpoint, loads the signing key and checks the chain
// id. It is meant to be called once at startup.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Session, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("wallet: rpc url is required")
	}
	signer, err := crypto.LoadSigner(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("wallet: load key: %w", err)
	}

	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("wallet: dial %s: %w", cfg.RPCURL, err)
	}

	s, err := NewSession(ctx, ec, signer, cfg.ChainID, logger)
	if err != nil {
		ec.Close()
		return nil, err
	}
	s.closer = ec.Close
	return s, nil
}

// NewSession wraps an existing client. When wantChainID is non-zero the
// node's chain id must match it.
func NewSession(ctx context.Context, client ChainClient, signer *crypto.Signer, wantChainID int64, logger *slog.Logger) (*Session, error) {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet: chain id: %w", err)
	}
	if wantChainID != 0 && chainID.Int64() != wantChainID {
		return nil, fmt.Errorf("wallet: node is on chain %s, configured for %d", chainID, wantChainID)
	}

	s := &Session{
		client:  client,
		signer:  signer,
		chainID: chainID,
		logger:  logger.With(slog.String("component", "wallet")),
		poll:    time.Second,
	}
	s.logger.Info("wallet: connected",
		slog.String("address", signer.Address().Hex()),
		slog.String("chain_id", chainID.String()),
	)
	return s, nil
}

// Address returns the session's account.
func (s *Session) Address() common.Address {
	return s.signer.Address()
}

// Signer exposes the session key for message signing.
func (s *Session) Signer() *crypto.Signer {
	return s.signer
}

// ChainID returns the connected chain id.
func (s *Session) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// Client returns the underlying chain client.
func (s *Session) Client() ChainClient {
	return s.client
}

// Close releases the RPC connection if the session owns it.
func (s *Session) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// SendPayment transfers wei to the given address in one transaction and
// returns its hash. It submits exactly once and never retries.
func (s *Session) SendPayment(ctx context.Context, to common.Address, wei *big.Int) (common.Hash, error) {
	if wei == nil || wei.Sign() <= 0 {
		return common.Hash{}, errors.New("wallet: transfer value must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.signer.Address()
	nonce, err := s.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("wallet: nonce: %w", err)
	}

	gas, err := s.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: wei})
	if err != nil {
		return common.Hash{}, fmt.Errorf("wallet: estimate gas: %w", err)
	}

	txData, err := s.buildTx(ctx, nonce, to, wei, gas)
	if err != nil {
		return common.Hash{}, err
	}

	signed, err := types.SignTx(types.NewTx(txData), types.LatestSignerForChainID(s.chainID), s.signer.PrivateKey())
	if err != nil {
		return common.Hash{}, fmt.Errorf("wallet: sign tx: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("wallet: send tx: %w", err)
	}

	s.logger.Info("wallet: transfer submitted",
		slog.String("to", to.Hex()),
		slog.String("wei", wei.String()),
		slog.Uint64("nonce", nonce),
		slog.String("tx_hash", signed.Hash().Hex()),
	)
	return signed.Hash(), nil
}

// buildTx picks EIP-1559 fees when the chain reports a base fee and a
// legacy gas price otherwise.
func (s *Session) buildTx(ctx context.Context, nonce uint64, to common.Address, wei *big.Int, gas uint64) (types.TxData, error) {
	head, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("wallet: head: %w", err)
	}

	if head.BaseFee != nil {
		tip, err := s.client.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("wallet: tip cap: %w", err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		return &types.DynamicFeeTx{
			ChainID:   s.chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     wei,
		}, nil
	}

	price, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet: gas price: %w", err)
	}
	return &types.LegacyTx{
		Nonce:    nonce,
		GasPrice: price,
		Gas:      gas,
		To:       &to,
		Value:    wei,
	}, nil
}

// WaitMined polls for the receipt of hash until it appears or ctx ends.
// A mined but reverted transfer is returned with its failed receipt.
func (s *Session) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return waitReceipt(ctx, s.client, hash, s.poll)
}

func waitReceipt(ctx context.Context, client ethereum.TransactionReader, hash common.Hash, every time.Duration) (*types.Receipt, error) {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("wallet: receipt %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
