package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/livebet/internal/config"
	"github.com/alanyoungcy/livebet/internal/crypto"
	"github.com/alanyoungcy/livebet/internal/domain"
)

type resolveFlags struct {
	config  string
	server  string
	market  string
	winner  string
	ttl     time.Duration
	timeout time.Duration
}

func parseResolveFlags(args []string) (resolveFlags, error) {
	var f resolveFlags
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.StringVar(&f.config, "config", "config.toml", "path to configuration file")
	fs.StringVar(&f.server, "server", "", "betting API base URL (default admin.server_url)")
	fs.StringVar(&f.market, "market", "", "market id")
	fs.StringVar(&f.winner, "winner", "", "YES or NO")
	fs.DurationVar(&f.ttl, "ttl", 5*time.Minute, "how long the signature stays valid")
	fs.DurationVar(&f.timeout, "timeout", 15*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.market == "" || f.winner == "" {
		return f, errors.New("-market and -winner are required")
	}
	if f.ttl <= 0 {
		return f, errors.New("-ttl must be positive")
	}
	return f, nil
}

// resolveResponse covers both the success and error bodies.
type resolveResponse struct {
	Success    bool   `json:"success"`
	MarketID   string `json:"marketId,omitempty"`
	Winner     string `json:"winner,omitempty"`
	TotalBets  int64  `json:"totalBets,omitempty"`
	YesPool    string `json:"yesPool,omitempty"`
	NoPool     string `json:"noPool,omitempty"`
	ResolvedAt string `json:"resolvedAt,omitempty"`
	Error      string `json:"error,omitempty"`
	Code       string `json:"code,omitempty"`
}

// signResolution builds a signed request binding marketID and winner that
// the server honours until expiresAt.
func signResolution(signer *crypto.Signer, marketID string, winner domain.Outcome, expiresAt time.Time, nonce string) (domain.ResolutionRequest, error) {
	msg := domain.ResolutionMessage(marketID, winner, expiresAt, nonce)
	sig, err := signer.SignMessage(msg)
	if err != nil {
		return domain.ResolutionRequest{}, fmt.Errorf("sign resolution: %w", err)
	}
	return domain.ResolutionRequest{
		MarketID:     marketID,
		Winner:       string(winner),
		Signature:    sig,
		Message:      msg,
		AdminAddress: signer.Address().Hex(),
	}, nil
}

// submitResolution posts req to {server}/api/markets/{id}/resolve.
func submitResolution(ctx context.Context, hc *http.Client, server string, req domain.ResolutionRequest) (*resolveResponse, error) {
	target := strings.TrimRight(server, "/") + "/api/markets/" + url.PathEscape(req.MarketID) + "/resolve"
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", target, err)
	}
	defer resp.Body.Close()

	var out resolveResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !out.Success {
		return &out, fmt.Errorf("resolution rejected: status %d %s: %s", resp.StatusCode, out.Code, out.Error)
	}
	return &out, nil
}

func runResolve(ctx context.Context, args []string, out io.Writer) error {
	f, err := parseResolveFlags(args)
	if err != nil {
		return err
	}
	winner, ok := domain.ParseOutcome(f.winner)
	if !ok {
		return fmt.Errorf("invalid -winner %q: want YES or NO", f.winner)
	}

	cfg, err := config.Load(f.config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server := f.server
	if server == "" {
		server = cfg.Admin.ServerURL
	}
	if server == "" {
		return errors.New("no server: pass -server or set admin.server_url")
	}

	signer, err := crypto.LoadSigner(cfg.Wallet.KeyConfig())
	if err != nil {
		return fmt.Errorf("load admin key: %w", err)
	}
	req, err := signResolution(signer, f.market, winner, time.Now().Add(f.ttl), uuid.NewString())
	if err != nil {
		return err
	}

	res, err := submitResolution(ctx, &http.Client{Timeout: f.timeout}, server, req)
	if res != nil {
		_ = printJSON(out, res)
	}
	return err
}
