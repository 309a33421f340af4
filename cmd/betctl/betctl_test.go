package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/livebet/internal/crypto"
	"github.com/alanyoungcy/livebet/internal/domain"
	"github.com/alanyoungcy/livebet/internal/x402"
)

const (
	adminKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	adminAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestParsePayFlags(t *testing.T) {
	f, err := parsePayFlags([]string{"-market", "m1", "-outcome", "YES", "-stake", "0.05", "-sport", "soccer"})
	require.NoError(t, err)

	intent, err := f.intent()
	require.NoError(t, err)
	assert.Equal(t, "m1", intent.MarketID)
	assert.Equal(t, domain.OutcomeYes, intent.Outcome)
	assert.Equal(t, "0.05", intent.Stake.String())
	assert.Equal(t, "soccer", intent.CategoryOrSport())
}

func TestParsePayFlagsRejects(t *testing.T) {
	_, err := parsePayFlags([]string{"-market", "m1"})
	require.Error(t, err)

	f, err := parsePayFlags([]string{"-market", "m1", "-stake", "abc"})
	require.NoError(t, err)
	_, err = f.intent()
	require.Error(t, err)

	f, err = parsePayFlags([]string{"-market", "m1", "-stake", "1", "-outcome", "maybe"})
	require.NoError(t, err)
	_, err = f.intent()
	require.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitFailed, exitCode(errors.New("boom")))
	assert.Equal(t, exitFailed, exitCode(&x402.PayError{Kind: x402.KindRequestFailed}))
	wrapped := fmt.Errorf("pay: %w", &x402.PayError{Kind: x402.KindConfirmationFailed, TxHash: "0xabc"})
	assert.Equal(t, exitFundsMoved, exitCode(wrapped))
}

func TestSignResolutionRecoversAdmin(t *testing.T) {
	signer, err := crypto.NewSigner(adminKey)
	require.NoError(t, err)

	exp := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	req, err := signResolution(signer, "m1", domain.OutcomeNo, exp, "nonce-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionMessage("m1", domain.OutcomeNo, exp, "nonce-1"), req.Message)
	got, ok := domain.ResolutionMessageExpiry(req.Message)
	require.True(t, ok)
	assert.True(t, got.Equal(exp))
	assert.Equal(t, adminAddress, req.AdminAddress)

	got, err := crypto.VerifyMessage(req.Message, req.Signature, req.AdminAddress)
	require.NoError(t, err)
	assert.Equal(t, adminAddress, got.Hex())
}

func TestParseResolveFlags(t *testing.T) {
	f, err := parseResolveFlags([]string{"-market", "m1", "-winner", "YES"})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, f.ttl)

	_, err = parseResolveFlags([]string{"-market", "m1", "-winner", "YES", "-ttl", "0s"})
	require.Error(t, err)
	_, err = parseResolveFlags([]string{"-winner", "YES"})
	require.Error(t, err)
}

func TestSubmitResolution(t *testing.T) {
	var seen domain.ResolutionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/markets/m1/resolve", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"marketId":"m1","winner":"YES","totalBets":2,"yesPool":"0.3","noPool":"0.1"}`))
	}))
	defer srv.Close()

	signer, err := crypto.NewSigner(adminKey)
	require.NoError(t, err)
	req, err := signResolution(signer, "m1", domain.OutcomeYes, time.Now().Add(time.Minute), "n1")
	require.NoError(t, err)

	res, err := submitResolution(context.Background(), srv.Client(), srv.URL+"/", req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "YES", res.Winner)
	assert.Equal(t, int64(2), res.TotalBets)
	assert.Equal(t, req.Signature, seen.Signature)
}

func TestSubmitResolutionRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"success":false,"error":"market already resolved","code":"MARKET_ALREADY_RESOLVED"}`))
	}))
	defer srv.Close()

	signer, err := crypto.NewSigner(adminKey)
	require.NoError(t, err)
	req, err := signResolution(signer, "m1", domain.OutcomeYes, time.Now().Add(time.Minute), "n1")
	require.NoError(t, err)

	res, err := submitResolution(context.Background(), srv.Client(), srv.URL, req)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "MARKET_ALREADY_RESOLVED", res.Code)
	assert.Contains(t, err.Error(), "409")
}

func TestRunEncryptKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "admin.json")
	var out bytes.Buffer

	err := runEncryptKey([]string{"-out", path, "-key", adminKey, "-password", "hunter22"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), adminAddress)

	signer, err := crypto.LoadSigner(crypto.KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, adminAddress, signer.Address().Hex())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRunEncryptKeyRequiresPassword(t *testing.T) {
	t.Setenv("LIVEBET_WALLET_KEY_PASSWORD", "")
	err := runEncryptKey([]string{"-out", filepath.Join(t.TempDir(), "k.json"), "-key", adminKey}, &bytes.Buffer{})
	require.Error(t, err)
}
