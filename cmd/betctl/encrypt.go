package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/alanyoungcy/livebet/internal/crypto"
)

func runEncryptKey(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("encrypt-key", flag.ContinueOnError)
	path := fs.String("out", "wallet.key.json", "output key file")
	key := fs.String("key", "", "private key hex (default $LIVEBET_WALLET_PRIVATE_KEY)")
	password := fs.String("password", "", "encryption password (default $LIVEBET_WALLET_KEY_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *key == "" {
		*key = os.Getenv("LIVEBET_WALLET_PRIVATE_KEY")
	}
	if *password == "" {
		*password = os.Getenv("LIVEBET_WALLET_KEY_PASSWORD")
	}
	if *key == "" || *password == "" {
		return errors.New("a private key and password are required")
	}

	signer, err := crypto.NewSigner(*key)
	if err != nil {
		return err
	}
	if err := crypto.WriteKeyFile(*path, *key, *password); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s for %s\n", *path, signer.Address().Hex())
	return nil
}
