package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/xstockarb/internal/crypto"
)

func encryptKeyCmd() *cobra.Command {
	var (
		out      string
		password string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "encrypt-key",
		Short: "Encrypt a wallet secret into a key file",
		Long: `Reads a base58 secret or a solana-keygen JSON byte array from stdin and
writes it to --out encrypted with the password. The password is taken from
--password or XSTOCK_WALLET_KEY_PASSWORD. Add the file to wallets.key_files and set
wallets.key_password to use it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("XSTOCK_WALLET_KEY_PASSWORD")
			}
			if password == "" {
				return errors.New("a password is required (--password or XSTOCK_WALLET_KEY_PASSWORD)")
			}
			secret, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			pub, err := writeKeyFile(out, secret, password, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s for wallet %s\n", out, pub)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "wallet.key.json", "file to write")
	cmd.Flags().StringVarP(&password, "password", "p", "", "encryption password")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

// readSecret returns the first non-empty line of r.
func readSecret(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return "", errors.New("no secret on stdin")
}

// writeKeyFile encrypts secret and writes it to path with owner-only
// permissions. It returns the wallet address.
func writeKeyFile(path, secret, password string, force bool) (string, error) {
	key, err := crypto.ParsePrivateKey(secret)
	if err != nil {
		return "", err
	}
	blob, err := crypto.EncryptKey(key, password)
	if err != nil {
		return "", err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return "", fmt.Errorf("create key file: %w", err)
	}
	if _, err := f.Write(blob); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write key file: %w", err)
	}
	return key.PublicKey().String(), nil
}
