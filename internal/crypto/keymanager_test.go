package crypto

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	k, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return k
}

func TestParsePrivateKeyBase58(t *testing.T) {
	k := newKey(t)

	got, err := ParsePrivateKey(k.String())
	require.NoError(t, err)
	assert.Equal(t, k.PublicKey(), got.PublicKey())
}

func TestParsePrivateKeyJSONArray(t *testing.T) {
	k := newKey(t)
	ints := make([]int, len(k))
	for i, b := range k {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)

	got, err := ParsePrivateKey(" " + string(raw) + "\n")
	require.NoError(t, err)
	assert.Equal(t, k.PublicKey(), got.PublicKey())
}

func TestParsePrivateKeyRejectsMalformed(t *testing.T) {
	k := newKey(t)
	tampered := append(solana.PrivateKey(nil), k...)
	tampered[63] ^= 0xff

	cases := map[string]string{
		"empty":          "",
		"not base58":     "0OIl",
		"short array":    "[1,2,3]",
		"out of range":   "[256]",
		"bad json":       "[1,2,",
		"mismatched pub": tampered.String(),
	}
	for name, secret := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePrivateKey(secret)
			assert.Error(t, err)
		})
	}
}

func TestEncryptDecryptKeyFile(t *testing.T) {
	k := newKey(t)

	blob, err := EncryptKey(k, "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(blob), k.String())

	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadKeyFile(path, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, k.PublicKey(), got.PublicKey())

	_, err = DecryptKey(blob, "wrong")
	assert.ErrorContains(t, err, "decryption failed")

	_, err = EncryptKey(k, "")
	assert.Error(t, err)
}
