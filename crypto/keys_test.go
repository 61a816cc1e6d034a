package crypto

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/stretchr/testify/require"
)

func lightKeystores(t *testing.T) {
	t.Helper()
	n, p := KeystoreScryptN, KeystoreScryptP
	KeystoreScryptN, KeystoreScryptP = keystore.LightScryptN, keystore.LightScryptP
	t.Cleanup(func() { KeystoreScryptN, KeystoreScryptP = n, p })
}

func TestAddressRoundTripBech32AndHex(t *testing.T) {
	addr := MustDeriveAddress("config")

	encoded := addr.String()
	require.True(t, strings.HasPrefix(encoded, "tip1"))
	decoded, err := DecodeAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, addr, decoded)

	fromHex, err := DecodeAddress(addr.Hex())
	require.NoError(t, err)
	require.Equal(t, addr, fromHex)

	_, err = DecodeAddress("")
	require.Error(t, err)
	_, err = DecodeAddress("0x1234")
	require.Error(t, err)
}

func TestSignAndRecoverAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	digest := Keccak256([]byte("tip_send"), []byte("payload"))
	sig, err := key.Sign(digest)
	require.NoError(t, err)

	recovered, err := RecoverAddress(digest, sig)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address(), recovered)

	legacy := append([]byte{}, sig...)
	legacy[64] += 27
	recovered, err = RecoverAddress(digest, legacy)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address(), recovered)

	_, err = RecoverAddress(digest, sig[:64])
	require.Error(t, err)
}

func TestKeystoreRoundTrip(t *testing.T) {
	lightKeystores(t)
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "operator.json")
	require.NoError(t, SaveToKeystore(path, key, "correct horse"))

	loaded, err := LoadFromKeystore(path, "correct horse")
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address(), loaded.PubKey().Address())

	_, err = LoadFromKeystore(path, "wrong")
	require.Error(t, err)
}

func TestKeystoreUsesStandardScryptCost(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "operator.json")
	require.NoError(t, SaveToKeystore(path, key, "correct horse"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var file struct {
		Crypto struct {
			KDF       string `json:"kdf"`
			KDFParams struct {
				N int `json:"n"`
				P int `json:"p"`
			} `json:"kdfparams"`
		} `json:"crypto"`
	}
	require.NoError(t, json.Unmarshal(raw, &file))
	require.Equal(t, "scrypt", file.Crypto.KDF)
	require.Equal(t, keystore.StandardScryptN, file.Crypto.KDFParams.N)
	require.Equal(t, keystore.StandardScryptP, file.Crypto.KDFParams.P)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
