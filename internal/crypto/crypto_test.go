package crypto

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignRequest_RoundTrip(t *testing.T) {
	s, err := NewSigner("0x" + testKey)
	require.NoError(t, err)

	ts := time.Unix(1_700_000_000, 0)
	body := []byte(`{"count":3}`)
	sig, err := s.SignRequest("post", "/api/tickets", ts, body)
	require.NoError(t, err)
	assert.Len(t, sig, 2+130)

	got, err := RecoverRequest("POST", "/api/tickets", ts.Unix(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)

	other, err := RecoverRequest("POST", "/api/tickets", ts.Unix(), []byte(`{"count":4}`), sig)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), other)
}

func TestRecoverRequest_Malformed(t *testing.T) {
	_, err := RecoverRequest("GET", "/", 0, nil, "0xzz")
	require.ErrorIs(t, err, ErrBadSignature)

	_, err = RecoverRequest("GET", "/", 0, nil, "0x1234")
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestRequestMessage(t *testing.T) {
	assert.Equal(t, "PUT\n/api/admin/max-buy\n42\n{}", string(RequestMessage("put", "/api/admin/max-buy", 42, []byte("{}"))))
}

func TestEncryptDecryptKey(t *testing.T) {
	blob, err := EncryptKey("0x"+testKey, "hunter2")
	require.NoError(t, err)

	plain, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKey, plain)

	_, err = DecryptKey(blob, "wrong")
	require.Error(t, err)

	_, err = EncryptKey(testKey, "")
	require.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	want, err := ParseKey(testKey)
	require.NoError(t, err)

	raw, err := LoadKey(KeyConfig{RawPrivateKey: testKey})
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.PubkeyToAddress(want.PublicKey), ethcrypto.PubkeyToAddress(raw.PublicKey))

	blob, err := EncryptKey(testKey, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	fromFile, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.True(t, want.Equal(fromFile))

	_, err = LoadKey(KeyConfig{})
	require.Error(t, err)
}

func TestGenerateKey(t *testing.T) {
	k, err := GenerateKey()
	require.NoError(t, err)
	_, err = ParseKey(k)
	require.NoError(t, err)
}
