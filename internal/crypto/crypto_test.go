package crypto

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACSignatureMatchesPublishedVector(t *testing.T) {
	sig := hmacSHA256Hex(
		[]byte("NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"),
		"symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559",
	)
	assert.Equal(t, "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71", sig)
}

func TestSignAt(t *testing.T) {
	auth := &HMACAuth{Key: "key", Secret: "secret"}
	params := url.Values{}
	params.Set("symbol", "ETHBTC")

	query := auth.SignAt(params, 5*time.Second, 1700000000000)
	assert.Equal(t,
		"recvWindow=5000&symbol=ETHBTC&timestamp=1700000000000&signature=bff5a6ea02c2a2d130935d7c3fa03be07c1bc88555a991bceb52ea5382978dc9",
		query)
	assert.Equal(t, "key", auth.Headers()["X-MBX-APIKEY"])
}

func TestHMACAuthEnabledAndRedacted(t *testing.T) {
	var nilAuth *HMACAuth
	assert.False(t, nilAuth.Enabled())
	assert.False(t, (&HMACAuth{Key: "k"}).Enabled())

	auth := &HMACAuth{Key: "abcdefgh", Secret: "supersecret"}
	assert.True(t, auth.Enabled())
	assert.NotContains(t, auth.String(), "supersecret")
}

func TestSecretRoundTrip(t *testing.T) {
	pbkdf2Iterations = 1000
	t.Cleanup(func() { pbkdf2Iterations = 480_000 })

	sealed, err := EncryptSecret("api-secret", "hunter2")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "api-secret")

	got, err := DecryptSecret(sealed, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "api-secret", got)

	_, err = DecryptSecret(sealed, "wrong")
	assert.Error(t, err)

	_, err = EncryptSecret("api-secret", "")
	assert.Error(t, err)
}

func TestLoadSecret(t *testing.T) {
	pbkdf2Iterations = 1000
	t.Cleanup(func() { pbkdf2Iterations = 480_000 })

	got, err := LoadSecret(SecretConfig{Raw: " raw "})
	require.NoError(t, err)
	assert.Equal(t, "raw", got)

	got, err = LoadSecret(SecretConfig{})
	require.NoError(t, err)
	assert.Empty(t, got)

	sealed, err := EncryptSecret("from-file", "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, sealed, 0o600))

	got, err = LoadSecret(SecretConfig{Path: path, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	_, err = LoadSecret(SecretConfig{Path: filepath.Join(t.TempDir(), "missing.json"), Password: "pw"})
	assert.Error(t, err)
}
