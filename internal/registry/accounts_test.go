package registry

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/tradegate/internal/secrets"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func demoConnect() ConnectInput {
	return ConnectInput{
		AccountID:         "acct_demo_1",
		ConnectorID:       "metaapi",
		ProviderAccountID: "prov_123",
		Mode:              "demo",
		Label:             "Demo ETH",
		AllowedSymbols:    []string{"ETHUSDm"},
	}
}

func TestAccountConnectAndGet(t *testing.T) {
	reg, err := NewAccountRegistry(filepath.Join(t.TempDir(), "accounts.json"), nil, testLogger())
	require.NoError(t, err)

	account, err := reg.Connect(demoConnect())
	require.NoError(t, err)
	assert.Equal(t, "connected", account.Status)
	require.NotNil(t, account.ConnectedAt)
	assert.Nil(t, account.DisconnectedAt)

	got, ok := reg.Get("acct_demo_1")
	require.True(t, ok)
	assert.Equal(t, account, got)

	_, ok = reg.Get("acct_missing")
	assert.False(t, ok)
}

func TestAccountConnectIsIdempotentUpsert(t *testing.T) {
	reg, err := NewAccountRegistry(filepath.Join(t.TempDir(), "accounts.json"), nil, testLogger())
	require.NoError(t, err)

	_, err = reg.Connect(demoConnect())
	require.NoError(t, err)

	input := demoConnect()
	input.Label = "Renamed"
	input.AllowedSymbols = []string{"ETHUSDm", "BTCUSDm"}
	account, err := reg.Connect(input)
	require.NoError(t, err)

	assert.Equal(t, "Renamed", account.Label)
	assert.Len(t, reg.List(), 1)
}

func TestAccountDisconnectThenReconnect(t *testing.T) {
	reg, err := NewAccountRegistry(filepath.Join(t.TempDir(), "accounts.json"), nil, testLogger())
	require.NoError(t, err)

	_, err = reg.Connect(demoConnect())
	require.NoError(t, err)

	account, ok := reg.Disconnect("acct_demo_1")
	require.True(t, ok)
	assert.Equal(t, "disconnected", account.Status)
	require.NotNil(t, account.DisconnectedAt)

	_, ok = reg.Disconnect("acct_missing")
	assert.False(t, ok)

	account, err = reg.Connect(demoConnect())
	require.NoError(t, err)
	assert.Equal(t, "connected", account.Status)
	assert.Nil(t, account.DisconnectedAt)
}

func TestAccountRegistryReloadsIdenticalState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")

	reg, err := NewAccountRegistry(path, nil, testLogger())
	require.NoError(t, err)
	original, err := reg.Connect(demoConnect())
	require.NoError(t, err)

	reloaded, err := NewAccountRegistry(path, nil, testLogger())
	require.NoError(t, err)
	got, ok := reloaded.Get("acct_demo_1")
	require.True(t, ok)
	assert.Equal(t, original.PublicPayload(), got.PublicPayload())
}

func TestAccountRegistrySkipsMalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	raw := `{"version":1,"accounts":[{"accountId":"acct_ok","status":"connected"},{"status":"orphan"}]}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	reg, err := NewAccountRegistry(path, nil, testLogger())
	require.NoError(t, err)
	assert.Len(t, reg.List(), 1)
}

func TestAccountCredentialsSealedAtRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.json")
	sealer, err := secrets.NewSealer("registry test passphrase")
	require.NoError(t, err)

	reg, err := NewAccountRegistry(path, sealer, testLogger())
	require.NoError(t, err)

	input := demoConnect()
	input.Credentials = "metaapi-token-xyz"
	account, err := reg.Connect(input)
	require.NoError(t, err)

	// The public payload never exposes credentials.
	assert.NotContains(t, account.PublicPayload(), "sealedCredentials")

	// The file holds ciphertext only.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "metaapi-token-xyz")

	// A reloaded registry can still unseal.
	reloaded, err := NewAccountRegistry(path, sealer, testLogger())
	require.NoError(t, err)
	plaintext, err := reloaded.Credentials("acct_demo_1")
	require.NoError(t, err)
	assert.Equal(t, "metaapi-token-xyz", plaintext)
}

func TestAccountCredentialsRequireSealer(t *testing.T) {
	reg, err := NewAccountRegistry("", nil, testLogger())
	require.NoError(t, err)

	input := demoConnect()
	input.Credentials = "secret"
	_, err = reg.Connect(input)
	assert.Error(t, err)
}
