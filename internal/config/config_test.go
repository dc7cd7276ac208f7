package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  addr: ":8080"
db:
  dsn: "postgres://localhost/nexamarket"
chain:
  network: "testnet"
  rpc_endpoints:
    - "http://localhost:7229"
orders:
  min_amount_inr: "100"
pricing:
  fixed_inr_per_nexa: "0.00005"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "testnet", cfg.Chain.Network)
	assert.Equal(t, 30, cfg.Orders.ExpiryMinutes)
	assert.Equal(t, 3, cfg.Chain.FailoverThreshold)
	assert.Equal(t, "* * * * *", cfg.Sweeper.CronSpec)
	assert.Equal(t, "100", cfg.Orders.MinAmountINR)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("CHAIN_NETWORK", "mainnet")
	t.Setenv("RPC_ENDPOINTS", "http://node-a:7227, http://node-b:7227")
	t.Setenv("ORDER_EXPIRY_MINUTES", "45")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "mainnet", cfg.Chain.Network)
	assert.Equal(t, []string{"http://node-a:7227", "http://node-b:7227"}, cfg.Chain.RPCEndpoints)
	assert.Equal(t, 45, cfg.Orders.ExpiryMinutes)
}

func TestLoadRejectsUnknownNetwork(t *testing.T) {
	t.Setenv("CHAIN_NETWORK", "devnet")
	_, err := Load(writeConfig(t, sampleYAML))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain.network")
}

func TestLoadRequiresDSN(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  addr: ":8080"
chain:
  network: "testnet"
  rpc_endpoints: ["http://localhost:7229"]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db.dsn")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
