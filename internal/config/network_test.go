package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trebuchet-org/treb-deploy/internal/domain/config"
)

func TestNetworkResolver(t *testing.T) {
	resolver := NewNetworkResolver(&config.FoundryConfig{
		RpcEndpoints: map[string]string{
			"mainnet": "https://eth.example.org",
			"unset":   "${MISSING_RPC}",
			"anvil":   "http://127.0.0.1:8545",
		},
	})

	tests := []struct {
		name      string
		input     string
		wantURL   string
		simulated bool
		local     bool
		wantErr   string
	}{
		{name: "empty is simulated", input: "", simulated: true, local: true},
		{name: "simulated", input: "simulated", simulated: true, local: true},
		{name: "raw url", input: "https://rpc.example.org", wantURL: "https://rpc.example.org"},
		{name: "ipc path", input: "/tmp/geth.ipc", wantURL: "/tmp/geth.ipc", local: true},
		{name: "alias", input: "mainnet", wantURL: "https://eth.example.org"},
		{name: "local alias", input: "anvil", wantURL: "http://127.0.0.1:8545", local: true},
		{name: "unresolved env", input: "unset", wantErr: "unresolved rpc endpoint"},
		{name: "unknown", input: "goerli", wantErr: "available: simulated, anvil, mainnet, unset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network, err := resolver.Resolve(tt.input)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, network.RPCURL)
			assert.Equal(t, tt.simulated, network.Simulated)
			assert.Equal(t, tt.local, network.IsLocal())
		})
	}
}
