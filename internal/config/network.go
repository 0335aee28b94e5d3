package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/trebuchet-org/treb-deploy/internal/domain/config"
)

// NetworkResolver resolves a --network value to a concrete endpoint.
type NetworkResolver struct {
	foundryConfig *config.FoundryConfig
}

// NewNetworkResolver creates a new network resolver
func NewNetworkResolver(foundryConfig *config.FoundryConfig) *NetworkResolver {
	return &NetworkResolver{foundryConfig: foundryConfig}
}

// Resolve accepts the simulated network, a raw endpoint URL or IPC path, or an
// alias from foundry.toml [rpc_endpoints].
func (r *NetworkResolver) Resolve(networkName string) (*config.Network, error) {
	if networkName == "" || networkName == config.SimulatedNetwork {
		return &config.Network{Name: config.SimulatedNetwork, Simulated: true}, nil
	}

	if isEndpoint(networkName) {
		return &config.Network{Name: networkName, RPCURL: networkName}, nil
	}

	if r.foundryConfig != nil {
		if rpcURL, ok := r.foundryConfig.RpcEndpoints[networkName]; ok {
			if rpcURL == "" || strings.Contains(rpcURL, "${") {
				return nil, fmt.Errorf("network '%s' has an unresolved rpc endpoint %q (check your .env)", networkName, rpcURL)
			}
			return &config.Network{Name: networkName, RPCURL: rpcURL}, nil
		}
	}

	return nil, fmt.Errorf("network '%s' not found in foundry.toml [rpc_endpoints] (available: %s)",
		networkName, strings.Join(r.Available(), ", "))
}

// Available lists the resolvable network names.
func (r *NetworkResolver) Available() []string {
	names := []string{config.SimulatedNetwork}
	if r.foundryConfig != nil {
		aliases := make([]string, 0, len(r.foundryConfig.RpcEndpoints))
		for name := range r.foundryConfig.RpcEndpoints {
			aliases = append(aliases, name)
		}
		sort.Strings(aliases)
		names = append(names, aliases...)
	}
	return names
}

func isEndpoint(s string) bool {
	for _, prefix := range []string{"http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return strings.HasSuffix(s, ".ipc")
}
