package config

import (
	"strings"
	"time"
)

// SimulatedNetwork is the name of the in-process chain used when no RPC
// endpoint is configured.
const SimulatedNetwork = "simulated"

// RuntimeConfig represents the complete runtime configuration
// This is injected into use cases and contains all resolved settings
type RuntimeConfig struct {
	// Core settings
	ProjectRoot  string
	DataDir      string
	StateDir     string
	ArtifactsDir string

	// Context settings
	Network    *Network
	PrivateKey string
	// Sender is the deployer address used by dry runs that have no key
	Sender string

	// Execution settings
	Parallelism         int
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
	Retry               RetryConfig
	Timeout             time.Duration
	Debug               bool
	NonInteractive      bool

	// Command-specific settings (only populated for relevant commands)
	DryRun      bool
	MetricsFile string

	// Resolved configurations
	FoundryConfig *FoundryConfig
}

// RetryConfig bounds how transient provider failures are retried.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Network represents network configuration
type Network struct {
	Name      string `json:"name"`
	RPCURL    string `json:"rpcUrl,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`
}

// IsLocal reports whether the network is a development chain where a
// well-known key may be used and confirmation prompts are skipped.
func (n *Network) IsLocal() bool {
	if n == nil || n.Simulated {
		return true
	}
	url := strings.ToLower(n.RPCURL)
	return strings.Contains(url, "://localhost") ||
		strings.Contains(url, "://127.0.0.1") ||
		strings.HasSuffix(url, ".ipc")
}
