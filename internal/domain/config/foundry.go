package config

// FoundryConfig is the subset of foundry.toml the deployer reads.
type FoundryConfig struct {
	Profile      map[string]ProfileConfig `toml:"profile"`
	RpcEndpoints map[string]string        `toml:"rpc_endpoints"`
}

// ProfileConfig represents a profile's foundry configuration
type ProfileConfig struct {
	SrcPath string `toml:"src,omitempty"`
	OutPath string `toml:"out,omitempty"`
}

// OutDir returns the artifacts directory configured for profile, falling
// back to the default profile.
func (c *FoundryConfig) OutDir(profile string) string {
	if c == nil {
		return ""
	}
	if p, ok := c.Profile[profile]; ok && p.OutPath != "" {
		return p.OutPath
	}
	return c.Profile["default"].OutPath
}
