package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/trebuchet-org/treb-deploy/internal/domain/config"
)

// DefaultDevKey is the first well-known anvil/hardhat development account.
// It is only ever used against local networks.
const DefaultDevKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80" //nolint:gosec // public development key

// flagKeys maps flag names whose viper key differs from the dash-to-underscore form.
var flagKeys = map[string]string{
	"retry-attempts":   "retry.attempts",
	"retry-base-delay": "retry.base_delay",
	"retry-max-delay":  "retry.max_delay",
}

// Provider creates RuntimeConfig for Wire dependency injection
func Provider(v *viper.Viper) (*config.RuntimeConfig, error) {
	projectRoot := v.GetString("project_root")
	if projectRoot == "" {
		var err error
		projectRoot, err = FindProjectRoot()
		if err != nil {
			return nil, fmt.Errorf("failed to find project root: %w", err)
		}
	}
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	dataDir := filepath.Join(projectRoot, ".treb")
	cfg := &config.RuntimeConfig{
		ProjectRoot:         projectRoot,
		DataDir:             dataDir,
		StateDir:            resolvePath(projectRoot, v.GetString("state_dir")),
		Parallelism:         v.GetInt("parallelism"),
		ConfirmationTimeout: v.GetDuration("confirmation_timeout"),
		PollInterval:        v.GetDuration("poll_interval"),
		Retry: config.RetryConfig{
			Attempts:  v.GetInt("retry.attempts"),
			BaseDelay: v.GetDuration("retry.base_delay"),
			MaxDelay:  v.GetDuration("retry.max_delay"),
		},
		Timeout:        v.GetDuration("timeout"),
		Debug:          v.GetBool("debug"),
		NonInteractive: v.GetBool("non_interactive"),
		DryRun:         v.GetBool("dry_run"),
		PrivateKey:     v.GetString("private_key"),
		Sender:         v.GetString("sender"),
	}
	if mf := v.GetString("metrics_file"); mf != "" {
		cfg.MetricsFile = resolvePath(projectRoot, mf)
	}

	foundryConfig, err := loadFoundryConfig(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load foundry config: %w", err)
	}
	cfg.FoundryConfig = foundryConfig

	artifactsDir := v.GetString("artifacts_dir")
	if artifactsDir == "" {
		artifactsDir = foundryConfig.OutDir(v.GetString("profile"))
	}
	if artifactsDir == "" {
		artifactsDir = "out"
	}
	cfg.ArtifactsDir = resolvePath(projectRoot, artifactsDir)

	network, err := NewNetworkResolver(foundryConfig).Resolve(v.GetString("network"))
	if err != nil {
		return nil, err
	}
	cfg.Network = network

	if cfg.PrivateKey == "" {
		switch {
		case network.IsLocal():
			cfg.PrivateKey = DefaultDevKey
		case cfg.DryRun && cfg.Sender != "":
			// addresses are predicted from the sender's nonce, no key needed
		case cfg.DryRun:
			return nil, fmt.Errorf("dry run on %s needs the deployer: set --sender or --private-key", network.Name)
		default:
			return nil, fmt.Errorf("private key is required for network %s (set TREB_PRIVATE_KEY or --private-key)", network.Name)
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *config.RuntimeConfig) error {
	if cfg.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", cfg.Parallelism)
	}
	if cfg.Retry.Attempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", cfg.Retry.Attempts)
	}
	if cfg.ConfirmationTimeout <= 0 {
		return fmt.Errorf("confirmation timeout must be positive")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if cfg.Sender != "" && !common.IsHexAddress(cfg.Sender) {
		return fmt.Errorf("invalid sender address %q", cfg.Sender)
	}
	return nil
}

func resolvePath(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// FindProjectRoot walks up from current directory to find foundry.toml or a
// .treb directory, falling back to the current directory.
func FindProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := cwd
	for {
		for _, marker := range []string{"foundry.toml", ".treb"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd, nil
		}
		dir = parent
	}
}

// SetupViper creates and configures a viper instance
func SetupViper(projectRoot string, cmd *cobra.Command) *viper.Viper {
	v := viper.New()

	// Set up config file
	v.SetConfigName("config.local")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(projectRoot, ".treb"))

	// Set up environment variables
	v.SetEnvPrefix("TREB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	// Set defaults
	v.SetDefault("project_root", projectRoot)
	v.SetDefault("network", config.SimulatedNetwork)
	v.SetDefault("profile", "default")
	v.SetDefault("parallelism", 1)
	v.SetDefault("confirmation_timeout", "2m")
	v.SetDefault("poll_interval", "1s")
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.base_delay", "500ms")
	v.SetDefault("retry.max_delay", "10s")
	v.SetDefault("timeout", "30m")
	v.SetDefault("debug", false)
	v.SetDefault("non_interactive", false)
	v.SetDefault("state_dir", filepath.Join(".treb", "runs"))

	// Try to read config file (ignore error if not found)
	_ = v.ReadInConfig()

	if cmd != nil {
		bind := func(f *pflag.Flag) {
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			if err := v.BindPFlag(key, f); err != nil {
				panic(err)
			}
		}
		cmd.Flags().VisitAll(bind)
		cmd.InheritedFlags().VisitAll(bind)
	}

	return v
}
