package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trebuchet-org/treb-deploy/internal/config"
)

// contextKey is the type for context keys
type contextKey string

const (
	// viperKey is the context key for the command's configuration
	viperKey contextKey = "viper"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "treb-deploy",
		Short: "Deterministic contract deployment orchestrator",
		Long: `treb-deploy reads a plan of contract deployments, submits each step to a
network, waits for confirmation and records the deployed addresses.

Steps run in dependency order. A failed step halts the run; the records of
every confirmed step are kept and can be resumed with --resume.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip for help/version commands
			if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			v, err := setupViper(cmd)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), viperKey, v))
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("network", "n", "", "Network to deploy to: simulated, an RPC URL or a foundry.toml [rpc_endpoints] alias")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug output")
	rootCmd.PersistentFlags().Bool("non-interactive", false, "Disable interactive prompts")
	rootCmd.PersistentFlags().String("project-root", "", "Project root (defaults to the nearest directory with foundry.toml or .treb)")
	rootCmd.PersistentFlags().String("config", "", "Config file (defaults to .treb/config.local.json)")

	rootCmd.AddCommand(NewDeployCmd())
	rootCmd.AddCommand(NewValidateCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// setupViper resolves the project root and binds the command's flags
func setupViper(cmd *cobra.Command) (*viper.Viper, error) {
	projectRoot, _ := cmd.Flags().GetString("project-root")
	if projectRoot == "" {
		var err error
		projectRoot, err = config.FindProjectRoot()
		if err != nil {
			return nil, fmt.Errorf("failed to find project root: %w", err)
		}
	}

	v := config.SetupViper(projectRoot, cmd)

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	return v, nil
}

// getViper retrieves the configuration from the command context
func getViper(cmd *cobra.Command) (*viper.Viper, error) {
	v, ok := cmd.Context().Value(viperKey).(*viper.Viper)
	if !ok || v == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return v, nil
}
